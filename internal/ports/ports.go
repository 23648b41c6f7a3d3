package ports

import (
	"context"
	"time"

	"CaseCurator/internal/domain"
)

// CompletionRequest is a single structured-output call to the completion service.
type CompletionRequest struct {
	Model       string
	System      string
	User        string
	Temperature float64
	JSONOutput  bool
}

// CompletionClient performs synchronous completions (seed generation, case generation, judging).
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// BatchStatus mirrors the bulk service's view of a job.
type BatchStatus struct {
	ID           string
	Status       string
	OutputFileID string
	ErrorFileID  string
	Counts       domain.JobCounts
	Errors       []string
}

// BatchClient talks to the asynchronous bulk-job API.
type BatchClient interface {
	UploadFile(ctx context.Context, name string, data []byte) (string, error)
	CreateBatch(ctx context.Context, inputFileID, endpoint, window string, metadata map[string]string) (BatchStatus, error)
	GetBatch(ctx context.Context, batchID string) (BatchStatus, error)
	FileContent(ctx context.Context, fileID string) ([]byte, error)
}

// CellCount is one row of the grouped count query.
type CellCount struct {
	Key   domain.CellKey
	Count int
}

// CaseFilter narrows list and export queries.
type CaseFilter struct {
	Dataset  string
	Tier     domain.Tier
	Statuses []domain.ValidationStatus
	Limit    int
}

// CaseRepository persists corpus records.
type CaseRepository interface {
	SaveCase(ctx context.Context, record domain.CaseRecord) (domain.CaseRecord, error)
	UpsertByExternalID(ctx context.Context, record domain.CaseRecord) (domain.CaseRecord, bool, error)
	GetCase(ctx context.Context, id string) (domain.CaseRecord, error)
	ListCases(ctx context.Context, filter CaseFilter) ([]domain.CaseRecord, error)
	CountByCell(ctx context.Context, dataset string) ([]CellCount, error)
	DeleteCase(ctx context.Context, id string) error
}

// EvaluationRepository stores append-only evaluations next to their state transition.
type EvaluationRepository interface {
	RecordEvaluation(ctx context.Context, record domain.CaseRecord, eval domain.EvaluationRecord) (domain.CaseRecord, error)
	LatestEvaluation(ctx context.Context, caseID string) (domain.EvaluationRecord, error)
	ListEvaluations(ctx context.Context, caseID string) ([]domain.EvaluationRecord, error)
}

// JobRepository persists bulk-job handles so polling can resume after a restart.
type JobRepository interface {
	SaveJob(ctx context.Context, job domain.BulkJob) error
	GetJob(ctx context.Context, id string) (domain.BulkJob, error)
	ListOpenJobs(ctx context.Context) ([]domain.BulkJob, error)
}

// Store bundles every persistence concern.
type Store interface {
	CaseRepository
	EvaluationRepository
	JobRepository
	Close() error
}

// Notifier streams run summaries to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler drives a caller-defined cadence.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
