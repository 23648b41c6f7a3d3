// Package bulk submits generation requests as one asynchronous job and reconciles its results.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"CaseCurator/internal/domain"
	"CaseCurator/internal/ports"
)

var (
	// ErrJobNotCompleted is returned when results are requested before completion.
	ErrJobNotCompleted = errors.New("bulk job not completed")
	// ErrInvalidTransition guards the job state machine.
	ErrInvalidTransition = errors.New("invalid job transition")
)

// MissingResult is the error recorded for requests absent from both result files.
const MissingResult = "missing result"

// Options configure batch submission.
type Options struct {
	Endpoint         string
	CompletionWindow string
}

// PollResult is the outcome of one status fetch.
type PollResult struct {
	Job     domain.BulkJob
	Changed bool
}

// Done reports whether the job reached a terminal state.
func (p PollResult) Done() bool {
	return p.Job.State.Terminal()
}

// Orchestrator persists job handles and talks to the bulk service. It owns no timers.
type Orchestrator struct {
	jobs   ports.JobRepository
	client ports.BatchClient
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewOrchestrator wires the job store and bulk client.
func NewOrchestrator(jobs ports.JobRepository, client ports.BatchClient, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.Endpoint == "" {
		opts.Endpoint = "/v1/chat/completions"
	}
	if opts.CompletionWindow == "" {
		opts.CompletionWindow = "24h"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		jobs:   jobs,
		client: client,
		opts:   opts,
		logger: logger.With("component", "bulk"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Submit persists the job before contacting the service, then uploads and starts it.
func (o *Orchestrator) Submit(ctx context.Context, runID string, requests []domain.GenerationRequest) (domain.BulkJob, error) {
	if len(requests) == 0 {
		return domain.BulkJob{}, fmt.Errorf("submit: no requests")
	}
	seen := make(map[string]bool, len(requests))
	for _, r := range requests {
		if r.CorrelationID == "" || seen[r.CorrelationID] {
			return domain.BulkJob{}, fmt.Errorf("submit: missing or duplicate correlation id %q", r.CorrelationID)
		}
		seen[r.CorrelationID] = true
	}

	now := o.now()
	job := domain.BulkJob{
		ID:        uuid.NewString(),
		RunID:     runID,
		State:     domain.JobCreated,
		Counts:    domain.JobCounts{Total: len(requests)},
		Requests:  append([]domain.GenerationRequest(nil), requests...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.jobs.SaveJob(ctx, job); err != nil {
		return domain.BulkJob{}, fmt.Errorf("persist job: %w", err)
	}
	log := o.logger.With("job_id", job.ID, "run_id", runID)

	payload, err := encodeRequests(o.opts.Endpoint, requests)
	if err != nil {
		return o.fail(ctx, job, err)
	}
	fileID, err := o.client.UploadFile(ctx, fmt.Sprintf("%s.jsonl", job.ID), payload)
	if err != nil {
		return o.fail(ctx, job, fmt.Errorf("upload input: %w", err))
	}
	job.InputFileID = fileID

	status, err := o.client.CreateBatch(ctx, fileID, o.opts.Endpoint, o.opts.CompletionWindow, map[string]string{
		"run_id": runID,
		"job_id": job.ID,
	})
	if err != nil {
		return o.fail(ctx, job, fmt.Errorf("create batch: %w", err))
	}
	job.ExternalID = status.ID
	if err := o.transition(&job, domain.JobSubmitted); err != nil {
		return job, err
	}
	if err := o.jobs.SaveJob(ctx, job); err != nil {
		return job, fmt.Errorf("persist submitted job: %w", err)
	}
	log.Info("bulk job submitted", "batch_id", job.ExternalID, "requests", len(requests))
	return job, nil
}

// Poll fetches the external status once and persists the mapped state.
func (o *Orchestrator) Poll(ctx context.Context, jobID string) (PollResult, error) {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return PollResult{}, fmt.Errorf("load job: %w", err)
	}
	if job.State.Terminal() || job.State == domain.JobCreated {
		return PollResult{Job: job}, nil
	}

	status, err := o.client.GetBatch(ctx, job.ExternalID)
	if err != nil {
		return PollResult{Job: job}, fmt.Errorf("poll batch %s: %w", job.ExternalID, err)
	}

	next := mapStatus(status)
	before := job
	if err := o.transition(&job, next); err != nil {
		return PollResult{Job: before}, err
	}
	if status.Counts.Total > 0 {
		job.Counts = status.Counts
	}
	job.OutputFileID = status.OutputFileID
	job.ErrorFileID = status.ErrorFileID
	if next == domain.JobFailed {
		job.FailureReason = failureReason(status)
	}
	if err := o.jobs.SaveJob(ctx, job); err != nil {
		return PollResult{Job: before}, fmt.Errorf("persist job: %w", err)
	}

	changed := before.State != job.State || before.Counts != job.Counts
	if changed {
		o.logger.Info("bulk job progressed", "job_id", job.ID, "state", job.State, "external_status", status.Status,
			"completed", job.Counts.Completed, "failed", job.Counts.Failed, "total", job.Counts.Total)
	}
	return PollResult{Job: job, Changed: changed}, nil
}

// FetchResults downloads and demultiplexes results of a completed job. Every request
// yields exactly one RawResult; requests absent from both files carry MissingResult.
func (o *Orchestrator) FetchResults(ctx context.Context, jobID string) ([]domain.RawResult, error) {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if job.State != domain.JobCompleted {
		return nil, fmt.Errorf("job %s is %s: %w", job.ID, job.State, ErrJobNotCompleted)
	}

	byID := map[string]domain.RawResult{}
	for _, fileID := range []string{job.OutputFileID, job.ErrorFileID} {
		if fileID == "" {
			continue
		}
		raw, err := o.client.FileContent(ctx, fileID)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", fileID, err)
		}
		lines, bad := decodeLines(raw)
		if len(bad) > 0 {
			o.logger.Warn("skipped malformed result lines", "job_id", job.ID, "file_id", fileID, "lines", bad)
		}
		for _, l := range lines {
			res := l.result()
			if prev, ok := byID[res.CorrelationID]; ok && !prev.Failed() {
				continue
			}
			byID[res.CorrelationID] = res
		}
	}

	out := make([]domain.RawResult, 0, len(job.Requests))
	for _, req := range job.Requests {
		res, ok := byID[req.CorrelationID]
		if !ok {
			res = domain.RawResult{CorrelationID: req.CorrelationID, Err: MissingResult}
		}
		res.SourcePrompt = req.Prompt.User
		out = append(out, res)
		delete(byID, req.CorrelationID)
	}
	if len(byID) > 0 {
		o.logger.Warn("results for unknown correlation ids ignored", "job_id", job.ID, "count", len(byID))
	}
	return out, nil
}

// MarkCollected records that a completed job's results were ingested.
func (o *Orchestrator) MarkCollected(ctx context.Context, jobID string) (domain.BulkJob, error) {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return domain.BulkJob{}, fmt.Errorf("load job: %w", err)
	}
	if job.State != domain.JobCompleted {
		return job, fmt.Errorf("job %s is %s: %w", job.ID, job.State, ErrJobNotCompleted)
	}
	job.Collected = true
	job.UpdatedAt = o.now()
	if err := o.jobs.SaveJob(ctx, job); err != nil {
		return job, fmt.Errorf("persist job: %w", err)
	}
	return job, nil
}

// Job loads a persisted handle.
func (o *Orchestrator) Job(ctx context.Context, jobID string) (domain.BulkJob, error) {
	return o.jobs.GetJob(ctx, jobID)
}

// Resume lists jobs that are still in flight or awaiting collection after a restart.
func (o *Orchestrator) Resume(ctx context.Context) ([]domain.BulkJob, error) {
	jobs, err := o.jobs.ListOpenJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open jobs: %w", err)
	}
	if len(jobs) > 0 {
		o.logger.Info("resuming bulk jobs", "count", len(jobs))
	}
	return jobs, nil
}

func (o *Orchestrator) transition(job *domain.BulkJob, next domain.JobState) error {
	if !job.State.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.State, next)
	}
	job.State = next
	job.UpdatedAt = o.now()
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, job domain.BulkJob, cause error) (domain.BulkJob, error) {
	job.FailureReason = cause.Error()
	if err := o.transition(&job, domain.JobFailed); err == nil {
		if saveErr := o.jobs.SaveJob(ctx, job); saveErr != nil {
			o.logger.Error("persist failed job", "job_id", job.ID, "error", saveErr)
		}
	}
	o.logger.Error("bulk submission failed", "job_id", job.ID, "error", cause)
	return job, cause
}

// mapStatus folds the service's status vocabulary into job states. An expired batch
// with an output file is treated as completed so its partial results can be collected.
func mapStatus(st ports.BatchStatus) domain.JobState {
	switch st.Status {
	case "completed":
		return domain.JobCompleted
	case "expired":
		if st.OutputFileID != "" {
			return domain.JobCompleted
		}
		return domain.JobFailed
	case "failed", "cancelled", "cancelling":
		return domain.JobFailed
	default:
		return domain.JobPolling
	}
}

func failureReason(st ports.BatchStatus) string {
	if len(st.Errors) > 0 {
		return fmt.Sprintf("%s: %v", st.Status, st.Errors)
	}
	return "batch " + st.Status
}
