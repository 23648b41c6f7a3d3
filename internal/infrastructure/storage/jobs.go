package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"CaseCurator/internal/domain"
)

var jobColumns = []string{
	"id", "run_id", "external_id", "input_file_id", "output_file_id", "error_file_id", "state",
	"total", "completed", "failed", "requests_json", "failure_reason", "collected", "created_at", "updated_at",
}

// SaveJob inserts or replaces a bulk-job handle.
func (s *SQLStore) SaveJob(ctx context.Context, job domain.BulkJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now()
	}
	job.UpdatedAt = s.now()
	requests, err := json.Marshal(job.Requests)
	if err != nil {
		return fmt.Errorf("marshal requests: %w", err)
	}

	query, args, err := s.sb.Insert("bulk_jobs").Columns(jobColumns...).Values(
		job.ID, job.RunID, job.ExternalID, job.InputFileID, job.OutputFileID, job.ErrorFileID, string(job.State),
		job.Counts.Total, job.Counts.Completed, job.Counts.Failed, string(requests), job.FailureReason,
		boolInt(job.Collected), formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
	).Suffix(upsertSuffix("id", jobColumns[1:], "created_at", "requests_json")).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob loads a job handle by id.
func (s *SQLStore) GetJob(ctx context.Context, id string) (domain.BulkJob, error) {
	query, args, err := s.sb.Select(jobColumns...).From("bulk_jobs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.BulkJob{}, fmt.Errorf("build select: %w", err)
	}
	job, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BulkJob{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.BulkJob{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// ListOpenJobs returns jobs that are still in flight or completed but not yet collected.
func (s *SQLStore) ListOpenJobs(ctx context.Context) ([]domain.BulkJob, error) {
	query, args, err := s.sb.Select(jobColumns...).From("bulk_jobs").
		Where(sq.Or{
			sq.NotEq{"state": []string{string(domain.JobCompleted), string(domain.JobFailed)}},
			sq.And{sq.Eq{"state": string(domain.JobCompleted)}, sq.Eq{"collected": 0}},
		}).
		OrderBy("created_at", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list open jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.BulkJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func scanJob(row rowScanner) (domain.BulkJob, error) {
	var (
		job              domain.BulkJob
		state, requests  string
		collected        int
		created, updated string
	)
	err := row.Scan(&job.ID, &job.RunID, &job.ExternalID, &job.InputFileID, &job.OutputFileID, &job.ErrorFileID, &state,
		&job.Counts.Total, &job.Counts.Completed, &job.Counts.Failed, &requests, &job.FailureReason,
		&collected, &created, &updated)
	if err != nil {
		return domain.BulkJob{}, err
	}
	job.State = domain.JobState(state)
	job.Collected = collected != 0
	job.CreatedAt = parseTime(created)
	job.UpdatedAt = parseTime(updated)
	if err := json.Unmarshal([]byte(requests), &job.Requests); err != nil {
		return domain.BulkJob{}, fmt.Errorf("decode requests of %s: %w", job.ID, err)
	}
	return job, nil
}
