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

var evaluationColumns = []string{
	"id", "case_id", "seq", "verdict", "confidence", "assessments_json",
	"flag_ambiguity", "flag_logical", "flag_domain", "notes", "source", "reviewer", "created_at",
}

// RecordEvaluation appends eval and writes the record's new state in one transaction.
func (s *SQLStore) RecordEvaluation(ctx context.Context, record domain.CaseRecord, eval domain.EvaluationRecord) (domain.CaseRecord, error) {
	record.UpdatedAt = s.now()
	if err := record.Validate(); err != nil {
		return domain.CaseRecord{}, fmt.Errorf("case %s: %w", record.ID, err)
	}
	if eval.ID == "" {
		eval.ID = uuid.NewString()
	}
	if eval.CreatedAt.IsZero() {
		eval.CreatedAt = record.UpdatedAt
	}
	eval.CaseID = record.ID
	assessments, err := json.Marshal(eval.Assessments)
	if err != nil {
		return domain.CaseRecord{}, fmt.Errorf("marshal assessments: %w", err)
	}
	values, err := caseValues(record)
	if err != nil {
		return domain.CaseRecord{}, err
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		upd := s.sb.Update("cases").Where(sq.Eq{"id": record.ID})
		for i, col := range caseColumns {
			if col == "id" || col == "created_at" {
				continue
			}
			upd = upd.Set(col, values[i])
		}
		query, args, err := upd.ToSql()
		if err != nil {
			return fmt.Errorf("build update: %w", err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update case: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("case %s: %w", record.ID, ErrNotFound)
		}

		query, args, err = s.sb.Select("COALESCE(MAX(seq), 0)").From("evaluations").
			Where(sq.Eq{"case_id": record.ID}).ToSql()
		if err != nil {
			return fmt.Errorf("build seq: %w", err)
		}
		var seq int
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&seq); err != nil {
			return fmt.Errorf("next seq: %w", err)
		}

		query, args, err = s.sb.Insert("evaluations").Columns(evaluationColumns...).Values(
			eval.ID, eval.CaseID, seq+1, string(eval.Verdict), eval.Confidence, string(assessments),
			boolInt(eval.Flags.Ambiguity), boolInt(eval.Flags.LogicalIssue), boolInt(eval.Flags.DomainError),
			eval.Notes, string(eval.Source), eval.Reviewer, formatTime(eval.CreatedAt),
		).ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert evaluation: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.CaseRecord{}, fmt.Errorf("record evaluation: %w", err)
	}
	return record, nil
}

// LatestEvaluation returns the authoritative (most recent) evaluation of a case.
func (s *SQLStore) LatestEvaluation(ctx context.Context, caseID string) (domain.EvaluationRecord, error) {
	evals, err := s.listEvaluations(ctx, caseID, "seq DESC", 1)
	if err != nil {
		return domain.EvaluationRecord{}, err
	}
	if len(evals) == 0 {
		return domain.EvaluationRecord{}, fmt.Errorf("evaluation of %s: %w", caseID, ErrNotFound)
	}
	return evals[0], nil
}

// ListEvaluations returns every evaluation of a case, oldest first.
func (s *SQLStore) ListEvaluations(ctx context.Context, caseID string) ([]domain.EvaluationRecord, error) {
	return s.listEvaluations(ctx, caseID, "seq ASC", 0)
}

func (s *SQLStore) listEvaluations(ctx context.Context, caseID, order string, limit uint64) ([]domain.EvaluationRecord, error) {
	q := s.sb.Select(evaluationColumns...).From("evaluations").Where(sq.Eq{"case_id": caseID}).OrderBy(order)
	if limit > 0 {
		q = q.Limit(limit)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()

	var out []domain.EvaluationRecord
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func scanEvaluation(row rowScanner) (domain.EvaluationRecord, error) {
	var (
		e                        domain.EvaluationRecord
		seq                      int
		verdict, source, created string
		assessments              string
		amb, logical, dom        int
	)
	err := row.Scan(&e.ID, &e.CaseID, &seq, &verdict, &e.Confidence, &assessments,
		&amb, &logical, &dom, &e.Notes, &source, &e.Reviewer, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EvaluationRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.EvaluationRecord{}, fmt.Errorf("scan evaluation: %w", err)
	}
	e.Verdict = domain.Verdict(verdict)
	e.Source = domain.EvaluationSource(source)
	e.CreatedAt = parseTime(created)
	e.Flags = domain.EvaluationFlags{Ambiguity: amb != 0, LogicalIssue: logical != 0, DomainError: dom != 0}
	if err := json.Unmarshal([]byte(assessments), &e.Assessments); err != nil {
		return domain.EvaluationRecord{}, fmt.Errorf("decode assessments of %s: %w", e.ID, err)
	}
	return e, nil
}
