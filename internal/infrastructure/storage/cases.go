package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"CaseCurator/internal/domain"
	"CaseCurator/internal/ports"
)

var caseColumns = []string{
	"id", "external_id", "dataset", "tier", "category_code", "sub_code", "label",
	"scenario", "claim", "variables_json", "causal_structure", "key_insight", "rationale",
	"wise_answer", "hidden_question", "resolution_a", "resolution_b", "difficulty",
	"author", "source_prompt", "status", "rubric_json", "is_verified", "created_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func caseValues(r domain.CaseRecord) ([]any, error) {
	vars, err := json.Marshal(r.Variables)
	if err != nil {
		return nil, fmt.Errorf("marshal variables: %w", err)
	}
	var rubric sql.NullString
	if r.Rubric != nil {
		raw, err := json.Marshal(r.Rubric)
		if err != nil {
			return nil, fmt.Errorf("marshal rubric: %w", err)
		}
		rubric = sql.NullString{String: string(raw), Valid: true}
	}
	return []any{
		r.ID, r.ExternalID, r.DatasetName, string(r.Cell.Tier), r.Cell.Code, r.Cell.SubCode, string(r.Label),
		r.Scenario, r.Claim, string(vars), r.CausalStructure, r.KeyInsight, r.Rationale,
		r.WiseAnswer, r.HiddenQuestion, nullable(r.ConditionalResolutions[0]), nullable(r.ConditionalResolutions[1]),
		string(r.Difficulty), r.Author, r.SourcePrompt, string(r.ValidationStatus), rubric,
		boolInt(r.IsVerified), formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	}, nil
}

func scanCase(row rowScanner) (domain.CaseRecord, error) {
	var (
		r                  domain.CaseRecord
		tier, label        string
		vars               string
		resA, resB, rubric sql.NullString
		difficulty, status string
		verified           int
		created, updated   string
	)
	err := row.Scan(
		&r.ID, &r.ExternalID, &r.DatasetName, &tier, &r.Cell.Code, &r.Cell.SubCode, &label,
		&r.Scenario, &r.Claim, &vars, &r.CausalStructure, &r.KeyInsight, &r.Rationale,
		&r.WiseAnswer, &r.HiddenQuestion, &resA, &resB, &difficulty,
		&r.Author, &r.SourcePrompt, &status, &rubric, &verified, &created, &updated,
	)
	if err != nil {
		return domain.CaseRecord{}, err
	}
	r.Cell.Tier = domain.Tier(tier)
	r.Label = domain.Label(label)
	r.Difficulty = domain.Difficulty(difficulty)
	r.ValidationStatus = domain.ValidationStatus(status)
	r.IsVerified = verified != 0
	r.CreatedAt = parseTime(created)
	r.UpdatedAt = parseTime(updated)
	if resA.Valid {
		r.ConditionalResolutions[0] = &resA.String
	}
	if resB.Valid {
		r.ConditionalResolutions[1] = &resB.String
	}
	if err := json.Unmarshal([]byte(vars), &r.Variables); err != nil {
		return domain.CaseRecord{}, fmt.Errorf("decode variables of %s: %w", r.ID, err)
	}
	if rubric.Valid {
		var score domain.RubricScore
		if err := json.Unmarshal([]byte(rubric.String), &score); err != nil {
			return domain.CaseRecord{}, fmt.Errorf("decode rubric of %s: %w", r.ID, err)
		}
		r.Rubric = &score
	}
	return r, nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func (s *SQLStore) prepareCase(r domain.CaseRecord) (domain.CaseRecord, error) {
	if r.ValidationStatus == "" {
		r.ValidationStatus = domain.StatusPending
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.ExternalID == "" {
		r.ExternalID = r.ID
	}
	now := s.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if err := r.Validate(); err != nil {
		return domain.CaseRecord{}, fmt.Errorf("case %s: %w", r.ID, err)
	}
	return r, nil
}

// keepsReview reports whether a pending refresh of an existing row leaves its review
// state alone. A changed label or cell always resets the record to pending.
func keepsReview(existing, incoming domain.CaseRecord) bool {
	if incoming.ValidationStatus != "" && incoming.ValidationStatus != domain.StatusPending {
		return false
	}
	return existing.Label == incoming.Label && existing.Cell.Key() == incoming.Cell.Key()
}

// SaveCase inserts or replaces a record by id. The record is validated before the write.
func (s *SQLStore) SaveCase(ctx context.Context, record domain.CaseRecord) (domain.CaseRecord, error) {
	r, err := s.prepareCase(record)
	if err != nil {
		return domain.CaseRecord{}, err
	}
	values, err := caseValues(r)
	if err != nil {
		return domain.CaseRecord{}, err
	}

	query, args, err := s.sb.Insert("cases").Columns(caseColumns...).Values(values...).
		Suffix(upsertSuffix("id", caseColumns[1:], "created_at")).ToSql()
	if err != nil {
		return domain.CaseRecord{}, fmt.Errorf("build insert: %w", err)
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return domain.CaseRecord{}, fmt.Errorf("save case %s: %w", r.ID, err)
	}
	return r, nil
}

// UpsertByExternalID writes a record keyed by (dataset, external id), keeping the
// existing row id and creation time when the key is already present.
func (s *SQLStore) UpsertByExternalID(ctx context.Context, record domain.CaseRecord) (domain.CaseRecord, bool, error) {
	if record.ExternalID == "" {
		return domain.CaseRecord{}, false, fmt.Errorf("upsert: external id is required")
	}

	var (
		out     domain.CaseRecord
		created bool
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		query, args, err := s.sb.Select(caseColumns...).From("cases").
			Where(sq.Eq{"dataset": record.DatasetName, "external_id": record.ExternalID}).ToSql()
		if err != nil {
			return fmt.Errorf("build select: %w", err)
		}
		existing, err := scanCase(tx.QueryRowContext(ctx, query, args...))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			created = true
		case err != nil:
			return fmt.Errorf("lookup external id: %w", err)
		default:
			record.ID = existing.ID
			record.CreatedAt = existing.CreatedAt
			if keepsReview(existing, record) {
				record.ValidationStatus = existing.ValidationStatus
				record.IsVerified = existing.IsVerified
				record.Rubric = existing.Rubric
			}
		}

		r, err := s.prepareCase(record)
		if err != nil {
			return err
		}
		values, err := caseValues(r)
		if err != nil {
			return err
		}

		var stmt sq.Sqlizer
		if created {
			stmt = s.sb.Insert("cases").Columns(caseColumns...).Values(values...)
		} else {
			upd := s.sb.Update("cases").Where(sq.Eq{"id": r.ID})
			for i, col := range caseColumns {
				if col == "id" || col == "created_at" {
					continue
				}
				upd = upd.Set(col, values[i])
			}
			stmt = upd
		}
		query, args, err = stmt.ToSql()
		if err != nil {
			return fmt.Errorf("build write: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("write case: %w", err)
		}
		out = r
		return nil
	})
	if err != nil {
		return domain.CaseRecord{}, false, fmt.Errorf("upsert %s/%s: %w", record.DatasetName, record.ExternalID, err)
	}
	return out, created, nil
}

// GetCase loads one record by id.
func (s *SQLStore) GetCase(ctx context.Context, id string) (domain.CaseRecord, error) {
	query, args, err := s.sb.Select(caseColumns...).From("cases").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.CaseRecord{}, fmt.Errorf("build select: %w", err)
	}
	r, err := scanCase(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CaseRecord{}, fmt.Errorf("case %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.CaseRecord{}, fmt.Errorf("get case %s: %w", id, err)
	}
	return r, nil
}

// ListCases returns records matching filter, oldest first.
func (s *SQLStore) ListCases(ctx context.Context, filter ports.CaseFilter) ([]domain.CaseRecord, error) {
	q := s.sb.Select(caseColumns...).From("cases").OrderBy("created_at", "id")
	if filter.Dataset != "" {
		q = q.Where(sq.Eq{"dataset": filter.Dataset})
	}
	if filter.Tier != "" {
		q = q.Where(sq.Eq{"tier": string(filter.Tier)})
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		q = q.Where(sq.Eq{"status": statuses})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var out []domain.CaseRecord
	for rows.Next() {
		r, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// CountByCell aggregates every persisted record per cell, whatever its review status.
// An empty dataset counts every dataset.
func (s *SQLStore) CountByCell(ctx context.Context, dataset string) ([]ports.CellCount, error) {
	q := s.sb.Select("tier", "category_code", "sub_code", "COUNT(*)").From("cases").
		GroupBy("tier", "category_code", "sub_code").
		OrderBy("tier", "category_code", "sub_code")
	if dataset != "" {
		q = q.Where(sq.Eq{"dataset": dataset})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count by cell: %w", err)
	}
	defer rows.Close()

	var out []ports.CellCount
	for rows.Next() {
		var (
			c    ports.CellCount
			tier string
		)
		if err := rows.Scan(&tier, &c.Key.Code, &c.Key.SubCode, &c.Count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		c.Key.Tier = domain.Tier(tier)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// DeleteCase removes a record and its evaluations. Deleting a missing id is not an error.
func (s *SQLStore) DeleteCase(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []sq.DeleteBuilder{
			s.sb.Delete("evaluations").Where(sq.Eq{"case_id": id}),
			s.sb.Delete("cases").Where(sq.Eq{"id": id}),
		} {
			query, args, err := stmt.ToSql()
			if err != nil {
				return fmt.Errorf("build delete: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("delete case %s: %w", id, err)
			}
		}
		return nil
	})
}

// upsertSuffix renders ON CONFLICT ... DO UPDATE, which sqlite and postgres share.
func upsertSuffix(key string, columns []string, keep ...string) string {
	skip := map[string]bool{key: true}
	for _, k := range keep {
		skip[k] = true
	}
	var sets []string
	for _, col := range columns {
		if skip[col] {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", key, strings.Join(sets, ", "))
}
