// Package ingest turns raw completion results into validated pending case records.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"CaseCurator/internal/domain"
	"CaseCurator/internal/generation"
	"CaseCurator/internal/ports"
	"CaseCurator/internal/schema"
	"CaseCurator/internal/taxonomy"
)

// Error names the field a raw result failed on.
type Error struct {
	CorrelationID string
	Field         string
	Reason        string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("ingest %s: %s", e.CorrelationID, e.Reason)
	}
	return fmt.Sprintf("ingest %s: %s: %s", e.CorrelationID, e.Field, e.Reason)
}

// Failure is one failed item of a batch.
type Failure struct {
	CorrelationID string `json:"correlation_id"`
	Reason        string `json:"reason"`
}

// Summary reports a batch ingest.
type Summary struct {
	Attempted int       `json:"attempted"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures,omitempty"`
	CaseIDs   []string  `json:"case_ids,omitempty"`
}

// Options stamp provenance onto ingested records.
type Options struct {
	Dataset string
	Author  string
}

// Ingester validates results against the registry and persists them as pending.
type Ingester struct {
	reg    *taxonomy.Registry
	cases  ports.CaseRepository
	opts   Options
	logger *slog.Logger
}

// NewIngester wires the registry and case store. cases may be nil for Ingest-only use.
func NewIngester(reg *taxonomy.Registry, cases ports.CaseRepository, opts Options, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{reg: reg, cases: cases, opts: opts, logger: logger.With("component", "ingest")}
}

// Ingest converts one raw result into a pending record without persisting it.
func (in *Ingester) Ingest(raw domain.RawResult) (domain.CaseRecord, error) {
	id := raw.CorrelationID
	fail := func(field, format string, args ...any) (domain.CaseRecord, error) {
		return domain.CaseRecord{}, &Error{CorrelationID: id, Field: field, Reason: fmt.Sprintf(format, args...)}
	}

	if raw.Failed() {
		return fail("", "upstream error: %s", raw.Err)
	}
	corr, err := generation.DecodeCorrelation(id)
	if err != nil {
		return fail("correlation_id", "%v", err)
	}
	cell, ok := in.reg.Lookup(corr.Cell)
	if !ok {
		return fail("correlation_id", "cell %s is not registered", corr.Cell)
	}

	content, err := unwrap(raw.Payload)
	if err != nil {
		return fail("payload", "%v", err)
	}
	var f fields
	if err := json.Unmarshal(content, &f); err != nil {
		return fail("payload", "decode: %v", err)
	}

	scenario := f.str("scenario")
	if scenario == "" {
		return fail("scenario", "is required")
	}
	if f.str("label") == "" {
		return fail("label", "is required")
	}
	if err := schema.ValidateJSON(schema.Case, content); err != nil {
		field := schema.Field(err)
		if field == "" {
			field = "payload"
		}
		return fail(field, "schema: %v", err)
	}

	label := domain.NormalizeLabel(f.str("label"))
	if !cell.Allows(label) {
		return fail("label", "%s is not allowed in cell %s (allowed %v)", label, cell.Key(), cell.Polarities)
	}

	var resolutions domain.Resolutions
	if cell.Tier.IsAmbiguous(label) {
		res, present, err := coerceResolutions(f)
		if err != nil {
			return fail("conditional_resolutions", "%v", err)
		}
		if !present {
			return fail("conditional_resolutions", "both slots are required for %s", label)
		}
		if !res.Any() {
			return fail("conditional_resolutions", "at least one slot must be non-null for %s", label)
		}
		resolutions = res
	}

	record := domain.CaseRecord{
		ExternalID:             id,
		DatasetName:            in.opts.Dataset,
		Scenario:               scenario,
		Claim:                  f.str("claim"),
		Cell:                   cell,
		Variables:              variables(f),
		Label:                  label,
		CausalStructure:        f.str("causal_structure"),
		KeyInsight:             f.str("key_insight"),
		Rationale:              f.str("rationale", "explanation"),
		WiseAnswer:             f.str("wise_answer", "wise_refusal"),
		HiddenQuestion:         f.str("hidden_question", "hidden_timestamp"),
		ConditionalResolutions: resolutions,
		Difficulty:             domain.ParseDifficulty(f.str("difficulty")),
		Author:                 in.opts.Author,
		SourcePrompt:           raw.SourcePrompt,
		ValidationStatus:       domain.StatusPending,
	}
	if err := record.Validate(); err != nil {
		field := ""
		var ie *domain.InvariantError
		if errors.As(err, &ie) {
			field = ie.Field
		}
		return fail(field, "%v", err)
	}
	return record, nil
}

// IngestBatch ingests and persists every result, counting failures instead of aborting.
// Records are keyed by correlation id, so collecting the same results twice is idempotent.
func (in *Ingester) IngestBatch(ctx context.Context, results []domain.RawResult) Summary {
	var sum Summary
	for _, raw := range results {
		sum.Attempted++
		log := in.logger.With("correlation_id", raw.CorrelationID)

		record, err := in.Ingest(raw)
		if err != nil {
			sum.fail(raw.CorrelationID, err.Error())
			log.Warn("ingest failed", "error", err)
			continue
		}
		if in.cases == nil {
			sum.Succeeded++
			continue
		}
		saved, _, err := in.cases.UpsertByExternalID(ctx, record)
		if err != nil {
			sum.fail(raw.CorrelationID, fmt.Sprintf("store: %v", err))
			log.Error("persist ingested case", "error", err)
			continue
		}
		sum.Succeeded++
		sum.CaseIDs = append(sum.CaseIDs, saved.ID)
	}
	return sum
}

func (s *Summary) fail(id, reason string) {
	s.Failed++
	s.Failures = append(s.Failures, Failure{CorrelationID: id, Reason: reason})
}

func variables(f fields) domain.Variables {
	var v domain.Variables
	if raw, ok := f["variables"]; ok && !isNull(raw) {
		var vf fields
		if err := json.Unmarshal(raw, &vf); err == nil {
			v.Exposure = vf.str("exposure", "X")
			v.Outcome = vf.str("outcome", "Y")
			for _, key := range []string{"auxiliary", "Z"} {
				if aux, ok := vf[key]; ok {
					v.Auxiliary = append(v.Auxiliary, stringList(aux)...)
				}
			}
		}
	}
	if v.Exposure == "" {
		v.Exposure = f.str("exposure")
	}
	if v.Outcome == "" {
		v.Outcome = f.str("outcome")
	}
	v.Exposure = strings.TrimSpace(v.Exposure)
	v.Outcome = strings.TrimSpace(v.Outcome)
	return v
}

// DecodeVariables reads the variables object (or flat exposure/outcome keys) of a decoded object.
func DecodeVariables(obj map[string]json.RawMessage) domain.Variables {
	return variables(fields(obj))
}
