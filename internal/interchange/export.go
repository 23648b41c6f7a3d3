// Package interchange reads and writes the durable JSON corpus document.
package interchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"CaseCurator/internal/domain"
	"CaseCurator/internal/ports"
)

// SchemaVersion is the version of the document written by Export.
const SchemaVersion = 2

// Filters echoes the query an export was produced with.
type Filters struct {
	Dataset  string                    `json:"dataset,omitempty"`
	Tier     domain.Tier               `json:"tier,omitempty"`
	Statuses []domain.ValidationStatus `json:"statuses,omitempty"`
}

// Metadata is the self-describing header of an export.
type Metadata struct {
	ExportedAt    time.Time           `json:"exported_at"`
	SchemaVersion int                 `json:"schema_version"`
	Count         int                 `json:"count"`
	Totals        map[domain.Tier]int `json:"totals"`
	Filters       Filters             `json:"filters"`
}

// Entry is one exported case.
type Entry struct {
	ID                     string                  `json:"id,omitempty"`
	ExternalID             string                  `json:"external_id"`
	Dataset                string                  `json:"dataset"`
	Scenario               string                  `json:"scenario"`
	Claim                  string                  `json:"claim,omitempty"`
	Tier                   domain.Tier             `json:"tier"`
	CategoryCode           string                  `json:"category_code"`
	SubCode                string                  `json:"sub_code,omitempty"`
	Label                  domain.Label            `json:"label"`
	Variables              domain.Variables        `json:"variables"`
	CausalStructure        string                  `json:"causal_structure,omitempty"`
	KeyInsight             string                  `json:"key_insight,omitempty"`
	Rationale              string                  `json:"rationale,omitempty"`
	WiseAnswer             string                  `json:"wise_answer,omitempty"`
	HiddenQuestion         string                  `json:"hidden_question,omitempty"`
	ConditionalResolutions []*string               `json:"conditional_resolutions"`
	Difficulty             domain.Difficulty       `json:"difficulty"`
	Author                 string                  `json:"author,omitempty"`
	ValidationStatus       domain.ValidationStatus `json:"validation_status"`
	IsVerified             bool                    `json:"is_verified"`
	RubricScore            *float64                `json:"rubric_score,omitempty"`
}

// Document is the export file.
type Document struct {
	Metadata Metadata `json:"metadata"`
	Cases    []Entry  `json:"cases"`
}

// EntryFromRecord renders a record. Resolutions are null unless the label is ambiguous.
func EntryFromRecord(r domain.CaseRecord) Entry {
	e := Entry{
		ID:               r.ID,
		ExternalID:       r.ExternalID,
		Dataset:          r.DatasetName,
		Scenario:         r.Scenario,
		Claim:            r.Claim,
		Tier:             r.Cell.Tier,
		CategoryCode:     r.Cell.Code,
		SubCode:          r.Cell.SubCode,
		Label:            r.Label,
		Variables:        r.Variables,
		CausalStructure:  r.CausalStructure,
		KeyInsight:       r.KeyInsight,
		Rationale:        r.Rationale,
		WiseAnswer:       r.WiseAnswer,
		HiddenQuestion:   r.HiddenQuestion,
		Difficulty:       r.Difficulty,
		Author:           r.Author,
		ValidationStatus: r.ValidationStatus,
		IsVerified:       r.IsVerified,
	}
	if r.Cell.Tier.IsAmbiguous(r.Label) {
		e.ConditionalResolutions = []*string{r.ConditionalResolutions[0], r.ConditionalResolutions[1]}
	}
	if r.Rubric != nil {
		total := r.Rubric.Total
		e.RubricScore = &total
	}
	return e
}

// Exporter builds export documents from the store.
type Exporter struct {
	cases ports.CaseRepository
	now   func() time.Time
}

// NewExporter constructs an Exporter.
func NewExporter(cases ports.CaseRepository) *Exporter {
	return &Exporter{cases: cases, now: func() time.Time { return time.Now().UTC() }}
}

// Export lists the matching records into a document.
func (e *Exporter) Export(ctx context.Context, filter ports.CaseFilter) (Document, error) {
	records, err := e.cases.ListCases(ctx, filter)
	if err != nil {
		return Document{}, fmt.Errorf("list cases: %w", err)
	}
	doc := Document{
		Metadata: Metadata{
			ExportedAt:    e.now(),
			SchemaVersion: SchemaVersion,
			Count:         len(records),
			Totals:        map[domain.Tier]int{},
			Filters:       Filters{Dataset: filter.Dataset, Tier: filter.Tier, Statuses: filter.Statuses},
		},
		Cases: make([]Entry, 0, len(records)),
	}
	for _, r := range records {
		doc.Metadata.Totals[r.Cell.Tier]++
		doc.Cases = append(doc.Cases, EntryFromRecord(r))
	}
	return doc, nil
}

// Write exports into w as indented JSON.
func (e *Exporter) Write(ctx context.Context, w io.Writer, filter ports.CaseFilter) (Document, error) {
	doc, err := e.Export(ctx, filter)
	if err != nil {
		return doc, err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return doc, fmt.Errorf("encode export: %w", err)
	}
	return doc, nil
}
