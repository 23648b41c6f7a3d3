// Package generation turns sampled cells and seeds into completion requests.
package generation

import (
	"fmt"
	"strings"

	"CaseCurator/internal/domain"
	"CaseCurator/internal/quota"
)

// Options configure the request payloads.
type Options struct {
	Model       string
	Temperature float64
}

// Builder assembles immutable generation requests.
type Builder struct {
	opts Options
}

// NewBuilder constructs a Builder.
func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts}
}

// Build pairs a selection with a seed under a traceable correlation id.
func (b *Builder) Build(runID string, seq int, sel quota.Selection, seed domain.ScenarioSeed) (domain.GenerationRequest, error) {
	if !sel.Cell.Allows(sel.Label) {
		return domain.GenerationRequest{}, fmt.Errorf("label %s not allowed in cell %s", sel.Label, sel.Cell.Key())
	}
	if err := seed.Validate(); err != nil {
		return domain.GenerationRequest{}, fmt.Errorf("build request: %w", err)
	}
	id, err := EncodeCorrelation(runID, sel.Cell.Key(), seq)
	if err != nil {
		return domain.GenerationRequest{}, fmt.Errorf("build request: %w", err)
	}

	entities := append([]string(nil), seed.Entities...)
	seed.Entities = entities
	polarities := append([]domain.Label(nil), sel.Cell.Polarities...)
	cell := domain.Cell{CellKey: sel.Cell.Key(), Polarities: polarities}

	return domain.GenerationRequest{
		CorrelationID: id,
		Cell:          cell,
		Label:         sel.Label,
		Seed:          seed,
		Prompt: domain.PromptPayload{
			Model:       b.opts.Model,
			System:      caseSystemPrompt,
			User:        casePrompt(cell, sel.Label, seed),
			Temperature: b.opts.Temperature,
			JSONOutput:  true,
		},
	}, nil
}

const caseSystemPrompt = "You write rigorous causal-reasoning test cases. Respond with a single JSON object only."

func casePrompt(cell domain.Cell, label domain.Label, seed domain.ScenarioSeed) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tier: %s\nCategory code: %s\n", cell.Tier, cell.Code)
	if cell.SubCode != "" {
		fmt.Fprintf(&b, "Sub-category: %s\n", cell.SubCode)
	}
	fmt.Fprintf(&b, "Required label: %s\n\n", label)

	fmt.Fprintf(&b, "Scenario seed:\n- topic: %s\n- subdomain: %s\n- entities: %s\n",
		seed.Topic, seed.Subdomain, strings.Join(seed.Entities, ", "))
	if seed.Timeframe != "" {
		fmt.Fprintf(&b, "- timeframe: %s\n", seed.Timeframe)
	}
	if seed.TriggeringEvent != "" {
		fmt.Fprintf(&b, "- triggering event: %s\n", seed.TriggeringEvent)
	}
	if seed.Context != "" {
		fmt.Fprintf(&b, "- context: %s\n", seed.Context)
	}

	b.WriteString("\nReturn fields: scenario, claim, label, variables {exposure, outcome, auxiliary[]}, ")
	b.WriteString("causal_structure, key_insight, rationale, wise_answer, hidden_question, difficulty (easy|medium|hard)")
	if cell.Tier.IsAmbiguous(label) {
		b.WriteString(", conditional_resolutions {answer_if_condition_1, answer_if_condition_2}")
	}
	b.WriteString(".\n")
	return b.String()
}
