package scoring

import (
	"encoding/json"
	"fmt"
	"strings"

	"CaseCurator/internal/domain"
	"CaseCurator/internal/schema"
)

const judgeSystemPrompt = "You are a strict reviewer of causal-reasoning test cases. Score each rubric dimension and respond with JSON only."

type judgeOutput struct {
	Verdict     string             `json:"verdict"`
	Confidence  float64            `json:"confidence"`
	Scores      map[string]float64 `json:"scores"`
	Assessments map[string]string  `json:"assessments"`
	Flags       struct {
		Ambiguity    bool `json:"ambiguity"`
		LogicalIssue bool `json:"logical_issue"`
		DomainError  bool `json:"domain_error"`
	} `json:"flags"`
	Notes string `json:"notes"`
}

func parseJudge(raw string) (judgeOutput, error) {
	content := schema.StripFences(raw)

	if err := schema.ValidateJSON(schema.Judge, []byte(content)); err != nil {
		return judgeOutput{}, fmt.Errorf("judge output: %w", err)
	}
	var out judgeOutput
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return judgeOutput{}, fmt.Errorf("decode judge output: %w", err)
	}
	return out, nil
}

func judgePrompt(r domain.CaseRecord, rubric Rubric, judged []Dimension) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cell: %s\nLabel: %s\nDifficulty: %s\n\n", r.Cell.Key(), r.Label, r.Difficulty)
	fmt.Fprintf(&b, "Scenario: %s\nClaim: %s\n", r.Scenario, r.Claim)
	fmt.Fprintf(&b, "Variables: exposure=%s outcome=%s auxiliary=%s\n", r.Variables.Exposure, r.Variables.Outcome, strings.Join(r.Variables.Auxiliary, ", "))
	fmt.Fprintf(&b, "Causal structure: %s\nKey insight: %s\nHidden question: %s\n", r.CausalStructure, r.KeyInsight, r.HiddenQuestion)
	fmt.Fprintf(&b, "Wise answer: %s\nRationale: %s\n", r.WiseAnswer, r.Rationale)
	for i, res := range r.ConditionalResolutions {
		if res != nil {
			fmt.Fprintf(&b, "Resolution %c: %s\n", 'A'+i, *res)
		}
	}

	fmt.Fprintf(&b, "\nRubric (%.1f points):\n", rubric.Max())
	for _, d := range judged {
		fmt.Fprintf(&b, "- %s: 0 to %.1f\n", d.Name, d.Weight)
	}
	b.WriteString(`Return {"verdict": "approved|needs-review|rejected", "confidence": 0..1, "scores": {dimension: points}, ` +
		`"assessments": {dimension: "correct|incorrect|uncertain"}, "flags": {"ambiguity", "logical_issue", "domain_error"}, "notes"}.` + "\n")
	return b.String()
}
