package domain

import (
	"strings"
	"time"
)

// Verdict is the judge's (or reviewer's) overall call on a record.
type Verdict string

const (
	VerdictApproved    Verdict = "approved"
	VerdictNeedsReview Verdict = "needs-review"
	VerdictRejected    Verdict = "rejected"
)

// ParseVerdict maps loose judge output onto the fixed vocabulary.
func ParseVerdict(raw string) Verdict {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approved", "approve", "accept", "accepted":
		return VerdictApproved
	case "rejected", "reject":
		return VerdictRejected
	default:
		return VerdictNeedsReview
	}
}

// Assessment is the per-dimension correctness call.
type Assessment string

const (
	AssessmentCorrect   Assessment = "correct"
	AssessmentIncorrect Assessment = "incorrect"
	AssessmentUncertain Assessment = "uncertain"
)

// ParseAssessment falls back to uncertain.
func ParseAssessment(raw string) Assessment {
	switch a := Assessment(strings.ToLower(strings.TrimSpace(raw))); a {
	case AssessmentCorrect, AssessmentIncorrect:
		return a
	default:
		return AssessmentUncertain
	}
}

// EvaluationFlags are the issue markers attached to an evaluation.
type EvaluationFlags struct {
	Ambiguity    bool `json:"ambiguity"`
	LogicalIssue bool `json:"logical_issue"`
	DomainError  bool `json:"domain_error"`
}

// EvaluationSource records who produced an evaluation.
type EvaluationSource string

const (
	SourceJudge    EvaluationSource = "judge"
	SourceFallback EvaluationSource = "fallback"
	SourceManual   EvaluationSource = "manual"
)

// EvaluationRecord is an append-only review of a case.
type EvaluationRecord struct {
	ID          string
	CaseID      string
	Verdict     Verdict
	Confidence  float64
	Assessments map[string]Assessment
	Flags       EvaluationFlags
	Notes       string
	Source      EvaluationSource
	Reviewer    string
	CreatedAt   time.Time
}
