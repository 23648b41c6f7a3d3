package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvariant marks writes rejected because a record-level invariant does not hold.
var ErrInvariant = errors.New("record invariant violated")

// InvariantError names the field whose invariant failed.
type InvariantError struct {
	Field  string
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets callers match with errors.Is(err, ErrInvariant).
func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariant
}

// ValidationStatus tracks a record through the scoring state machine.
type ValidationStatus string

const (
	StatusPending  ValidationStatus = "pending"
	StatusScored   ValidationStatus = "scored"
	StatusApproved ValidationStatus = "approved"
	StatusRejected ValidationStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s ValidationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusScored, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// CanAdvanceTo reports whether an automated transition from s to next is allowed.
func (s ValidationStatus) CanAdvanceTo(next ValidationStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusScored
	case StatusScored:
		return next == StatusApproved || next == StatusRejected
	}
	return false
}

// CanOverrideTo reports whether a manual reviewer may move a record from s to next.
func (s ValidationStatus) CanOverrideTo(next ValidationStatus) bool {
	if !s.Valid() || s == next {
		return false
	}
	switch next {
	case StatusApproved, StatusRejected, StatusPending:
		return true
	}
	return false
}

// Difficulty is the calibrated difficulty of a single case.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty falls back to medium for unknown input.
func ParseDifficulty(raw string) Difficulty {
	switch Difficulty(strings.ToLower(strings.TrimSpace(raw))) {
	case DifficultyEasy:
		return DifficultyEasy
	case DifficultyHard:
		return DifficultyHard
	default:
		return DifficultyMedium
	}
}

// Variables holds the fixed-shape causal variables of a case.
type Variables struct {
	Exposure  string   `json:"exposure"`
	Outcome   string   `json:"outcome"`
	Auxiliary []string `json:"auxiliary,omitempty"`
}

// DimensionScore is one rubric line.
type DimensionScore struct {
	Name         string  `json:"name"`
	Points       float64 `json:"points"`
	Weight       float64 `json:"weight"`
	AutoCredited bool    `json:"auto_credited,omitempty"`
}

// RubricScore is the weighted judge score of a record.
type RubricScore struct {
	Total      float64          `json:"total"`
	Max        float64          `json:"max"`
	Dimensions []DimensionScore `json:"dimensions"`
}

// Resolutions holds the two ordered conditional-resolution slots.
type Resolutions [2]*string

// Any reports whether at least one slot is populated.
func (r Resolutions) Any() bool {
	return r[0] != nil || r[1] != nil
}

// NewResolutions builds a populated pair, treating empty strings as absent.
func NewResolutions(a, b string) Resolutions {
	var out Resolutions
	if s := strings.TrimSpace(a); s != "" {
		out[0] = &s
	}
	if s := strings.TrimSpace(b); s != "" {
		out[1] = &s
	}
	return out
}

// CaseRecord is the corpus unit.
type CaseRecord struct {
	ID                     string
	ExternalID             string
	DatasetName            string
	Scenario               string
	Claim                  string
	Cell                   Cell
	Variables              Variables
	Label                  Label
	CausalStructure        string
	KeyInsight             string
	Rationale              string
	WiseAnswer             string
	HiddenQuestion         string
	ConditionalResolutions Resolutions
	Difficulty             Difficulty
	Author                 string
	SourcePrompt           string
	ValidationStatus       ValidationStatus
	Rubric                 *RubricScore
	IsVerified             bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Validate enforces the invariants every persisted record must satisfy.
func (c CaseRecord) Validate() error {
	if strings.TrimSpace(c.Scenario) == "" {
		return &InvariantError{Field: "scenario", Reason: "is required"}
	}
	if !c.Cell.Tier.Valid() {
		return &InvariantError{Field: "tier", Reason: fmt.Sprintf("unknown tier %q", c.Cell.Tier)}
	}
	if c.Cell.Code == "" {
		return &InvariantError{Field: "category_code", Reason: "is required"}
	}
	if !c.Cell.Tier.Allows(c.Label) {
		return &InvariantError{Field: "label", Reason: fmt.Sprintf("%q is not a %s polarity", c.Label, c.Cell.Tier)}
	}
	ambiguous := c.Cell.Tier.IsAmbiguous(c.Label)
	if ambiguous && !c.ConditionalResolutions.Any() {
		return &InvariantError{Field: "conditional_resolutions", Reason: "required for ambiguous label"}
	}
	if !ambiguous && c.ConditionalResolutions.Any() {
		return &InvariantError{Field: "conditional_resolutions", Reason: "must be empty for non-ambiguous label"}
	}
	if !c.ValidationStatus.Valid() {
		return &InvariantError{Field: "validation_status", Reason: fmt.Sprintf("unknown status %q", c.ValidationStatus)}
	}
	if c.IsVerified != (c.ValidationStatus == StatusApproved) {
		return &InvariantError{Field: "is_verified", Reason: "must be true exactly when approved"}
	}
	return nil
}

// WithStatus returns a copy moved to status, keeping IsVerified in sync.
func (c CaseRecord) WithStatus(status ValidationStatus) CaseRecord {
	c.ValidationStatus = status
	c.IsVerified = status == StatusApproved
	return c
}
