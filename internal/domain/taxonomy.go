package domain

import (
	"fmt"
	"strings"
)

// Tier is the top-level taxonomy grouping with its own outcome vocabulary.
type Tier string

const (
	TierL1 Tier = "L1"
	TierL2 Tier = "L2"
	TierL3 Tier = "L3"
)

// Label is a single outcome value from a tier's polarity vocabulary.
type Label string

const (
	LabelYes         Label = "YES"
	LabelNo          Label = "NO"
	LabelAmbiguous   Label = "AMBIGUOUS"
	LabelValid       Label = "VALID"
	LabelInvalid     Label = "INVALID"
	LabelConditional Label = "CONDITIONAL"
)

type tierSpec struct {
	labels    []Label
	ambiguous Label
}

var tierSpecs = map[Tier]tierSpec{
	TierL1: {labels: []Label{LabelYes, LabelNo, LabelAmbiguous}, ambiguous: LabelAmbiguous},
	TierL2: {labels: []Label{LabelNo}},
	TierL3: {labels: []Label{LabelValid, LabelInvalid, LabelConditional}, ambiguous: LabelConditional},
}

// Tiers returns every tier in priority order.
func Tiers() []Tier {
	return []Tier{TierL1, TierL2, TierL3}
}

// ParseTier accepts "L1", "l1" or a bare level number.
func ParseTier(raw string) (Tier, error) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	if v != "" && !strings.HasPrefix(v, "L") {
		v = "L" + v
	}
	t := Tier(v)
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", raw)
	}
	return t, nil
}

// Valid reports whether t is one of the fixed tiers.
func (t Tier) Valid() bool {
	_, ok := tierSpecs[t]
	return ok
}

// Rank orders tiers for deterministic tie-breaking.
func (t Tier) Rank() int {
	for i, tier := range Tiers() {
		if tier == t {
			return i
		}
	}
	return len(tierSpecs)
}

// Labels returns a copy of the tier's polarity vocabulary.
func (t Tier) Labels() []Label {
	spec := tierSpecs[t]
	out := make([]Label, len(spec.labels))
	copy(out, spec.labels)
	return out
}

// Allows reports whether label belongs to the tier's vocabulary.
func (t Tier) Allows(label Label) bool {
	for _, l := range tierSpecs[t].labels {
		if l == label {
			return true
		}
	}
	return false
}

// AmbiguousLabel returns the tier's ambiguous/conditional outcome, if it has one.
func (t Tier) AmbiguousLabel() (Label, bool) {
	spec := tierSpecs[t]
	return spec.ambiguous, spec.ambiguous != ""
}

// IsAmbiguous reports whether label is the ambiguous/conditional outcome of t.
func (t Tier) IsAmbiguous(label Label) bool {
	amb, ok := t.AmbiguousLabel()
	return ok && label == amb
}

// NormalizeLabel upper-cases and trims a label string.
func NormalizeLabel(raw string) Label {
	return Label(strings.ToUpper(strings.TrimSpace(raw)))
}

// CellKey identifies one quota bucket.
type CellKey struct {
	Tier    Tier   `json:"tier" yaml:"tier"`
	Code    string `json:"category_code" yaml:"code"`
	SubCode string `json:"sub_code,omitempty" yaml:"subCode,omitempty"`
}

// String renders the key as tier/code[/sub].
func (k CellKey) String() string {
	if k.SubCode == "" {
		return fmt.Sprintf("%s/%s", k.Tier, k.Code)
	}
	return fmt.Sprintf("%s/%s/%s", k.Tier, k.Code, k.SubCode)
}

// ParseCellKey is the inverse of CellKey.String.
func ParseCellKey(raw string) (CellKey, error) {
	parts := strings.Split(strings.TrimSpace(raw), "/")
	if len(parts) < 2 || len(parts) > 3 {
		return CellKey{}, fmt.Errorf("malformed cell key %q", raw)
	}
	tier, err := ParseTier(parts[0])
	if err != nil {
		return CellKey{}, err
	}
	key := CellKey{Tier: tier, Code: parts[1]}
	if len(parts) == 3 {
		key.SubCode = parts[2]
	}
	if key.Code == "" {
		return CellKey{}, fmt.Errorf("malformed cell key %q: empty code", raw)
	}
	return key, nil
}

// Cell is a taxonomy bucket together with the polarities it admits.
type Cell struct {
	CellKey    `yaml:",inline"`
	Polarities []Label `json:"polarities" yaml:"polarities"`
}

// Key returns the identifying part of the cell.
func (c Cell) Key() CellKey {
	return c.CellKey
}

// Allows reports whether label is one of the cell's declared polarities.
func (c Cell) Allows(label Label) bool {
	for _, l := range c.Polarities {
		if l == label {
			return true
		}
	}
	return false
}
