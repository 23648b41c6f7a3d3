package taxonomy

import (
	"fmt"
	"regexp"
	"strings"

	"CaseCurator/internal/domain"
)

// CategoryKind tags which coding generation a CategoryRef comes from.
type CategoryKind int

const (
	CategoryCoded CategoryKind = iota + 1
	CategoryLegacy
)

// CategoryRef is either a structured cell code or a legacy free-text label.
type CategoryRef struct {
	Kind    CategoryKind
	Tier    domain.Tier
	Code    string
	SubCode string
	Text    string
}

// Coded references a structured cell.
func Coded(tier domain.Tier, code, subCode string) CategoryRef {
	return CategoryRef{Kind: CategoryCoded, Tier: tier, Code: code, SubCode: subCode}
}

// Legacy references a free-text category from the older coding.
func Legacy(tier domain.Tier, text string) CategoryRef {
	return CategoryRef{Kind: CategoryLegacy, Tier: tier, Text: text}
}

// Resolution is the outcome of normalizing a CategoryRef.
type Resolution struct {
	Cell     domain.Cell
	Fallback bool
}

// legacyTable maps normalized legacy labels to structured codes, per tier.
var legacyTable = map[domain.Tier]map[string]string{
	domain.TierL1: {
		"spurious correlation":        "W1",
		"correlation not causation":   "W1",
		"confounding":                 "W2",
		"confounder":                  "W2",
		"reverse causation":           "W3",
		"selection bias":              "W4",
		"base rate neglect":           "W5",
		"survivorship bias":           "W6",
		"ecological fallacy":          "W7",
		"regression to the mean":      "W8",
		"simpsons paradox":            "W9",
		"randomized controlled trial": "S1",
		"rct":                         "S1",
		"natural experiment":          "S2",
		"dose response":               "S3",
		"temporal precedence":         "S4",
		"mechanism":                   "S5",
		"replication":                 "S6",
		"instrumental variable":       "S7",
		"ambiguous":                   "A",
		"insufficient information":    "A",
	},
	domain.TierL2: {
		"confounding":              "T1",
		"reverse causation":        "T2",
		"selection bias":           "T3",
		"collider bias":            "T4",
		"collider":                 "T4",
		"simpsons paradox":         "T5",
		"regression to the mean":   "T6",
		"survivorship bias":        "T7",
		"measurement bias":         "T8",
		"mediator adjustment":      "T9",
		"feedback loop":            "T10",
		"spillover":                "T11",
		"time varying confounding": "T12",
		"instrument violation":     "T13",
		"ecological fallacy":       "T14",
		"goodharts law":            "T15",
		"post treatment bias":      "T16",
	},
	domain.TierL3: {
		"deterministic":     "F1",
		"probabilistic":     "F2",
		"overdetermination": "F3",
		"preemption":        "F3",
		"structural":        "F4",
		"temporal":          "F5",
		"epistemic":         "F6",
		"causal chain":      "F7",
	},
}

// legacyFallback is the documented code for unmapped legacy values, keyed by tier and label.
// An empty label entry applies to every label of the tier.
var legacyFallback = map[domain.Tier]map[domain.Label]string{
	domain.TierL1: {
		domain.LabelNo:        "W10",
		domain.LabelYes:       "S8",
		domain.LabelAmbiguous: "A",
	},
	domain.TierL2: {"": "T17"},
	domain.TierL3: {"": "F8"},
}

var (
	nonAlnum   = regexp.MustCompile(`[^a-z0-9]+`)
	codePrefix = regexp.MustCompile(`^\s*([A-Za-z]{1,2}[0-9]{0,2})(?:[.\-]([A-Za-z0-9]+))?\s*(?:[:)\-]|$)`)
)

// Normalizer promotes legacy free-text categories into registry cells.
type Normalizer struct {
	reg *Registry
}

// NewNormalizer binds the mapping table to a registry.
func NewNormalizer(reg *Registry) *Normalizer {
	return &Normalizer{reg: reg}
}

// Resolve maps ref to a registered cell that admits label.
func (n *Normalizer) Resolve(ref CategoryRef, label domain.Label) (Resolution, error) {
	if !ref.Tier.Valid() {
		return Resolution{}, fmt.Errorf("unknown tier %q", ref.Tier)
	}
	switch ref.Kind {
	case CategoryCoded:
		key := domain.CellKey{Tier: ref.Tier, Code: strings.TrimSpace(ref.Code), SubCode: strings.TrimSpace(ref.SubCode)}
		cell, ok := n.reg.Lookup(key)
		if !ok {
			return Resolution{}, fmt.Errorf("cell %s is not registered", key)
		}
		if !cell.Allows(label) {
			return Resolution{}, fmt.Errorf("cell %s does not admit label %q", key, label)
		}
		return Resolution{Cell: cell}, nil
	case CategoryLegacy:
		return n.resolveLegacy(ref, label)
	default:
		return Resolution{}, fmt.Errorf("category reference has no kind")
	}
}

func (n *Normalizer) resolveLegacy(ref CategoryRef, label domain.Label) (Resolution, error) {
	if code, sub, ok := leadingCode(ref.Text); ok {
		if cell, found := n.reg.Lookup(domain.CellKey{Tier: ref.Tier, Code: code, SubCode: sub}); found && cell.Allows(label) {
			return Resolution{Cell: cell}, nil
		}
	}

	if code, ok := legacyTable[ref.Tier][NormalizeLegacyText(ref.Text)]; ok {
		if cell, found := n.reg.Lookup(domain.CellKey{Tier: ref.Tier, Code: code}); found && cell.Allows(label) {
			return Resolution{Cell: cell}, nil
		}
	}

	code, ok := FallbackCode(ref.Tier, label)
	if !ok {
		return Resolution{}, fmt.Errorf("no fallback code for %s label %q", ref.Tier, label)
	}
	cell, found := n.reg.Lookup(domain.CellKey{Tier: ref.Tier, Code: code})
	if !found {
		return Resolution{}, fmt.Errorf("fallback cell %s/%s is not registered", ref.Tier, code)
	}
	if !cell.Allows(label) {
		return Resolution{}, fmt.Errorf("fallback cell %s does not admit label %q", cell.Key(), label)
	}
	return Resolution{Cell: cell, Fallback: true}, nil
}

// FallbackCode returns the documented catch-all code for unmapped legacy values.
func FallbackCode(tier domain.Tier, label domain.Label) (string, bool) {
	byLabel := legacyFallback[tier]
	if code, ok := byLabel[label]; ok {
		return code, true
	}
	code, ok := byLabel[""]
	return code, ok
}

// NormalizeLegacyText lower-cases and collapses punctuation so table lookups are stable.
func NormalizeLegacyText(text string) string {
	v := strings.ToLower(strings.TrimSpace(text))
	v = strings.ReplaceAll(v, "'", "")
	v = strings.ReplaceAll(v, "’", "")
	v = nonAlnum.ReplaceAllString(v, " ")
	return strings.TrimSpace(v)
}

func leadingCode(text string) (string, string, bool) {
	m := codePrefix.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	return strings.ToUpper(m[1]), m[2], true
}
