package taxonomy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"CaseCurator/internal/domain"
)

// RegistryError reports a malformed taxonomy definition. It is fatal at startup.
type RegistryError struct {
	Reason string
}

func (e *RegistryError) Error() string {
	return "taxonomy: " + e.Reason
}

func registryErr(format string, args ...any) error {
	return &RegistryError{Reason: fmt.Sprintf(format, args...)}
}

// CellSpec is one cell definition together with its target count.
type CellSpec struct {
	domain.Cell `yaml:",inline"`
	Target      int `yaml:"target"`
}

// PrefixRule binds a category-code prefix to the label family it may carry.
type PrefixRule struct {
	Tier   domain.Tier    `yaml:"tier"`
	Prefix string         `yaml:"prefix"`
	Labels []domain.Label `yaml:"labels"`
}

// Registry is the immutable lookup of taxonomy cells and their targets.
type Registry struct {
	cells   []domain.Cell
	index   map[domain.CellKey]int
	targets map[domain.CellKey]int
	totals  map[domain.Tier]int
	rules   []PrefixRule
}

// New validates the definition and builds a registry.
func New(specs []CellSpec, totals map[domain.Tier]int, rules []PrefixRule) (*Registry, error) {
	if len(specs) == 0 {
		return nil, registryErr("no cells defined")
	}

	for _, rule := range rules {
		if !rule.Tier.Valid() {
			return nil, registryErr("prefix rule %q: unknown tier %q", rule.Prefix, rule.Tier)
		}
		if rule.Prefix == "" || len(rule.Labels) == 0 {
			return nil, registryErr("prefix rule for %s needs a prefix and labels", rule.Tier)
		}
		for _, l := range rule.Labels {
			if !rule.Tier.Allows(l) {
				return nil, registryErr("prefix rule %s/%s: label %q outside tier vocabulary", rule.Tier, rule.Prefix, l)
			}
		}
	}

	reg := &Registry{
		index:   make(map[domain.CellKey]int, len(specs)),
		targets: make(map[domain.CellKey]int, len(specs)),
		totals:  make(map[domain.Tier]int, len(totals)),
		rules:   append([]PrefixRule(nil), rules...),
	}

	bare := map[domain.CellKey]bool{}
	withSub := map[domain.CellKey]bool{}
	sums := map[domain.Tier]int{}
	prefixes := map[string]int{}

	for _, spec := range specs {
		key := spec.Key()
		if !key.Tier.Valid() {
			return nil, registryErr("cell %s: unknown tier", key)
		}
		if strings.TrimSpace(key.Code) == "" || strings.Contains(key.Code, "/") || strings.Contains(key.SubCode, "/") {
			return nil, registryErr("cell %s: malformed code", key)
		}
		if _, dup := reg.targets[key]; dup {
			return nil, registryErr("cell %s declared twice", key)
		}
		parent := domain.CellKey{Tier: key.Tier, Code: key.Code}
		if key.SubCode == "" {
			if withSub[parent] {
				return nil, registryErr("cell %s overlaps sub-coded cells of the same code", key)
			}
			bare[parent] = true
		} else {
			if bare[parent] {
				return nil, registryErr("cell %s overlaps bare cell %s", key, parent)
			}
			withSub[parent] = true
		}
		if spec.Target < 0 {
			return nil, registryErr("cell %s: negative target %d", key, spec.Target)
		}
		if len(spec.Polarities) == 0 {
			return nil, registryErr("cell %s: no polarities declared", key)
		}
		seen := map[domain.Label]bool{}
		for _, l := range spec.Polarities {
			if !key.Tier.Allows(l) {
				return nil, registryErr("cell %s: polarity %q outside %s vocabulary", key, l, key.Tier)
			}
			if seen[l] {
				return nil, registryErr("cell %s: polarity %q repeated", key, l)
			}
			seen[l] = true
		}
		if family, ok := reg.family(key); ok {
			for _, l := range spec.Polarities {
				if !containsLabel(family, l) {
					return nil, registryErr("cell %s: polarity %q conflicts with its code prefix family", key, l)
				}
			}
		}

		prefix, _ := splitCode(key.Code)
		if _, ok := prefixes[prefix]; !ok {
			prefixes[prefix] = len(prefixes)
		}

		cell := domain.Cell{CellKey: key, Polarities: append([]domain.Label(nil), spec.Polarities...)}
		reg.cells = append(reg.cells, cell)
		reg.targets[key] = spec.Target
		sums[key.Tier] += spec.Target
	}

	for tier, sum := range sums {
		total, ok := totals[tier]
		if !ok {
			return nil, registryErr("tier %s has cells but no documented total", tier)
		}
		if sum != total {
			return nil, registryErr("tier %s targets sum to %d, documented total is %d", tier, sum, total)
		}
	}
	for tier, total := range totals {
		if _, ok := sums[tier]; !ok && total != 0 {
			return nil, registryErr("tier %s documents total %d but defines no cells", tier, total)
		}
		reg.totals[tier] = total
	}

	sort.SliceStable(reg.cells, func(i, j int) bool {
		return lessKey(prefixes, reg.cells[i].CellKey, reg.cells[j].CellKey)
	})
	for i, c := range reg.cells {
		reg.index[c.CellKey] = i
	}

	return reg, nil
}

// Cells returns every cell in priority order.
func (r *Registry) Cells() []domain.Cell {
	out := make([]domain.Cell, len(r.cells))
	copy(out, r.cells)
	return out
}

// CellsForTier returns the tier's cells in priority order.
func (r *Registry) CellsForTier(tier domain.Tier) []domain.Cell {
	var out []domain.Cell
	for _, c := range r.cells {
		if c.Tier == tier {
			out = append(out, c)
		}
	}
	return out
}

// Lookup resolves a key to its registered cell.
func (r *Registry) Lookup(key domain.CellKey) (domain.Cell, bool) {
	i, ok := r.index[key]
	if !ok {
		return domain.Cell{}, false
	}
	return r.cells[i], true
}

// TargetFor returns the fixed target of a cell, zero when unknown.
func (r *Registry) TargetFor(key domain.CellKey) int {
	return r.targets[key]
}

// Total returns the documented total for a tier.
func (r *Registry) Total(tier domain.Tier) int {
	return r.totals[tier]
}

// ValidPolarities returns the tier's outcome vocabulary.
func (r *Registry) ValidPolarities(tier domain.Tier) []domain.Label {
	return tier.Labels()
}

// Priority is the position of the cell in the fixed tie-break order.
func (r *Registry) Priority(key domain.CellKey) int {
	if i, ok := r.index[key]; ok {
		return i
	}
	return len(r.cells)
}

// LabelFamily returns the labels the code's prefix admits, using the longest matching rule.
func (r *Registry) LabelFamily(key domain.CellKey) ([]domain.Label, bool) {
	return r.family(key)
}

// CheckConsistency verifies that label is declared for the cell and matches its prefix family.
func (r *Registry) CheckConsistency(key domain.CellKey, label domain.Label) error {
	cell, ok := r.Lookup(key)
	if !ok {
		return fmt.Errorf("cell %s is not registered", key)
	}
	if !cell.Allows(label) {
		return fmt.Errorf("label %q is not among %s polarities %v", label, key, cell.Polarities)
	}
	if family, ok := r.family(key); ok && !containsLabel(family, label) {
		return fmt.Errorf("category prefix of %s admits %v, got %q", key, family, label)
	}
	return nil
}

func (r *Registry) family(key domain.CellKey) ([]domain.Label, bool) {
	var best *PrefixRule
	for i := range r.rules {
		rule := &r.rules[i]
		if rule.Tier != key.Tier || !strings.HasPrefix(key.Code, rule.Prefix) {
			continue
		}
		if best == nil || len(rule.Prefix) > len(best.Prefix) {
			best = rule
		}
	}
	if best == nil {
		return nil, false
	}
	return best.Labels, true
}

func containsLabel(labels []domain.Label, l domain.Label) bool {
	for _, v := range labels {
		if v == l {
			return true
		}
	}
	return false
}

// lessKey orders cells by tier, then by the position at which their code
// prefix was first declared, then numerically within the prefix.
func lessKey(prefixes map[string]int, a, b domain.CellKey) bool {
	if a.Tier != b.Tier {
		return a.Tier.Rank() < b.Tier.Rank()
	}
	if a.Code != b.Code {
		ap, _ := splitCode(a.Code)
		bp, _ := splitCode(b.Code)
		if ap != bp {
			return prefixes[ap] < prefixes[bp]
		}
		return naturalLess(a.Code, b.Code)
	}
	return naturalLess(a.SubCode, b.SubCode)
}

// naturalLess orders "W2" before "W10".
func naturalLess(a, b string) bool {
	ap, an := splitCode(a)
	bp, bn := splitCode(b)
	if ap != bp {
		return ap < bp
	}
	if an != bn {
		return an < bn
	}
	return a < b
}

func splitCode(code string) (string, int) {
	i := len(code)
	for i > 0 && code[i-1] >= '0' && code[i-1] <= '9' {
		i--
	}
	if i == len(code) {
		return code, -1
	}
	n, err := strconv.Atoi(code[i:])
	if err != nil {
		return code, -1
	}
	return code[:i], n
}
