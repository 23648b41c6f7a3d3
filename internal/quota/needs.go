package quota

import (
	"CaseCurator/internal/domain"
	"CaseCurator/internal/ports"
	"CaseCurator/internal/taxonomy"
)

// Need is the quota state of one cell.
type Need struct {
	Cell    domain.Cell
	Target  int
	Current int
}

// Deficit is max(target-current, 0).
func (n Need) Deficit() int {
	if d := n.Target - n.Current; d > 0 {
		return d
	}
	return 0
}

// Needs is an explicit snapshot of per-cell quota state, in registry priority order.
// It is passed into and returned from sampling calls rather than held globally.
type Needs []Need

// NeedsFromCounts builds a snapshot from persisted per-cell counts.
func NeedsFromCounts(reg *taxonomy.Registry, counts map[domain.CellKey]int) Needs {
	cells := reg.Cells()
	out := make(Needs, 0, len(cells))
	for _, c := range cells {
		out = append(out, Need{
			Cell:    c,
			Target:  reg.TargetFor(c.Key()),
			Current: counts[c.Key()],
		})
	}
	return out
}

// Clone returns an independent copy.
func (n Needs) Clone() Needs {
	out := make(Needs, len(n))
	copy(out, n)
	return out
}

// Increment bumps the current count of key in place.
func (n Needs) Increment(key domain.CellKey) {
	for i := range n {
		if n[i].Cell.Key() == key {
			n[i].Current++
			return
		}
	}
}

// Get returns the need for key.
func (n Needs) Get(key domain.CellKey) (Need, bool) {
	for _, need := range n {
		if need.Cell.Key() == key {
			return need, true
		}
	}
	return Need{}, false
}

// Remaining sums deficits across cells.
func (n Needs) Remaining() int {
	total := 0
	for _, need := range n {
		total += need.Deficit()
	}
	return total
}

// TierProgress is the aggregate of one tier.
type TierProgress struct {
	Tier    domain.Tier `json:"tier"`
	Target  int         `json:"target"`
	Current int         `json:"current"`
	Deficit int         `json:"deficit"`
}

// ByTier aggregates the snapshot per tier in tier order.
func (n Needs) ByTier() []TierProgress {
	agg := map[domain.Tier]*TierProgress{}
	for _, need := range n {
		p, ok := agg[need.Cell.Tier]
		if !ok {
			p = &TierProgress{Tier: need.Cell.Tier}
			agg[need.Cell.Tier] = p
		}
		p.Target += need.Target
		p.Current += need.Current
		p.Deficit += need.Deficit()
	}
	var out []TierProgress
	for _, t := range domain.Tiers() {
		if p, ok := agg[t]; ok {
			out = append(out, *p)
		}
	}
	return out
}

// CountMap flattens grouped store counts into a lookup keyed by cell.
func CountMap(rows []ports.CellCount) map[domain.CellKey]int {
	out := make(map[domain.CellKey]int, len(rows))
	for _, r := range rows {
		out[r.Key] += r.Count
	}
	return out
}
