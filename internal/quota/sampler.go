package quota

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"CaseCurator/internal/domain"
)

var (
	// ErrQuotaSatisfied signals that every eligible cell is at or above target.
	ErrQuotaSatisfied = errors.New("quota satisfied")
	// ErrUnsupported signals that the constraints admit no supported cell at all.
	ErrUnsupported = errors.New("no supported cell for constraints")
	// ErrInvalidCount signals a request for fewer than one case.
	ErrInvalidCount = errors.New("case count must be at least 1")
)

// Constraints optionally force the tier, the polarity or the exact cell.
type Constraints struct {
	Tier     domain.Tier
	Polarity domain.Label
	Cell     *domain.CellKey
}

func (c Constraints) admits(cell domain.Cell) bool {
	if len(cell.Polarities) == 0 {
		return false
	}
	if c.Tier != "" && cell.Tier != c.Tier {
		return false
	}
	if c.Cell != nil && cell.Key() != *c.Cell {
		return false
	}
	if c.Polarity != "" && !cell.Allows(c.Polarity) {
		return false
	}
	return true
}

// Selection is the cell and target label the next item should fill.
type Selection struct {
	Cell    domain.Cell
	Label   domain.Label
	Deficit int
}

// Sampler picks the next cell to fill. The only state it keeps is round-robin cursors.
type Sampler struct {
	mu          sync.Mutex
	tieCursors  map[string]int
	labelCursor map[domain.CellKey]int
}

// NewSampler builds a sampler with fresh cursors.
func NewSampler() *Sampler {
	return &Sampler{
		tieCursors:  map[string]int{},
		labelCursor: map[domain.CellKey]int{},
	}
}

// Next selects among eligible cells with the largest deficit.
// Ties follow priority order first, then rotate across repeated calls.
func (s *Sampler) Next(needs Needs, c Constraints) (Selection, error) {
	eligible := 0
	best := 0
	var candidates []Need

	for _, n := range needs {
		if !c.admits(n.Cell) {
			continue
		}
		eligible++
		if n.Target <= 0 {
			continue
		}
		d := n.Deficit()
		if d == 0 {
			continue
		}
		switch {
		case d > best:
			best = d
			candidates = append(candidates[:0], n)
		case d == best:
			candidates = append(candidates, n)
		}
	}

	if eligible == 0 {
		return Selection{}, fmt.Errorf("%w: tier=%q polarity=%q", ErrUnsupported, c.Tier, c.Polarity)
	}
	if len(candidates) == 0 {
		return Selection{}, ErrQuotaSatisfied
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	group := tieGroup(candidates)
	pos := s.tieCursors[group] % len(candidates)
	s.tieCursors[group]++
	chosen := candidates[pos]

	return Selection{
		Cell:    chosen.Cell,
		Label:   s.pickLabel(chosen.Cell, c.Polarity),
		Deficit: best,
	}, nil
}

// Plan selects n cells, bumping a local copy of the counts after each pick so the
// run balances toward the target distribution. The updated snapshot is returned.
// On ErrQuotaSatisfied the partial plan is returned alongside the error.
func (s *Sampler) Plan(needs Needs, n int, c Constraints) ([]Selection, Needs, error) {
	if n < 1 {
		return nil, needs, fmt.Errorf("%w: got %d", ErrInvalidCount, n)
	}
	local := needs.Clone()
	out := make([]Selection, 0, n)
	for i := 0; i < n; i++ {
		sel, err := s.Next(local, c)
		if err != nil {
			return out, local, err
		}
		local.Increment(sel.Cell.Key())
		out = append(out, sel)
	}
	return out, local, nil
}

func (s *Sampler) pickLabel(cell domain.Cell, forced domain.Label) domain.Label {
	if forced != "" {
		return forced
	}
	if len(cell.Polarities) == 1 {
		return cell.Polarities[0]
	}
	key := cell.Key()
	i := s.labelCursor[key] % len(cell.Polarities)
	s.labelCursor[key]++
	return cell.Polarities[i]
}

func tieGroup(candidates []Need) string {
	keys := make([]string, len(candidates))
	for i, n := range candidates {
		keys[i] = n.Cell.Key().String()
	}
	return strings.Join(keys, ",")
}
