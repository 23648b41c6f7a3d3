package quota

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CaseCurator/internal/domain"
	"CaseCurator/internal/ports"
	"CaseCurator/internal/taxonomy"
)

func cellSpec(tier domain.Tier, code string, target int, labels ...domain.Label) taxonomy.CellSpec {
	return taxonomy.CellSpec{
		Cell:   domain.Cell{CellKey: domain.CellKey{Tier: tier, Code: code}, Polarities: labels},
		Target: target,
	}
}

func twoCellRegistry(t *testing.T) *taxonomy.Registry {
	t.Helper()
	reg, err := taxonomy.New([]taxonomy.CellSpec{
		cellSpec(domain.TierL2, "T1", 3, domain.LabelNo),
		cellSpec(domain.TierL2, "T2", 2, domain.LabelNo),
	}, map[domain.Tier]int{domain.TierL2: 5}, nil)
	require.NoError(t, err)
	return reg
}

func key(tier domain.Tier, code string) domain.CellKey {
	return domain.CellKey{Tier: tier, Code: code}
}

func TestNextPicksLargestDeficit(t *testing.T) {
	t.Parallel()

	reg := twoCellRegistry(t)
	needs := NeedsFromCounts(reg, map[domain.CellKey]int{
		key(domain.TierL2, "T1"): 3,
		key(domain.TierL2, "T2"): 1,
	})

	sel, err := NewSampler().Next(needs, Constraints{})
	require.NoError(t, err)
	assert.Equal(t, "T2", sel.Cell.Code)
	assert.Equal(t, 1, sel.Deficit)
	assert.Equal(t, domain.LabelNo, sel.Label)
}

func TestNextSatisfiedIsIdempotent(t *testing.T) {
	t.Parallel()

	reg := twoCellRegistry(t)
	needs := NeedsFromCounts(reg, map[domain.CellKey]int{
		key(domain.TierL2, "T1"): 5,
		key(domain.TierL2, "T2"): 2,
	})
	s := NewSampler()
	for i := 0; i < 3; i++ {
		_, err := s.Next(needs, Constraints{})
		require.ErrorIs(t, err, ErrQuotaSatisfied)
	}
	assert.Equal(t, 0, needs.Remaining())
}

func TestNextNeverPicksZeroTarget(t *testing.T) {
	t.Parallel()

	reg, err := taxonomy.New([]taxonomy.CellSpec{
		cellSpec(domain.TierL2, "T1", 0, domain.LabelNo),
		cellSpec(domain.TierL2, "T2", 4, domain.LabelNo),
	}, map[domain.Tier]int{domain.TierL2: 4}, nil)
	require.NoError(t, err)

	plan, _, err := NewSampler().Plan(NeedsFromCounts(reg, nil), 10, Constraints{})
	require.ErrorIs(t, err, ErrQuotaSatisfied)
	require.Len(t, plan, 4)
	for _, sel := range plan {
		assert.Equal(t, "T2", sel.Cell.Code)
	}
}

func TestTiesRotateAcrossCalls(t *testing.T) {
	t.Parallel()

	reg, err := taxonomy.New([]taxonomy.CellSpec{
		cellSpec(domain.TierL2, "T1", 2, domain.LabelNo),
		cellSpec(domain.TierL2, "T2", 2, domain.LabelNo),
		cellSpec(domain.TierL2, "T3", 2, domain.LabelNo),
	}, map[domain.Tier]int{domain.TierL2: 6}, nil)
	require.NoError(t, err)

	needs := NeedsFromCounts(reg, nil)
	s := NewSampler()
	var codes []string
	for i := 0; i < 4; i++ {
		sel, err := s.Next(needs, Constraints{})
		require.NoError(t, err)
		codes = append(codes, sel.Cell.Code)
	}
	assert.Equal(t, []string{"T1", "T2", "T3", "T1"}, codes)
}

func TestPlanBalancesAndReturnsUpdatedNeeds(t *testing.T) {
	t.Parallel()

	reg, err := taxonomy.Default(taxonomy.DefaultCorpusSize)
	require.NoError(t, err)

	needs := NeedsFromCounts(reg, nil)
	plan, after, err := NewSampler().Plan(needs, 40, Constraints{Tier: domain.TierL3})
	require.NoError(t, err)
	require.Len(t, plan, 40)

	assert.Equal(t, 0, needs[0].Current, "input snapshot must not be mutated")

	perCell := map[string]int{}
	for _, sel := range plan {
		assert.Equal(t, domain.TierL3, sel.Cell.Tier)
		assert.True(t, sel.Cell.Allows(sel.Label))
		perCell[sel.Cell.Code]++
	}
	assert.Len(t, perCell, 8)

	lo, hi := -1, 0
	for _, n := range after {
		if n.Cell.Tier != domain.TierL3 {
			continue
		}
		d := n.Deficit()
		if lo < 0 || d < lo {
			lo = d
		}
		if d > hi {
			hi = d
		}
	}
	assert.LessOrEqual(t, hi-lo, 1, "remaining deficits should stay level")

	var l3 TierProgress
	for _, p := range after.ByTier() {
		if p.Tier == domain.TierL3 {
			l3 = p
		}
	}
	assert.Equal(t, 40, l3.Current)
	assert.Equal(t, 110, l3.Deficit)
}

func TestPlanRejectsNonPositiveCount(t *testing.T) {
	t.Parallel()

	needs := NeedsFromCounts(twoCellRegistry(t), nil)
	for _, n := range []int{0, -1} {
		plan, after, err := NewSampler().Plan(needs, n, Constraints{})
		require.ErrorIs(t, err, ErrInvalidCount, "n=%d", n)
		assert.Empty(t, plan)
		assert.Equal(t, needs.Remaining(), after.Remaining())
	}
}

func TestLabelRotationAndForcedPolarity(t *testing.T) {
	t.Parallel()

	reg, err := taxonomy.New([]taxonomy.CellSpec{
		cellSpec(domain.TierL3, "F1", 6, domain.LabelValid, domain.LabelInvalid, domain.LabelConditional),
	}, map[domain.Tier]int{domain.TierL3: 6}, nil)
	require.NoError(t, err)

	plan, _, err := NewSampler().Plan(NeedsFromCounts(reg, nil), 3, Constraints{})
	require.NoError(t, err)
	assert.Equal(t, domain.LabelValid, plan[0].Label)
	assert.Equal(t, domain.LabelInvalid, plan[1].Label)
	assert.Equal(t, domain.LabelConditional, plan[2].Label)

	forced, _, err := NewSampler().Plan(NeedsFromCounts(reg, nil), 2, Constraints{Polarity: domain.LabelConditional})
	require.NoError(t, err)
	for _, sel := range forced {
		assert.Equal(t, domain.LabelConditional, sel.Label)
	}
}

func TestUnsupportedCombinationExcluded(t *testing.T) {
	t.Parallel()

	reg, err := taxonomy.Default(taxonomy.DefaultCorpusSize)
	require.NoError(t, err)

	_, err = NewSampler().Next(NeedsFromCounts(reg, nil), Constraints{Tier: domain.TierL2, Polarity: domain.LabelYes})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupported))

	sel, err := NewSampler().Next(NeedsFromCounts(reg, nil), Constraints{Tier: domain.TierL1, Polarity: domain.LabelYes})
	require.NoError(t, err)
	assert.Equal(t, domain.LabelYes, sel.Label)
	assert.Equal(t, "S", sel.Cell.Code[:1])
}

func TestForcedCell(t *testing.T) {
	t.Parallel()

	reg := twoCellRegistry(t)
	forced := key(domain.TierL2, "T1")
	needs := NeedsFromCounts(reg, map[domain.CellKey]int{forced: 3})

	_, err := NewSampler().Next(needs, Constraints{Cell: &forced})
	require.ErrorIs(t, err, ErrQuotaSatisfied)

	other := key(domain.TierL2, "T2")
	sel, err := NewSampler().Next(needs, Constraints{Cell: &other})
	require.NoError(t, err)
	assert.Equal(t, other, sel.Cell.Key())
}

func TestCountMap(t *testing.T) {
	t.Parallel()

	m := CountMap([]ports.CellCount{
		{Key: key(domain.TierL1, "W1"), Count: 2},
		{Key: key(domain.TierL1, "W1"), Count: 1},
		{Key: key(domain.TierL2, "T3"), Count: 4},
	})
	assert.Equal(t, 3, m[key(domain.TierL1, "W1")])
	assert.Equal(t, 4, m[key(domain.TierL2, "T3")])
}
