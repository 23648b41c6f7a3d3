package taxonomy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CaseCurator/internal/domain"
)

func spec(tier domain.Tier, code string, target int, labels ...domain.Label) CellSpec {
	return CellSpec{
		Cell:   domain.Cell{CellKey: domain.CellKey{Tier: tier, Code: code}, Polarities: labels},
		Target: target,
	}
}

func TestDefaultRegistry(t *testing.T) {
	t.Parallel()

	reg, err := Default(DefaultCorpusSize)
	require.NoError(t, err)

	assert.Equal(t, 50, reg.Total(domain.TierL1))
	assert.Equal(t, 300, reg.Total(domain.TierL2))
	assert.Equal(t, 150, reg.Total(domain.TierL3))

	assert.Len(t, reg.CellsForTier(domain.TierL1), 19)
	assert.Len(t, reg.CellsForTier(domain.TierL2), 17)
	assert.Len(t, reg.CellsForTier(domain.TierL3), 8)

	for _, tier := range domain.Tiers() {
		sum := 0
		for _, c := range reg.CellsForTier(tier) {
			sum += reg.TargetFor(c.Key())
		}
		assert.Equal(t, reg.Total(tier), sum, "tier %s", tier)
	}
}

func TestDefaultRegistryOrder(t *testing.T) {
	t.Parallel()

	reg, err := Default(DefaultCorpusSize)
	require.NoError(t, err)

	cells := reg.CellsForTier(domain.TierL1)
	require.NotEmpty(t, cells)
	assert.Equal(t, "W1", cells[0].Code)
	assert.Equal(t, "W2", cells[1].Code)
	assert.Equal(t, "W10", cells[9].Code)
	assert.Equal(t, "S1", cells[10].Code)
	assert.Equal(t, "S8", cells[17].Code)
	assert.Equal(t, "A", cells[18].Code)

	w2 := domain.CellKey{Tier: domain.TierL1, Code: "W2"}
	w10 := domain.CellKey{Tier: domain.TierL1, Code: "W10"}
	assert.Less(t, reg.Priority(w2), reg.Priority(w10))
}

func TestNewKeepsDeclaredPrefixOrder(t *testing.T) {
	t.Parallel()

	reg, err := New([]CellSpec{
		spec(domain.TierL1, "Z10", 1, domain.LabelNo),
		spec(domain.TierL1, "B1", 1, domain.LabelYes),
		spec(domain.TierL1, "Z2", 1, domain.LabelNo),
	}, map[domain.Tier]int{domain.TierL1: 3}, nil)
	require.NoError(t, err)

	var codes []string
	for _, c := range reg.Cells() {
		codes = append(codes, c.Code)
	}
	assert.Equal(t, []string{"Z2", "Z10", "B1"}, codes)
}

func TestNewRejectsMalformedDefinitions(t *testing.T) {
	t.Parallel()

	sub := func(code, subCode string, target int) CellSpec {
		s := spec(domain.TierL1, code, target, domain.LabelNo)
		s.SubCode = subCode
		return s
	}

	cases := []struct {
		name   string
		specs  []CellSpec
		totals map[domain.Tier]int
		rules  []PrefixRule
	}{
		{
			name:   "duplicate code",
			specs:  []CellSpec{spec(domain.TierL1, "A", 1, domain.LabelYes), spec(domain.TierL1, "A", 1, domain.LabelYes)},
			totals: map[domain.Tier]int{domain.TierL1: 2},
		},
		{
			name:   "bare code overlaps sub-codes",
			specs:  []CellSpec{sub("W1", "a", 1), sub("W1", "", 1)},
			totals: map[domain.Tier]int{domain.TierL1: 2},
		},
		{
			name:   "sum mismatch",
			specs:  []CellSpec{spec(domain.TierL1, "A", 3, domain.LabelYes), spec(domain.TierL1, "B", 2, domain.LabelNo)},
			totals: map[domain.Tier]int{domain.TierL1: 6},
		},
		{
			name:   "missing total",
			specs:  []CellSpec{spec(domain.TierL1, "A", 3, domain.LabelYes)},
			totals: map[domain.Tier]int{},
		},
		{
			name:   "polarity outside tier",
			specs:  []CellSpec{spec(domain.TierL2, "T1", 1, domain.LabelYes)},
			totals: map[domain.Tier]int{domain.TierL2: 1},
		},
		{
			name:   "negative target",
			specs:  []CellSpec{spec(domain.TierL1, "A", -1, domain.LabelYes)},
			totals: map[domain.Tier]int{domain.TierL1: -1},
		},
		{
			name:   "prefix family conflict",
			specs:  []CellSpec{spec(domain.TierL1, "W1", 1, domain.LabelYes)},
			totals: map[domain.Tier]int{domain.TierL1: 1},
			rules:  []PrefixRule{{Tier: domain.TierL1, Prefix: "W", Labels: []domain.Label{domain.LabelNo}}},
		},
		{
			name:  "total without cells",
			specs: []CellSpec{spec(domain.TierL1, "A", 1, domain.LabelYes)},
			totals: map[domain.Tier]int{
				domain.TierL1: 1,
				domain.TierL3: 4,
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tc.specs, tc.totals, tc.rules)
			require.Error(t, err)
			var regErr *RegistryError
			assert.True(t, errors.As(err, &regErr), "want RegistryError, got %T", err)
		})
	}
}

func TestCheckConsistency(t *testing.T) {
	t.Parallel()

	reg, err := Default(DefaultCorpusSize)
	require.NoError(t, err)

	w1 := domain.CellKey{Tier: domain.TierL1, Code: "W1"}
	s1 := domain.CellKey{Tier: domain.TierL1, Code: "S1"}
	f1 := domain.CellKey{Tier: domain.TierL3, Code: "F1"}

	assert.NoError(t, reg.CheckConsistency(w1, domain.LabelNo))
	assert.Error(t, reg.CheckConsistency(w1, domain.LabelYes))
	assert.NoError(t, reg.CheckConsistency(s1, domain.LabelYes))
	assert.Error(t, reg.CheckConsistency(s1, domain.LabelValid))
	assert.NoError(t, reg.CheckConsistency(f1, domain.LabelConditional))
	assert.Error(t, reg.CheckConsistency(domain.CellKey{Tier: domain.TierL2, Code: "T99"}, domain.LabelNo))
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	raw := []byte(`
totals:
  L1: 5
rules:
  - tier: L1
    prefix: W
    labels: [NO]
cells:
  - tier: L1
    code: W1
    polarities: [NO]
    target: 3
  - tier: L1
    code: S1
    subCode: a
    polarities: [YES]
    target: 2
`)
	reg, err := Parse(raw)
	require.NoError(t, err)

	cell, ok := reg.Lookup(domain.CellKey{Tier: domain.TierL1, Code: "S1", SubCode: "a"})
	require.True(t, ok)
	assert.Equal(t, []domain.Label{domain.LabelYes}, cell.Polarities)
	assert.Equal(t, 2, reg.TargetFor(cell.Key()))
	assert.Equal(t, 3, reg.TargetFor(domain.CellKey{Tier: domain.TierL1, Code: "W1"}))
}

func TestDistribute(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []int{50, 300, 150}, distribute(500, []int{10, 60, 30}))
	assert.Equal(t, []int{1, 1, 0}, distribute(2, []int{1, 1, 1}))
	assert.Equal(t, []int{0, 0}, distribute(0, []int{1, 1}))
}
