package taxonomy

import (
	"fmt"

	"CaseCurator/internal/domain"
)

// DefaultCorpusSize is the documented corpus total split 10:60:30 across tiers.
const DefaultCorpusSize = 500

var tierShares = map[domain.Tier]int{
	domain.TierL1: 10,
	domain.TierL2: 60,
	domain.TierL3: 30,
}

type codeGroup struct {
	tier   domain.Tier
	prefix string
	count  int
	weight int
	labels []domain.Label
}

// The last code of each family is its catch-all and doubles as the legacy fallback.
var defaultGroups = []codeGroup{
	{tier: domain.TierL1, prefix: "W", count: 10, weight: 5, labels: []domain.Label{domain.LabelNo}},
	{tier: domain.TierL1, prefix: "S", count: 8, weight: 3, labels: []domain.Label{domain.LabelYes}},
	{tier: domain.TierL1, prefix: "A", count: 1, weight: 2, labels: []domain.Label{domain.LabelAmbiguous}},
	{tier: domain.TierL2, prefix: "T", count: 17, weight: 1, labels: []domain.Label{domain.LabelNo}},
	{tier: domain.TierL3, prefix: "F", count: 8, weight: 1, labels: []domain.Label{domain.LabelValid, domain.LabelInvalid, domain.LabelConditional}},
}

// DefaultRules returns the prefix families of the built-in taxonomy.
func DefaultRules() []PrefixRule {
	rules := make([]PrefixRule, 0, len(defaultGroups))
	for _, g := range defaultGroups {
		rules = append(rules, PrefixRule{Tier: g.tier, Prefix: g.prefix, Labels: g.labels})
	}
	return rules
}

// DefaultTotals splits corpusSize 10:60:30 across tiers.
func DefaultTotals(corpusSize int) map[domain.Tier]int {
	tiers := domain.Tiers()
	weights := make([]int, len(tiers))
	for i, t := range tiers {
		weights[i] = tierShares[t]
	}
	parts := distribute(corpusSize, weights)
	out := make(map[domain.Tier]int, len(tiers))
	for i, t := range tiers {
		out[t] = parts[i]
	}
	return out
}

// DefaultSpecs builds the built-in cell definitions for a corpus size.
func DefaultSpecs(corpusSize int) []CellSpec {
	totals := DefaultTotals(corpusSize)

	byTier := map[domain.Tier][]codeGroup{}
	for _, g := range defaultGroups {
		byTier[g.tier] = append(byTier[g.tier], g)
	}

	var specs []CellSpec
	for _, tier := range domain.Tiers() {
		groups := byTier[tier]
		weights := make([]int, len(groups))
		for i, g := range groups {
			weights[i] = g.weight
		}
		groupTotals := distribute(totals[tier], weights)
		for gi, g := range groups {
			perCell := distribute(groupTotals[gi], ones(g.count))
			for i := 0; i < g.count; i++ {
				code := g.prefix
				if g.count > 1 {
					code = fmt.Sprintf("%s%d", g.prefix, i+1)
				}
				specs = append(specs, CellSpec{
					Cell: domain.Cell{
						CellKey:    domain.CellKey{Tier: tier, Code: code},
						Polarities: append([]domain.Label(nil), g.labels...),
					},
					Target: perCell[i],
				})
			}
		}
	}
	return specs
}

// Default builds the built-in registry.
func Default(corpusSize int) (*Registry, error) {
	if corpusSize <= 0 {
		corpusSize = DefaultCorpusSize
	}
	return New(DefaultSpecs(corpusSize), DefaultTotals(corpusSize), DefaultRules())
}

// distribute splits total proportionally to weights using largest remainders.
// Ties on the remainder go to the earlier slot.
func distribute(total int, weights []int) []int {
	out := make([]int, len(weights))
	sum := 0
	for _, w := range weights {
		sum += w
	}
	if sum == 0 || total <= 0 {
		return out
	}
	type rem struct {
		idx  int
		frac int
	}
	rems := make([]rem, len(weights))
	assigned := 0
	for i, w := range weights {
		out[i] = total * w / sum
		assigned += out[i]
		rems[i] = rem{idx: i, frac: total * w % sum}
	}
	for left := total - assigned; left > 0; left-- {
		best := 0
		for i := range rems {
			if rems[i].frac > rems[best].frac {
				best = i
			}
		}
		out[rems[best].idx]++
		rems[best].frac = -1
	}
	return out
}

func ones(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
