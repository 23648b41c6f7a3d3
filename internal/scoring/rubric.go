package scoring

import "CaseCurator/internal/domain"

// Dimension names shared by the judge prompt and stored sub-scores.
const (
	DimScenarioClarity = "scenario_clarity"
	DimHiddenQuestion  = "hidden_question"
	DimResolutionA     = "resolution_a"
	DimResolutionB     = "resolution_b"
	DimWiseAnswer      = "wise_answer"
	DimDifficulty      = "difficulty"
	DimLabel           = "label"
	DimCategory        = "category"
)

// MaxPoints is the fixed scale every rubric sums to.
const MaxPoints = 10.0

// Dimension is one weighted rubric line.
type Dimension struct {
	Name       string
	Weight     float64
	Resolution bool
}

// Rubric is the fixed scoring sheet of a tier.
type Rubric struct {
	Tier       domain.Tier
	Dimensions []Dimension
}

// Max sums the weights.
func (r Rubric) Max() float64 {
	total := 0.0
	for _, d := range r.Dimensions {
		total += d.Weight
	}
	return total
}

var conditionalRubric = []Dimension{
	{Name: DimScenarioClarity, Weight: 1},
	{Name: DimHiddenQuestion, Weight: 1},
	{Name: DimResolutionA, Weight: 1.5, Resolution: true},
	{Name: DimResolutionB, Weight: 1.5, Resolution: true},
	{Name: DimWiseAnswer, Weight: 2},
	{Name: DimDifficulty, Weight: 1},
	{Name: DimLabel, Weight: 1},
	{Name: DimCategory, Weight: 1},
}

var singlePolarityRubric = []Dimension{
	{Name: DimScenarioClarity, Weight: 1.5},
	{Name: DimHiddenQuestion, Weight: 1.5},
	{Name: DimWiseAnswer, Weight: 3},
	{Name: DimDifficulty, Weight: 1},
	{Name: DimLabel, Weight: 1.5},
	{Name: DimCategory, Weight: 1.5},
}

// RubricFor returns the rubric of tier. Tiers without an ambiguous label carry no
// resolution dimensions.
func RubricFor(tier domain.Tier) Rubric {
	dims := conditionalRubric
	if _, ok := tier.AmbiguousLabel(); !ok {
		dims = singlePolarityRubric
	}
	return Rubric{Tier: tier, Dimensions: append([]Dimension(nil), dims...)}
}
