package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CaseCurator/internal/domain"
	"CaseCurator/internal/quota"
)

func TestCorrelationRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []domain.CellKey{
		{Tier: domain.TierL1, Code: "W3"},
		{Tier: domain.TierL3, Code: "F2", SubCode: "b"},
	}
	for _, key := range cases {
		id, err := EncodeCorrelation("run-7", key, 17)
		require.NoError(t, err)

		got, err := DecodeCorrelation(id)
		require.NoError(t, err)
		assert.Equal(t, Correlation{RunID: "run-7", Cell: key, Seq: 17}, got)
	}
}

func TestCorrelationRejectsMalformed(t *testing.T) {
	t.Parallel()

	_, err := EncodeCorrelation("a:b", domain.CellKey{Tier: domain.TierL1, Code: "W1"}, 1)
	require.Error(t, err)
	_, err = EncodeCorrelation("run", domain.CellKey{Tier: "L9", Code: "W1"}, 1)
	require.Error(t, err)

	for _, id := range []string{"", "run:L1:W1:00001", "run:L9:W1::00001", "run:L1:::00001", "run:L1:W1::x"} {
		_, err := DecodeCorrelation(id)
		assert.Error(t, err, id)
	}
}

func testSeed() domain.ScenarioSeed {
	return domain.ScenarioSeed{ID: "s1", Topic: "tutoring", Subdomain: "education", Entities: []string{"School A"}, Timeframe: "2020"}
}

func TestBuildAmbiguousAsksForResolutions(t *testing.T) {
	t.Parallel()

	cell := domain.Cell{CellKey: domain.CellKey{Tier: domain.TierL1, Code: "A"}, Polarities: []domain.Label{domain.LabelAmbiguous}}
	b := NewBuilder(Options{Model: "gpt-test", Temperature: 0.7})

	req, err := b.Build("run", 3, quota.Selection{Cell: cell, Label: domain.LabelAmbiguous}, testSeed())
	require.NoError(t, err)

	assert.Equal(t, "run:L1:A::00003", req.CorrelationID)
	assert.Equal(t, "gpt-test", req.Prompt.Model)
	assert.True(t, req.Prompt.JSONOutput)
	assert.Contains(t, req.Prompt.User, "Required label: AMBIGUOUS")
	assert.Contains(t, req.Prompt.User, "answer_if_condition_1")
	assert.Contains(t, req.Prompt.User, "School A")
}

func TestBuildRejectsLabelOutsideCell(t *testing.T) {
	t.Parallel()

	cell := domain.Cell{CellKey: domain.CellKey{Tier: domain.TierL2, Code: "T1"}, Polarities: []domain.Label{domain.LabelNo}}
	_, err := NewBuilder(Options{}).Build("run", 1, quota.Selection{Cell: cell, Label: domain.LabelYes}, testSeed())
	require.Error(t, err)

	req, err := NewBuilder(Options{}).Build("run", 1, quota.Selection{Cell: cell, Label: domain.LabelNo}, testSeed())
	require.NoError(t, err)
	assert.NotContains(t, req.Prompt.User, "conditional_resolutions")
}
