package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CaseCurator/internal/domain"
)

func TestLegacyTableTargetsRegisteredCells(t *testing.T) {
	t.Parallel()

	reg, err := Default(DefaultCorpusSize)
	require.NoError(t, err)

	for tier, table := range legacyTable {
		for text, code := range table {
			_, ok := reg.Lookup(domain.CellKey{Tier: tier, Code: code})
			assert.True(t, ok, "%s %q maps to unregistered code %s", tier, text, code)
		}
	}
	for tier, byLabel := range legacyFallback {
		for label, code := range byLabel {
			cell, ok := reg.Lookup(domain.CellKey{Tier: tier, Code: code})
			require.True(t, ok, "fallback %s/%s not registered", tier, code)
			if label != "" {
				assert.True(t, cell.Allows(label), "fallback %s does not admit %s", code, label)
			}
		}
	}
}

func TestNormalizerResolve(t *testing.T) {
	t.Parallel()

	reg, err := Default(DefaultCorpusSize)
	require.NoError(t, err)
	n := NewNormalizer(reg)

	cases := []struct {
		name     string
		ref      CategoryRef
		label    domain.Label
		wantCode string
		fallback bool
		wantErr  bool
	}{
		{name: "coded", ref: Coded(domain.TierL2, "T4", ""), label: domain.LabelNo, wantCode: "T4"},
		{name: "coded unknown", ref: Coded(domain.TierL2, "T40", ""), label: domain.LabelNo, wantErr: true},
		{name: "coded wrong label", ref: Coded(domain.TierL1, "W1", ""), label: domain.LabelYes, wantErr: true},
		{name: "legacy text", ref: Legacy(domain.TierL2, "Collider Bias"), label: domain.LabelNo, wantCode: "T4"},
		{name: "legacy punctuation", ref: Legacy(domain.TierL2, "Simpson's Paradox"), label: domain.LabelNo, wantCode: "T5"},
		{name: "legacy code prefix", ref: Legacy(domain.TierL2, "T12: time-varying"), label: domain.LabelNo, wantCode: "T12"},
		{name: "legacy unmapped", ref: Legacy(domain.TierL2, "something new"), label: domain.LabelNo, wantCode: "T17", fallback: true},
		{name: "legacy label mismatch falls back by label", ref: Legacy(domain.TierL1, "confounding"), label: domain.LabelYes, wantCode: "S8", fallback: true},
		{name: "legacy l1 ambiguous", ref: Legacy(domain.TierL1, "???"), label: domain.LabelAmbiguous, wantCode: "A", fallback: true},
		{name: "legacy l3", ref: Legacy(domain.TierL3, "Overdetermination"), label: domain.LabelConditional, wantCode: "F3"},
		{name: "bad tier", ref: Legacy("L9", "x"), label: domain.LabelNo, wantErr: true},
		{name: "legacy label outside tier", ref: Legacy(domain.TierL2, "confounding"), label: domain.LabelYes, wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res, err := n.Resolve(tc.ref, tc.label)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantCode, res.Cell.Code)
			assert.Equal(t, tc.fallback, res.Fallback)
		})
	}
}

func TestNormalizeLegacyText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "goodharts law", NormalizeLegacyText("Goodhart's  Law"))
	assert.Equal(t, "time varying confounding", NormalizeLegacyText("Time-Varying Confounding"))
}
