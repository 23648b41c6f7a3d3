package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedSchema(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateJSON(Seed, []byte(`{"topic":"t","subdomain":"s","entities":["a"]}`)))

	err := ValidateJSON(Seed, []byte(`{"topic":"t","subdomain":"s","entities":[]}`))
	require.Error(t, err)
	assert.Equal(t, "entities", Field(err))
}

func TestCaseSchema(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateJSON(Case, []byte(`{"scenario":"x","label":"NO","conditional_resolutions":null}`)))
	require.NoError(t, ValidateJSON(Case, []byte(`{"scenario":"x","label":"NO","conditional_resolutions":["a",null]}`)))
	require.Error(t, ValidateJSON(Case, []byte(`{"label":"NO"}`)))
	require.Error(t, ValidateJSON(Case, []byte(`{"scenario":"x","label":"NO","conditional_resolutions":"a"}`)))
}

func TestJudgeSchema(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateJSON(Judge, []byte(`{"verdict":"approved","confidence":0.9,"scores":{"clarity":1}}`)))

	err := ValidateJSON(Judge, []byte(`{"verdict":"approved","confidence":3,"scores":{}}`))
	require.Error(t, err)
	assert.Equal(t, "confidence", Field(err))
}

func TestValidateJSONRejectsGarbage(t *testing.T) {
	t.Parallel()

	require.Error(t, ValidateJSON(Judge, []byte(`not json`)))
	assert.Equal(t, "", Field(assert.AnError))
}

func TestStripFences(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"bare":            `  {"a":1} `,
		"tagged fence":    "```json\n{\"a\":1}\n```",
		"untagged fence":  "```\n{\"a\":1}\n```",
		"single line":     "```json{\"a\":1}```",
		"trailing spaces": "```json\n  {\"a\":1}  \n```  \n",
	}
	for name, in := range cases {
		assert.Equal(t, `{"a":1}`, StripFences(in), name)
	}
	assert.Equal(t, `{"a":"x`+"```"+`y"}`, StripFences(`{"a":"x`+"```"+`y"}`))
}
