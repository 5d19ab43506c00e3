package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	config, err := ParseConfig([]byte(`{
		"bos_token": "<s>",
		"eos_token": {"content": "</s>", "lstrip": false},
		"unk_token": "[UNK]",
		"pad_token": null,
		"model_max_length": 512
	}`))
	require.NoError(t, err)
	assert.Equal(t, "<s>", config.BosToken)
	assert.Equal(t, "</s>", config.EosToken)
	assert.Equal(t, "[UNK]", config.UnkToken)
	assert.Empty(t, config.PadToken)
	assert.Empty(t, config.MaskToken)
}

func TestParseConfigInvalid(t *testing.T) {
	_, err := ParseConfig([]byte(`{"bos_token": 12}`))
	require.Error(t, err)
	_, err = ParseConfig([]byte(`not json`))
	require.Error(t, err)
}

func TestSpecialTokenString(t *testing.T) {
	assert.Equal(t, "pad", TokPad.String())
	assert.Equal(t, "unknown", TokUnknown.String())
	assert.Equal(t, "SpecialToken(42)", SpecialToken(42).String())
}
