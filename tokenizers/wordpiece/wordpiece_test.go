package wordpiece

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/go-seqlabel/hub"
	"github.com/gomlx/go-seqlabel/tokenizers/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testVocab = []string{
	"[PAD]", "[UNK]", "[CLS]", "[SEP]", "[MASK]",
	"hello", "world", "test", "##ing", "play", "##ed", ",",
}

func writeVocab(t *testing.T) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(strings.Join(testVocab, "\n")+"\n"), 0644))
	return dir
}

func TestWordPiece(t *testing.T) {
	tok, err := New(nil, hub.NewLocal(writeVocab(t)))
	require.NoError(t, err)
	assert.Equal(t, len(testVocab), tok.VocabSize())

	assert.Equal(t, []int{5, 6}, tok.Encode("Hello world"))
	assert.Equal(t, []int{7, 8}, tok.Encode("testing"))
	assert.Equal(t, []int{9, 10, 11, 5}, tok.Encode("played, hello"))
	assert.Empty(t, tok.Encode("  "))
	assert.Equal(t, "testing world", tok.Decode([]int{7, 8, 6}))

	id, found := tok.TokenToID("world")
	require.True(t, found)
	assert.Equal(t, 6, id)
	_, found = tok.TokenToID("worlds")
	assert.False(t, found)

	for token, want := range map[api.SpecialToken]int{
		api.TokPad: 0, api.TokUnknown: 1, api.TokBeginningOfSentence: 2,
		api.TokEndOfSentence: 3, api.TokMask: 4, api.TokClassification: 2,
	} {
		got, err := tok.SpecialTokenID(token)
		require.NoError(t, err, token.String())
		assert.Equal(t, want, got, token.String())
	}
	_, err = tok.SpecialTokenID(api.TokSpecialTokensCount)
	assert.Error(t, err)
}

func TestWordPieceConfig(t *testing.T) {
	dir := writeVocab(t)
	tok, err := NewFromFile(&api.Config{PadToken: "[MASK]", BosToken: "hello"}, filepath.Join(dir, FileName))
	require.NoError(t, err)
	pad, err := tok.SpecialTokenID(api.TokPad)
	require.NoError(t, err)
	assert.Equal(t, 4, pad)
	bos, err := tok.SpecialTokenID(api.TokBeginningOfSentence)
	require.NoError(t, err)
	assert.Equal(t, 5, bos)
	cls, err := tok.SpecialTokenID(api.TokClassification)
	require.NoError(t, err)
	assert.Equal(t, 2, cls)
}

func TestWordPieceMissingVocab(t *testing.T) {
	_, err := New(nil, hub.NewLocal(t.TempDir()))
	assert.ErrorContains(t, err, "not found")
}
