package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/go-seqlabel/safetensors"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// WriteCheckpoint writes a tiny transformer checkpoint to dir: a WordPiece vocabulary of 9 tokens
// with 4-dimensional embeddings, row i filled with i. The tokenizer is a tokenizer.json, or a
// vocab.txt if withTokenizerJSON is false.
func WriteCheckpoint(t testing.TB, dir string, withTokenizerJSON bool) {
	t.Helper()
	tokens := []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "[MASK]", "hello", "world", "test", "##ing"}
	if withTokenizerJSON {
		var vocabEntries []string
		for id, token := range tokens {
			vocabEntries = append(vocabEntries, fmt.Sprintf("%q: %d", token, id))
		}
		content := `{
  "added_tokens": [{"id": 0, "content": "[PAD]", "special": true}, {"id": 1, "content": "[UNK]", "special": true},
    {"id": 2, "content": "[CLS]", "special": true}, {"id": 3, "content": "[SEP]", "special": true}],
  "normalizer": {"type": "BertNormalizer", "lowercase": true, "clean_text": true, "handle_chinese_chars": true},
  "pre_tokenizer": {"type": "BertPreTokenizer"},
  "decoder": {"type": "WordPiece", "prefix": "##"},
  "model": {"type": "WordPiece", "unk_token": "[UNK]", "continuing_subword_prefix": "##", "vocab": {` +
			strings.Join(vocabEntries, ", ") + `}}}`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "tokenizer.json"), []byte(content), 0644))
	} else {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "vocab.txt"), []byte(strings.Join(tokens, "\n")+"\n"), 0644))
	}
	table := mat.NewDense(len(tokens), 4, nil)
	for i := range tokens {
		for j := 0; j < 4; j++ {
			table.Set(i, j, float64(i))
		}
	}
	require.NoError(t, safetensors.Write(filepath.Join(dir, "model.safetensors"), map[string]*mat.Dense{
		"bert.embeddings.word_embeddings.weight": table,
		"bert.pooler.dense.bias":                 mat.NewDense(1, 4, nil),
	}, nil))
}
