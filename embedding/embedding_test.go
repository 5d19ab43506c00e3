package embedding

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gomlx/go-seqlabel/hub"
	"github.com/gomlx/go-seqlabel/internal/testutil"
	"github.com/gomlx/go-seqlabel/sequence"
	"github.com/gomlx/go-seqlabel/vocab"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const testSequenceLength = 30

var testSentence = []string{"我", "想", "看", "电影", "%%##!$#%"}

func TestCustom(t *testing.T) {
	e, err := NewCustom("empty_embedding", testSequenceLength, 100)
	require.NoError(t, err)
	assert.False(t, e.IsBuilt())
	assert.Equal(t, 0, e.TokenCount())
	_, err = e.Encode(testSentence)
	assert.True(t, errors.Is(err, sequence.ErrNotBuilt))
	_, err = e.Embed(testSentence)
	assert.True(t, errors.Is(err, sequence.ErrNotBuilt))

	require.NoError(t, e.BuildVocabulary(testutil.CharCorpus(), 2))
	assert.True(t, e.IsBuilt())
	assert.Equal(t, 33, e.TokenCount())
	assert.Equal(t, vocab.Reserved[:], e.TokenVocabulary().Tokens()[:vocab.NumReserved])

	ids, err := e.Tokenize(testSentence)
	require.NoError(t, err)
	assert.Len(t, ids, len(testSentence)+2)
	assert.Equal(t, vocab.UNKID, ids[len(ids)-2])

	embedded, err := e.Embed(testSentence)
	require.NoError(t, err)
	rows, cols := embedded.Dims()
	assert.Equal(t, testSequenceLength, rows)
	assert.Equal(t, 100, cols)
	assert.True(t, e.Trainable())

	batch, err := EmbedBatch(e, [][]string{testSentence})
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.True(t, mat.Equal(embedded, batch[0]))
}

func TestCustomSetTable(t *testing.T) {
	e, err := NewCustom("c", 5, 2)
	require.NoError(t, err)
	assert.Error(t, e.SetTable(mat.NewDense(5, 2, nil)))
	require.NoError(t, e.BuildVocabulary([][]string{{"a", "b"}}, 1))
	assert.Error(t, e.SetTable(mat.NewDense(5, 3, nil)))

	table := mat.NewDense(6, 2, []float64{0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5})
	require.NoError(t, e.SetTable(table))
	v, err := e.Lookup([]int{5, 4})
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 5, 4, 4}, v.RawMatrix().Data)
	_, err = e.Lookup([]int{6})
	assert.ErrorContains(t, err, "out of range")
}

func TestCustomInvalidConfig(t *testing.T) {
	_, err := NewCustom("c", 0, 10)
	assert.True(t, errors.Is(err, sequence.ErrInvalidConfig))
	_, err = NewCustom("c", 10, 0)
	assert.True(t, errors.Is(err, sequence.ErrInvalidConfig))

	e, err := NewCustom("c", 10, 4)
	require.NoError(t, err)
	err = e.BuildVocabulary(testutil.CharCorpus(), -1)
	assert.True(t, errors.Is(err, vocab.ErrInvalidConfig))
}

func TestTwoHead(t *testing.T) {
	corpus := testutil.CharCorpus()
	e, err := NewTwoHead("empty_embedding", [2]int{testSequenceLength, testSequenceLength}, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, e.TokenCount())
	_, err = e.EncodePair(testSentence, testSentence)
	assert.True(t, errors.Is(err, sequence.ErrNotBuilt))

	require.NoError(t, e.BuildVocabulary([2][][]string{corpus[:2], corpus[2:]}, 2))
	assert.Equal(t, 33, e.TokenCount())
	assert.Equal(t, 2*testSequenceLength, e.SequenceLength())

	second := []string{"我", "不", "看", "电影", "%%##!$#%"}
	ids, err := e.EncodePair(testSentence, second)
	require.NoError(t, err)
	assert.Len(t, ids, 2*testSequenceLength)

	embedded, err := e.EmbedPair(testSentence, second)
	require.NoError(t, err)
	rows, cols := embedded.Dims()
	assert.Equal(t, 2*testSequenceLength, rows)
	assert.Equal(t, 100, cols)

	batch, err := e.EncodePairBatch([][]string{testSentence}, [][]string{second})
	require.NoError(t, err)
	assert.Equal(t, [][]int{ids}, batch)
}

func writeWordVectors(t *testing.T, dir, content string) string {
	p := filepath.Join(dir, "vectors.txt")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestWord(t *testing.T) {
	dir := t.TempDir()
	writeWordVectors(t, dir, strings.Join([]string{
		"5 3",
		"我 0.5 1 1.5",
		"想 1 2 3",
		"broken 1 2",
		"看 -1 -2 -3",
		"想 9 9 9",
		"电影 0 0 1",
	}, "\n"))
	e, err := LoadWord(hub.NewLocal(dir), "vectors.txt", testSequenceLength)
	require.NoError(t, err)
	assert.Equal(t, 3, e.EmbeddingSize())
	assert.Equal(t, vocab.NumReserved+4, e.TokenCount())
	assert.Equal(t, []string{vocab.Pad, vocab.BOS, vocab.EOS, vocab.UNK, "我", "想", "看", "电影"}, e.TokenVocabulary().Tokens())
	assert.False(t, e.Trainable())

	assert.Equal(t, []float64{0, 0, 0}, e.Table().RawRowView(vocab.PadID))
	assert.Equal(t, []float64{1, 2, 3}, e.Table().RawRowView(5))

	ids, err := e.Tokenize(testSentence)
	require.NoError(t, err)
	assert.Equal(t, []int{vocab.BOSID, 4, 5, 6, 7, vocab.UNKID, vocab.EOSID}, ids)

	embedded, err := e.Embed(testSentence)
	require.NoError(t, err)
	rows, cols := embedded.Dims()
	assert.Equal(t, testSequenceLength, rows)
	assert.Equal(t, 3, cols)
	assert.Equal(t, []float64{0.5, 1, 1.5}, embedded.RawRowView(1))
}

func TestWordLimit(t *testing.T) {
	p := writeWordVectors(t, t.TempDir(), "a 1 2\nb 3 4\nc 5 6\n")
	e, err := LoadWordFile(p, 10, WithLimit(2), WithTrainable(true))
	require.NoError(t, err)
	assert.Equal(t, vocab.NumReserved+2, e.TokenCount())
	assert.Equal(t, 2, e.EmbeddingSize())
	assert.True(t, e.Trainable())

	_, err = LoadWordFile(writeWordVectors(t, t.TempDir(), ""), 10)
	assert.ErrorContains(t, err, "no word vectors")
	_, err = LoadWord(hub.NewLocal(t.TempDir()), "missing.txt", 10)
	assert.Error(t, err)
}

func TestTransformer(t *testing.T) {
	for _, withTokenizerJSON := range []bool{true, false} {
		t.Run(fmt.Sprintf("tokenizer.json=%v", withTokenizerJSON), func(t *testing.T) {
			dir := t.TempDir()
			testutil.WriteCheckpoint(t, dir, withTokenizerJSON)
			e, err := LoadTransformer(hub.NewLocal(dir), 6)
			require.NoError(t, err)
			assert.Equal(t, 9, e.TokenCount())
			assert.Equal(t, 4, e.EmbeddingSize())
			assert.False(t, e.Trainable())
			assert.Equal(t, dir, e.Name())

			s := e.Encoder().Sentinels()
			assert.Equal(t, sequence.Sentinels{Pad: 0, Begin: 2, End: 3, Unknown: 1}, s)

			// "testing" is not a whole token: its first piece is used.
			ids, err := e.Encode([]string{"hello", "testing", "xyz"})
			require.NoError(t, err)
			assert.Equal(t, []int{2, 5, 7, 1, 3, 0}, ids)

			embedded, err := e.Embed([]string{"world"})
			require.NoError(t, err)
			assert.Equal(t, []float64{6, 6, 6, 6}, embedded.RawRowView(1))
		})
	}
}

func TestTransformerMissingFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadTransformer(hub.NewLocal(dir), 6)
	assert.ErrorContains(t, err, "no tokenizer")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "vocab.txt"), []byte("[PAD]\n[UNK]\n[CLS]\n[SEP]\n"), 0644))
	_, err = LoadTransformer(hub.NewLocal(dir), 6)
	assert.ErrorContains(t, err, "safetensors")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("custom")
	assert.True(t, errors.Is(err, ErrNotRegistered))

	var created atomic.Int32
	create := func() (Embedding, error) {
		created.Add(1)
		e, err := NewCustom("custom", 10, 4)
		if err != nil {
			return nil, err
		}
		return e, e.BuildVocabulary(testutil.CharCorpus(), 1)
	}
	var wg sync.WaitGroup
	results := make([]Embedding, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := r.GetOrCreate("custom", create)
			assert.NoError(t, err)
			results[i] = e
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), created.Load())
	for _, e := range results {
		assert.Same(t, results[0], e)
	}

	_, err = r.GetOrCreate("failing", func() (Embedding, error) { return nil, errors.New("boom") })
	assert.ErrorContains(t, err, "boom")
	_, err = r.Get("failing")
	assert.True(t, errors.Is(err, ErrNotRegistered))

	word, err := NewWord("w", []string{"a"}, mat.NewDense(1, 2, []float64{1, 2}), 5)
	require.NoError(t, err)
	r.Register("word", word)
	got, err := r.Get("word")
	require.NoError(t, err)
	assert.Same(t, word, got)
	assert.Equal(t, []string{"custom", "word"}, r.Names())

	require.NoError(t, r.Close())
	assert.Empty(t, r.Names())
}
