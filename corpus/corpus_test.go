package corpus

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/go-seqlabel/internal/testutil"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	x, y := testutil.TaggedCorpus()
	require.NoError(t, Validate(x, y))
	assert.True(t, errors.Is(Validate(x, y[:2]), ErrShapeMismatch))
	assert.True(t, errors.Is(Validate([][]string{{"a", "b"}}, [][]string{{"O"}}), ErrShapeMismatch))
}

func TestSplit(t *testing.T) {
	x, y := testutil.TaggedCorpus()
	tx, ty, vx, vy, err := Split(x, y, 0.3)
	require.NoError(t, err)
	assert.Len(t, tx, 5)
	assert.Len(t, ty, 5)
	assert.Len(t, vx, 2)
	assert.Equal(t, y[5:], vy)
	_, _, _, _, err = Split(x, y, 1)
	assert.Error(t, err)
}

func TestCoNLL(t *testing.T) {
	input := "-DOCSTART- O\n\nEU B-ORG\nrejects O\nGerman B-MISC\n\n\nPeter NNP B-PER\nBlackburn NNP I-PER\n"
	x, y, err := ReadCoNLL(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"EU", "rejects", "German"}, {"Peter", "Blackburn"}}, x)
	assert.Equal(t, [][]string{{"B-ORG", "O", "B-MISC"}, {"B-PER", "I-PER"}}, y)

	var buf bytes.Buffer
	require.NoError(t, WriteCoNLL(&buf, x, y))
	assert.Equal(t, "EU\tB-ORG\nrejects\tO\nGerman\tB-MISC\n\nPeter\tB-PER\nBlackburn\tI-PER\n\n", buf.String())

	x, _, err = ReadCoNLL(strings.NewReader("caf\u0065\u0301 O\n， O\n"))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"caf\u00e9", "，"}}, x)

	_, _, err = ReadCoNLL(strings.NewReader("lonely\n"))
	assert.ErrorContains(t, err, "line 1")
	assert.Error(t, WriteCoNLL(&buf, [][]string{{"a b"}}, [][]string{{"O"}}))
}

func TestCoNLLFile(t *testing.T) {
	x, y := testutil.TaggedCorpus()
	p := filepath.Join(t.TempDir(), "train.conll")
	require.NoError(t, WriteCoNLLFile(p, x, y))
	gotX, gotY, err := ReadCoNLLFile(p)
	require.NoError(t, err)
	assert.Equal(t, x, gotX)
	assert.Equal(t, y, gotY)
}

func TestParquet(t *testing.T) {
	x, y := testutil.TaggedCorpus()
	p := filepath.Join(t.TempDir(), "train.parquet")
	require.NoError(t, WriteParquet(p, x, y))
	gotX, gotY, err := ReadParquet(p)
	require.NoError(t, err)
	assert.Equal(t, x, gotX)
	assert.Equal(t, y, gotY)

	assert.True(t, errors.Is(WriteParquet(p, x, y[:1]), ErrShapeMismatch))
	_, _, err = ReadParquet(filepath.Join(t.TempDir(), "missing.parquet"))
	assert.Error(t, err)
}
