package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/go-seqlabel/corpus"
	"github.com/gomlx/go-seqlabel/internal/testutil"
	"github.com/gomlx/go-seqlabel/segment"
	"github.com/gomlx/go-seqlabel/tagger"
	"github.com/gomlx/go-seqlabel/tokenizers/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	require.NoError(t, app.RunContext(context.Background(), append([]string{"seqlabel"}, args...)))
	return out.String()
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	x, y := testutil.TaggedCorpus()
	dataset := filepath.Join(dir, "train.conll")
	require.NoError(t, corpus.WriteCoNLLFile(dataset, x, y))
	cfgPath := filepath.Join(dir, "seqlabel.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
model:
  architecture: blstm
  sequenceLength: 15
  lstmUnits: 4
embedding:
  size: 8
train:
  epochs: 1
  validationSplit: 0.3
`), 0o644))

	out := run(t, "vocab", "--input", dataset, "--output", filepath.Join(dir, "tokens.json"))
	assert.Contains(t, out, "7 sentences")
	assert.Contains(t, out, "7 labels")
	assert.FileExists(t, filepath.Join(dir, "tokens.json"))

	modelDir := filepath.Join(dir, "model")
	out = run(t, "--config", cfgPath, "train", "--input", dataset, "--output", modelDir, "--architecture", "blstm_crf")
	assert.Contains(t, out, "saved to")
	assert.Contains(t, out, "micro avg")
	for _, name := range []string{tagger.ModelFile, tagger.LabelsFile, tagger.TokensFile, tagger.WeightsFile} {
		assert.FileExists(t, filepath.Join(modelDir, name))
	}
	checkpoint, err := tagger.ReadCheckpoint(modelDir)
	require.NoError(t, err)
	assert.Equal(t, tagger.BLSTMCRF, checkpoint.Architecture)
	assert.Equal(t, 15, checkpoint.Hyperparameters.SequenceLength)

	out = run(t, "predict", "--model", modelDir, "--text", "美国政府", "--scores")
	assert.Contains(t, out, "美\t")
	assert.Contains(t, out, "府\t")

	// Text cut at prediction time finds the punctuation of the training data.
	model, err := tagger.Load(modelDir)
	require.NoError(t, err)
	tokens := model.Embedding().Vocabulary()
	unknown, err := tokens.SpecialTokenID(api.TokUnknown)
	require.NoError(t, err)
	for _, token := range segment.Chars("我们，以书；“非常”。") {
		assert.NotEqual(t, unknown, tokens.ID(token), token)
	}

	out = run(t, "evaluate", "--model", modelDir, "--input", dataset)
	assert.Contains(t, out, "token accuracy")
}

func TestReadDatasetParquet(t *testing.T) {
	x, y := testutil.TaggedCorpus()
	p := filepath.Join(t.TempDir(), "train.parquet")
	require.NoError(t, corpus.WriteParquet(p, x, y))
	gotX, gotY, err := readDataset(p)
	require.NoError(t, err)
	assert.Equal(t, x, gotX)
	assert.Equal(t, y, gotY)
}
