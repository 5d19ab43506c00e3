package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/go-seqlabel/sequence"
	"github.com/gomlx/go-seqlabel/tagger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	p := filepath.Join(t.TempDir(), "seqlabel.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, string(tagger.BLSTMCRF), cfg.Model.Architecture)
	assert.Equal(t, tagger.DefaultHyperparameters(), cfg.Hyperparameters())
	assert.Equal(t, EmbeddingCustom, cfg.Embedding.Kind)
	assert.Equal(t, 5, cfg.Train.Epochs)
	assert.Equal(t, 64, cfg.FitOptions().BatchSize)
}

func TestLoadFile(t *testing.T) {
	p := writeConfig(t, `
model:
  architecture: cnn_lstm
  sequenceLength: 32
embedding:
  kind: word
  path: vectors.txt
  limit: 1000
train:
  epochs: 3
  learningRate: 0.01
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "cnn_lstm", cfg.Model.Architecture)
	assert.Equal(t, 32, cfg.Model.SequenceLength)
	assert.Equal(t, 100, cfg.Model.LSTMUnits)
	assert.Equal(t, EmbeddingWord, cfg.Embedding.Kind)
	assert.Equal(t, "vectors.txt", cfg.Embedding.Path)
	assert.Equal(t, 1000, cfg.Embedding.Limit)
	assert.Equal(t, 3, cfg.FitOptions().Epochs)
	assert.Equal(t, 0.01, cfg.FitOptions().LearningRate)
	assert.Len(t, cfg.TaggerOptions(), 7)
}

func TestLoadEnv(t *testing.T) {
	p := writeConfig(t, "model:\n  architecture: blstm\n")
	t.Setenv("SEQLABEL_MODEL_ARCHITECTURE", "cnn_lstm")
	t.Setenv("SEQLABEL_TRAIN_EPOCHS", "9")
	t.Setenv("SEQLABEL_HUB_TOKEN", "secret")
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "cnn_lstm", cfg.Model.Architecture)
	assert.Equal(t, 9, cfg.Train.Epochs)
	assert.Equal(t, "secret", cfg.Hub.Token)
}

func TestValidate(t *testing.T) {
	for name, content := range map[string]string{
		"architecture":     "model:\n  architecture: gru\n",
		"sequence length":  "model:\n  sequenceLength: 0\n",
		"no room":          "model:\n  sequenceLength: 2\n",
		"embedding kind":   "embedding:\n  kind: glove\n",
		"missing path":     "embedding:\n  kind: transformer\n",
		"min count":        "embedding:\n  minCount: -1\n",
		"epochs":           "train:\n  epochs: 0\n",
		"validation split": "train:\n  validationSplit: 1.5\n",
	} {
		_, err := Load(writeConfig(t, content))
		assert.True(t, errors.Is(err, sequence.ErrInvalidConfig), name)
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
