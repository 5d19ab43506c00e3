// Package config holds the application configuration of the seqlabel command, read by viper
// from a YAML file and SEQLABEL_* environment variables.
package config

import (
	"path/filepath"
	"strings"

	"github.com/gomlx/go-seqlabel/sequence"
	"github.com/gomlx/go-seqlabel/tagger"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix of the environment variables: model.architecture is read from
// SEQLABEL_MODEL_ARCHITECTURE.
const EnvPrefix = "SEQLABEL"

// Embedding kinds.
const (
	EmbeddingCustom      = "custom"
	EmbeddingWord        = "word"
	EmbeddingTransformer = "transformer"
)

// Config of the application.
type Config struct {
	Model     ModelConfig     `mapstructure:"model"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Train     TrainConfig     `mapstructure:"train"`
	Hub       HubConfig       `mapstructure:"hub"`
}

// ModelConfig configures the tagger network.
type ModelConfig struct {
	Architecture   string `mapstructure:"architecture"`
	SequenceLength int    `mapstructure:"sequenceLength"`
	LSTMUnits      int    `mapstructure:"lstmUnits"`
	ConvFilters    int    `mapstructure:"convFilters"`
	KernelSize     int    `mapstructure:"kernelSize"`
	Seed           uint64 `mapstructure:"seed"`
}

// EmbeddingConfig selects the embedding.
type EmbeddingConfig struct {
	// Kind is one of custom, word or transformer.
	Kind string `mapstructure:"kind"`

	// Path of the word2vec file (word), or the directory or repository id of the checkpoint
	// (transformer).
	Path string `mapstructure:"path"`

	// Size and MinCount of custom embeddings.
	Size     int `mapstructure:"size"`
	MinCount int `mapstructure:"minCount"`

	// Limit on the number of word vectors read, 0 for all.
	Limit int `mapstructure:"limit"`

	// Trainable fine-tunes word and transformer tables. Custom embeddings are always trained.
	Trainable bool `mapstructure:"trainable"`
}

// TrainConfig configures training runs.
type TrainConfig struct {
	Epochs          int     `mapstructure:"epochs"`
	BatchSize       int     `mapstructure:"batchSize"`
	LearningRate    float64 `mapstructure:"learningRate"`
	ValidationSplit float64 `mapstructure:"validationSplit"`
}

// HubConfig configures the download of remote checkpoints.
type HubConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Token    string `mapstructure:"token"`
	CacheDir string `mapstructure:"cacheDir"`
}

func setDefaults(v *viper.Viper) {
	hp := tagger.DefaultHyperparameters()
	v.SetDefault("model.architecture", string(tagger.BLSTMCRF))
	v.SetDefault("model.sequenceLength", hp.SequenceLength)
	v.SetDefault("model.lstmUnits", hp.LSTMUnits)
	v.SetDefault("model.convFilters", hp.ConvFilters)
	v.SetDefault("model.kernelSize", hp.KernelSize)
	v.SetDefault("model.seed", hp.Seed)

	v.SetDefault("embedding.kind", EmbeddingCustom)
	v.SetDefault("embedding.path", "")
	v.SetDefault("embedding.size", hp.EmbeddingSize)
	v.SetDefault("embedding.minCount", hp.MinCount)
	v.SetDefault("embedding.limit", 0)
	v.SetDefault("embedding.trainable", false)

	v.SetDefault("train.epochs", 5)
	v.SetDefault("train.batchSize", 64)
	v.SetDefault("train.learningRate", 0.001)
	v.SetDefault("train.validationSplit", 0.0)

	v.SetDefault("hub.endpoint", "")
	v.SetDefault("hub.token", "")
	v.SetDefault("hub.cacheDir", "")
}

// Load reads the configuration from configPath or, if empty, from a "seqlabel.yaml" file in the
// current directory or in $HOME/.config/seqlabel, if there is one. Environment variables
// override the file, and defaults fill what neither sets.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("$HOME", ".config", "seqlabel"))
		v.SetConfigName("seqlabel")
		v.SetConfigType("yaml")
	}
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "unable to decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports malformed values, wrapping sequence.ErrInvalidConfig.
func (c *Config) Validate() error {
	if _, err := tagger.ParseArchitecture(c.Model.Architecture); err != nil {
		return err
	}
	switch c.Embedding.Kind {
	case EmbeddingCustom:
	case EmbeddingWord, EmbeddingTransformer:
		if c.Embedding.Path == "" {
			return errors.Wrapf(sequence.ErrInvalidConfig, "embedding.path is required for %s embeddings", c.Embedding.Kind)
		}
	default:
		return errors.Wrapf(sequence.ErrInvalidConfig, "unknown embedding kind %q", c.Embedding.Kind)
	}
	if c.Embedding.Limit < 0 {
		return errors.Wrapf(sequence.ErrInvalidConfig, "embedding.limit must be >= 0, got %d", c.Embedding.Limit)
	}
	if c.Train.Epochs <= 0 || c.Train.BatchSize <= 0 || c.Train.LearningRate <= 0 {
		return errors.Wrapf(sequence.ErrInvalidConfig, "train epochs, batch size and learning rate must be positive, got %d, %d and %g",
			c.Train.Epochs, c.Train.BatchSize, c.Train.LearningRate)
	}
	if c.Train.ValidationSplit < 0 || c.Train.ValidationSplit >= 1 {
		return errors.Wrapf(sequence.ErrInvalidConfig, "train.validationSplit must be in [0, 1), got %g", c.Train.ValidationSplit)
	}
	hp := c.Hyperparameters()
	return hp.Validate()
}

// Hyperparameters of the tagger.
func (c *Config) Hyperparameters() tagger.Hyperparameters {
	return tagger.Hyperparameters{
		ConvFilters:    c.Model.ConvFilters,
		KernelSize:     c.Model.KernelSize,
		LSTMUnits:      c.Model.LSTMUnits,
		SequenceLength: c.Model.SequenceLength,
		EmbeddingSize:  c.Embedding.Size,
		MinCount:       c.Embedding.MinCount,
		Seed:           c.Model.Seed,
	}
}

// TaggerOptions returns the options creating a tagger with the configured hyperparameters.
func (c *Config) TaggerOptions() []tagger.Option {
	hp := c.Hyperparameters()
	return []tagger.Option{
		tagger.WithConvFilters(hp.ConvFilters),
		tagger.WithKernelSize(hp.KernelSize),
		tagger.WithLSTMUnits(hp.LSTMUnits),
		tagger.WithSequenceLength(hp.SequenceLength),
		tagger.WithEmbeddingSize(hp.EmbeddingSize),
		tagger.WithMinCount(hp.MinCount),
		tagger.WithSeed(hp.Seed),
	}
}

// FitOptions returns the training options, without validation data.
func (c *Config) FitOptions() tagger.FitOptions {
	return tagger.FitOptions{
		Epochs:       c.Train.Epochs,
		BatchSize:    c.Train.BatchSize,
		LearningRate: c.Train.LearningRate,
	}
}
