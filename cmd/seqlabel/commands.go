package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/go-seqlabel/config"
	"github.com/gomlx/go-seqlabel/corpus"
	"github.com/gomlx/go-seqlabel/embedding"
	"github.com/gomlx/go-seqlabel/hub"
	"github.com/gomlx/go-seqlabel/segment"
	"github.com/gomlx/go-seqlabel/tagger"
	"github.com/gomlx/go-seqlabel/vocab"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	entityStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

// readDataset reads a parquet file or, for any other extension, a CoNLL file.
func readDataset(path string) (x, y [][]string, err error) {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return corpus.ReadParquet(path)
	}
	return corpus.ReadCoNLLFile(path)
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("architecture") {
		cfg.Model.Architecture = c.String("architecture")
	}
	if c.IsSet("epochs") {
		cfg.Train.Epochs = c.Int("epochs")
	}
	return cfg, cfg.Validate()
}

func newRepo(cfg *config.Config, path string) *hub.Repo {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return hub.NewLocal(path)
	}
	repo := hub.New(path)
	if cfg.Hub.Endpoint != "" {
		repo = repo.WithEndpoint(cfg.Hub.Endpoint)
	}
	if cfg.Hub.Token != "" {
		repo = repo.WithAuth(cfg.Hub.Token)
	}
	if cfg.Hub.CacheDir != "" {
		repo = repo.WithCacheDir(cfg.Hub.CacheDir)
	}
	return repo
}

// newEmbedding returns the configured embedding, or nil for a custom one, which the tagger
// builds from the training data.
func newEmbedding(cfg *config.Config) (embedding.Embedding, error) {
	opts := []embedding.Option{
		embedding.WithLimit(cfg.Embedding.Limit),
		embedding.WithTrainable(cfg.Embedding.Trainable),
		embedding.WithSeed(cfg.Model.Seed),
	}
	switch cfg.Embedding.Kind {
	case config.EmbeddingWord:
		return embedding.LoadWordFile(cfg.Embedding.Path, cfg.Model.SequenceLength, opts...)
	case config.EmbeddingTransformer:
		return embedding.LoadTransformer(newRepo(cfg, cfg.Embedding.Path), cfg.Model.SequenceLength, opts...)
	}
	return nil, nil
}

func vocabCommand() *cli.Command {
	return &cli.Command{
		Name:  "vocab",
		Usage: "build the token and label vocabularies of a dataset",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "dataset file", Required: true},
			&cli.IntFlag{Name: "min-count", Value: 1, Usage: "minimum occurrences of the kept tokens"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "token vocabulary JSON file to write"},
			&cli.StringFlag{Name: "labels-output", Usage: "label vocabulary JSON file to write"},
		},
		Action: func(c *cli.Context) error {
			x, y, err := readDataset(c.String("input"))
			if err != nil {
				return err
			}
			tokens, err := vocab.Build(x, c.Int("min-count"))
			if err != nil {
				return err
			}
			labels, err := vocab.BuildLabels(y)
			if err != nil {
				return err
			}
			if out := c.String("output"); out != "" {
				if err := tokens.Save(out); err != nil {
					return err
				}
			}
			if out := c.String("labels-output"); out != "" {
				if err := labels.Save(out); err != nil {
					return err
				}
			}
			_, _ = fmt.Fprintf(c.App.Writer, "%s %d sentences, %d tokens (%d with sentinels), %d labels: %s\n",
				titleStyle.Render("vocabulary:"), len(x), tokens.Len()-vocab.NumReserved, tokens.Len(),
				labels.Len()-vocab.NumReserved, strings.Join(labels.Tokens()[vocab.NumReserved:], " "))
			return nil
		},
	}
}

func trainCommand() *cli.Command {
	return &cli.Command{
		Name:  "train",
		Usage: "train a tagger and save it",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "training dataset file", Required: true},
			&cli.StringFlag{Name: "valid", Usage: "validation dataset file, overrides train.validationSplit"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "directory to save the model to", Required: true},
			&cli.StringFlag{Name: "architecture", Aliases: []string{"a"}, Usage: "cnn_lstm, blstm or blstm_crf"},
			&cli.IntFlag{Name: "epochs", Aliases: []string{"e"}, Usage: "training epochs"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			x, y, err := readDataset(c.String("input"))
			if err != nil {
				return err
			}
			opts := cfg.FitOptions()
			if valid := c.String("valid"); valid != "" {
				opts.ValidX, opts.ValidY, err = readDataset(valid)
				if err != nil {
					return err
				}
			} else if cfg.Train.ValidationSplit > 0 {
				x, y, opts.ValidX, opts.ValidY, err = corpus.Split(x, y, cfg.Train.ValidationSplit)
				if err != nil {
					return err
				}
			}

			emb, err := newEmbedding(cfg)
			if err != nil {
				return err
			}
			arch, err := tagger.ParseArchitecture(cfg.Model.Architecture)
			if err != nil {
				return err
			}
			model, err := tagger.New(arch, emb, cfg.TaggerOptions()...)
			if err != nil {
				return err
			}
			klog.Infof("training %s model %s on %d sentences", arch, model.ID, len(x))
			history, err := model.Fit(c.Context, x, y, opts)
			if err != nil {
				return err
			}
			if err := model.Save(c.String("output")); err != nil {
				return err
			}
			last := history[len(history)-1]
			_, _ = fmt.Fprintf(c.App.Writer, "%s model %s saved to %s (final loss %.4f)\n",
				titleStyle.Render("trained:"), model.ID, c.String("output"), last.Loss)
			if len(opts.ValidX) > 0 {
				report, err := model.Evaluate(opts.ValidX, opts.ValidY)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(c.App.Writer, report)
			}
			return nil
		},
	}
}

// readSentences returns the sentences to tag: the --text flag, or the lines of --input.
func readSentences(c *cli.Context) ([]string, error) {
	if text := c.String("text"); text != "" {
		return []string{text}, nil
	}
	var r io.Reader = os.Stdin
	if path := c.String("input"); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open %q", path)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	var sentences []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			sentences = append(sentences, line)
		}
	}
	return sentences, errors.Wrap(scanner.Err(), "failed to read sentences")
}

func renderTagged(tokens, labels []string) string {
	var sb strings.Builder
	for i, token := range tokens {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if labels[i] == tagger.OutsideLabel {
			sb.WriteString(token)
			continue
		}
		sb.WriteString(entityStyle.Render(token) + dimStyle.Render("/"+labels[i]))
	}
	return sb.String()
}

func predictCommand() *cli.Command {
	return &cli.Command{
		Name:  "predict",
		Usage: "tag sentences, given with --text or one per line in --input (or stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "saved model directory", Required: true},
			&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "sentence to tag"},
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "file with one sentence per line, - for stdin"},
			&cli.BoolFlag{Name: "words", Usage: "segment sentences in words instead of characters"},
			&cli.StringSliceFlag{Name: "dict", Usage: "dictionary files of the word segmenter"},
			&cli.BoolFlag{Name: "scores", Usage: "print the probability of each predicted label"},
		},
		Action: func(c *cli.Context) error {
			model, err := tagger.Load(c.String("model"))
			if err != nil {
				return err
			}
			sentences, err := readSentences(c)
			if err != nil {
				return err
			}
			cut := segment.Chars
			if c.Bool("words") {
				words, err := segment.NewWords(c.StringSlice("dict")...)
				if err != nil {
					return err
				}
				cut = words.Cut
			}
			batch := make([][]string, len(sentences))
			for i, sentence := range sentences {
				batch[i] = cut(sentence)
			}
			if c.Bool("scores") {
				for _, tokens := range batch {
					scores, err := model.PredictWithScores(tokens)
					if err != nil {
						return err
					}
					for _, s := range scores {
						_, _ = fmt.Fprintf(c.App.Writer, "%s\t%s\t%.4f\n", s.Token, s.Label, s.Scores[s.Label])
					}
					_, _ = fmt.Fprintln(c.App.Writer)
				}
				return nil
			}
			predicted, err := model.PredictBatch(c.Context, batch)
			if err != nil {
				return err
			}
			for i, tokens := range batch {
				_, _ = fmt.Fprintln(c.App.Writer, renderTagged(tokens, predicted[i]))
			}
			return nil
		},
	}
}

func evaluateCommand() *cli.Command {
	return &cli.Command{
		Name:  "evaluate",
		Usage: "score a saved model on a labeled dataset",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "saved model directory", Required: true},
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "labeled dataset file", Required: true},
		},
		Action: func(c *cli.Context) error {
			model, err := tagger.Load(c.String("model"))
			if err != nil {
				return err
			}
			x, y, err := readDataset(c.String("input"))
			if err != nil {
				return err
			}
			report, err := model.Evaluate(x, y)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.App.Writer, "%s %s model %s on %d sentences\n",
				titleStyle.Render("evaluation:"), model.Architecture(), model.ID, len(x))
			_, _ = fmt.Fprintln(c.App.Writer, report)
			return nil
		},
	}
}
