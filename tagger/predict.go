package tagger

import (
	"context"
	"runtime"

	"github.com/gomlx/go-seqlabel/nn"
	"github.com/gomlx/go-seqlabel/sequence"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/mat"
)

// TokenScores is the prediction for one token, with the probability of every label.
type TokenScores struct {
	Token string
	Label string

	// Scores maps labels to their probability: softmax outputs, or CRF marginals. It is nil for
	// tokens beyond the capacity of the sequence length.
	Scores map[string]float64
}

// infer returns the class of each token in the encoder window and, if withScores is set, the
// probabilities of the classes.
func (m *Model) infer(tokens []string, withScores bool) ([]int, *mat.Dense, error) {
	ids, n, err := m.window(tokens)
	if err != nil || n == 0 {
		return nil, nil, err
	}
	logits, _, _ := m.net.forward(ids)
	emissions := contentRows(logits, n)
	if m.net.crf != nil {
		path, _ := m.net.crf.Decode(emissions)
		if !withScores {
			return path, nil, nil
		}
		return path, m.net.crf.Marginals(emissions), nil
	}
	if !withScores {
		return nn.ArgMax(emissions), nil, nil
	}
	probs := nn.Softmax(emissions)
	return nn.ArgMax(probs), probs, nil
}

func (m *Model) predict(tokens []string) ([]string, error) {
	classes, _, err := m.infer(tokens, false)
	if err != nil {
		return nil, err
	}
	labels := make([]string, len(tokens))
	for i := range labels {
		if i < len(classes) {
			labels[i] = m.label(classes[i])
		} else {
			labels[i] = OutsideLabel
		}
	}
	return labels, nil
}

// Predict returns one label per token.
func (m *Model) Predict(tokens []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkTrained(); err != nil {
		return nil, err
	}
	return m.predict(tokens)
}

// PredictBatch predicts the labels of every sequence of batch, in parallel. It stops early if ctx
// is cancelled.
func (m *Model) PredictBatch(ctx context.Context, batch [][]string) ([][]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkTrained(); err != nil {
		return nil, err
	}
	out := make([][]string, len(batch))
	p := pool.New().WithMaxGoroutines(runtime.GOMAXPROCS(0)).WithContext(ctx).WithCancelOnError()
	for i := range batch {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			labels, err := m.predict(batch[i])
			if err != nil {
				return errors.WithMessagef(err, "sequence %d", i)
			}
			out[i] = labels
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// PredictInput mirrors the shape of its input: a []string gets a []string of labels, a
// [][]string a [][]string. Other types return sequence.ErrUnsupportedInput.
func (m *Model) PredictInput(input any) (any, error) {
	switch typed := input.(type) {
	case []string:
		return m.Predict(typed)
	case [][]string:
		return m.PredictBatch(context.Background(), typed)
	default:
		return nil, errors.Wrapf(sequence.ErrUnsupportedInput, "can't predict %T, expected []string or [][]string", input)
	}
}

// PredictWithScores returns the predicted label of each token along with the probabilities of
// all labels.
func (m *Model) PredictWithScores(tokens []string) ([]TokenScores, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkTrained(); err != nil {
		return nil, err
	}
	classes, probs, err := m.infer(tokens, true)
	if err != nil {
		return nil, err
	}
	out := make([]TokenScores, len(tokens))
	for i, token := range tokens {
		out[i] = TokenScores{Token: token, Label: OutsideLabel}
		if i >= len(classes) {
			continue
		}
		out[i].Label = m.label(classes[i])
		row := probs.RawRowView(i)
		out[i].Scores = make(map[string]float64, len(row))
		for class, p := range row {
			out[i].Scores[m.label(class)] = p
		}
	}
	return out, nil
}
