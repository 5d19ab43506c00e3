package tagger

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/gomlx/go-seqlabel/corpus"
	"github.com/gomlx/go-seqlabel/embedding"
	"github.com/gomlx/go-seqlabel/nn"
	"github.com/gomlx/go-seqlabel/sequence"
	"github.com/gomlx/go-seqlabel/vocab"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// FitOptions configures a training run. Zero values take the defaults.
type FitOptions struct {
	// Epochs defaults to 5.
	Epochs int

	// BatchSize defaults to 64.
	BatchSize int

	// LearningRate of the Adam optimizer, defaults to 0.001.
	LearningRate float64

	// ValidX and ValidY, if given, are evaluated at the end of every epoch.
	ValidX, ValidY [][]string
}

func (o FitOptions) withDefaults() FitOptions {
	if o.Epochs <= 0 {
		o.Epochs = 5
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 64
	}
	if o.LearningRate <= 0 {
		o.LearningRate = 0.001
	}
	return o
}

// EpochStats summarizes one training epoch.
type EpochStats struct {
	Epoch int

	// Loss is the mean loss per sequence: token cross-entropy, or negative log-likelihood with a CRF.
	Loss float64

	// Validated is set when validation data was given, along with its loss and token accuracy.
	Validated     bool
	ValidLoss     float64
	ValidAccuracy float64
}

// History of a training run, one entry per epoch.
type History []EpochStats

// Fit trains the model on the token sequences x labeled by y.
//
// On the first call the label vocabulary is built from y and, for a Custom embedding (created
// if the model has none), the token vocabulary from x. Later calls continue training and
// fail on labels not seen by the first one.
//
// Training stops between batches when ctx is cancelled, returning the epochs completed.
func (m *Model) Fit(ctx context.Context, x, y [][]string, opts FitOptions) (History, error) {
	if err := corpus.Validate(x, y); err != nil {
		return nil, errors.WithMessage(err, "training data")
	}
	if !slices.ContainsFunc(x, func(tokens []string) bool { return len(tokens) > 0 }) {
		return nil, errors.Wrap(sequence.ErrInvalidConfig, "no training data")
	}
	if opts.ValidX != nil || opts.ValidY != nil {
		if err := corpus.Validate(opts.ValidX, opts.ValidY); err != nil {
			return nil, errors.WithMessage(err, "validation data")
		}
	}
	opts = opts.withDefaults()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.prepare(x, y); err != nil {
		return nil, err
	}
	classes, err := m.classes(y)
	if err != nil {
		return nil, err
	}
	validClasses, err := m.classes(opts.ValidY)
	if err != nil {
		return nil, errors.WithMessage(err, "validation data")
	}

	adam := nn.NewAdam(opts.LearningRate)
	params := m.net.params()
	rng := rand.New(rand.NewPCG(m.hp.Seed, uint64(len(x))))
	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}
	var history History
	defer func() { m.syncEmbedding() }()
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		var total float64
		var counted int
		for start := 0; start < len(order); start += opts.BatchSize {
			if err := ctx.Err(); err != nil {
				return history, errors.Wrapf(err, "training interrupted during epoch %d", epoch)
			}
			batch := order[start:min(start+opts.BatchSize, len(order))]
			scale := 1 / float64(len(batch))
			for _, i := range batch {
				loss, ok, err := m.sampleLoss(x[i], classes[i], scale, true)
				if err != nil {
					return history, errors.WithMessagef(err, "sequence %d", i)
				}
				if ok {
					total += loss
					counted++
				}
			}
			adam.Update(params)
		}

		stats := EpochStats{Epoch: epoch, Loss: mean(total, counted)}
		if len(opts.ValidX) > 0 {
			stats.Validated = true
			stats.ValidLoss, stats.ValidAccuracy, err = m.validate(opts.ValidX, validClasses)
			if err != nil {
				return history, err
			}
			klog.Infof("epoch %d/%d: loss=%.4f valid_loss=%.4f valid_accuracy=%.4f",
				epoch, opts.Epochs, stats.Loss, stats.ValidLoss, stats.ValidAccuracy)
		} else {
			klog.Infof("epoch %d/%d: loss=%.4f", epoch, opts.Epochs, stats.Loss)
		}
		history = append(history, stats)
	}
	return history, nil
}

func mean(total float64, count int) float64 {
	if count == 0 {
		return math.NaN()
	}
	return total / float64(count)
}

// prepare builds what the first training run needs: embedding, labels and network.
func (m *Model) prepare(x, y [][]string) error {
	if m.emb == nil {
		custom, err := embedding.NewCustom("custom", m.hp.SequenceLength, m.hp.EmbeddingSize, embedding.WithSeed(m.hp.Seed))
		if err != nil {
			return err
		}
		m.emb = custom
	}
	if custom, ok := m.emb.(*embedding.Custom); ok && !custom.IsBuilt() {
		if err := custom.BuildVocabulary(x, m.hp.MinCount); err != nil {
			return errors.WithMessage(err, "while building the token vocabulary")
		}
	}
	if m.labels == nil {
		labels, err := vocab.BuildLabels(y)
		if err != nil {
			return err
		}
		if labels.Len() == vocab.NumReserved {
			return errors.Wrap(sequence.ErrInvalidConfig, "training data has no labels")
		}
		m.labels = labels
	}
	if m.net == nil {
		m.net = newNetwork(m.arch, m.hp, m.emb.Table(), m.emb.Trainable(), m.labels.Len()-vocab.NumReserved)
		klog.V(1).Infof("%s model %s: %d tokens, %d labels, %d trainable parameters",
			m.arch, m.ID, m.emb.TokenCount(), m.labels.Len()-vocab.NumReserved, countParams(m.net.params()))
	}
	return nil
}

func countParams(params []*nn.Param) int {
	var count int
	for _, p := range params {
		rows, cols := p.Value.Dims()
		count += rows * cols
	}
	return count
}

// syncEmbedding copies the fine-tuned table back to a Custom embedding.
func (m *Model) syncEmbedding() {
	custom, ok := m.emb.(*embedding.Custom)
	if !ok || m.net == nil || !m.net.lookup.Trainable {
		return
	}
	if err := custom.SetTable(m.net.lookup.Table.Value); err != nil {
		klog.Warningf("failed to update the table of embedding %q: %+v", custom.Name(), err)
	}
}

// classes maps labels to class indices.
func (m *Model) classes(y [][]string) ([][]int, error) {
	out := make([][]int, len(y))
	for i, labels := range y {
		out[i] = make([]int, len(labels))
		for j, label := range labels {
			id, found := m.labels.Lookup(label)
			if !found || id < vocab.NumReserved {
				return nil, errors.Errorf("sequence %d: unknown label %q, the model was trained with labels %q",
					i, label, m.labels.Tokens()[vocab.NumReserved:])
			}
			out[i][j] = id - vocab.NumReserved
		}
	}
	return out, nil
}

// sampleLoss computes the loss of one sequence and, if backprop is set, accumulates its gradients
// scaled by scale. It returns false for sequences with no token in the encoder window.
func (m *Model) sampleLoss(tokens []string, classes []int, scale float64, backprop bool) (float64, bool, error) {
	ids, n, err := m.window(tokens)
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	logits, bodyCache, outputCache := m.net.forward(ids)
	var loss float64
	var dLogits *mat.Dense
	if m.net.crf != nil {
		emissions := contentRows(logits, n)
		if !backprop {
			return m.net.crf.LogPartition(emissions) - m.net.crf.Score(emissions, classes[:n]), true, nil
		}
		var dEmissions *mat.Dense
		loss, dEmissions = m.net.crf.NegLogLikelihood(emissions, classes[:n], scale)
		rows, cols := logits.Dims()
		dLogits = mat.NewDense(rows, cols, nil)
		contentRows(dLogits, n).Copy(dEmissions)
	} else {
		targets := make([]int, len(ids))
		for t := range targets {
			targets[t] = nn.Ignore
		}
		for t := range n {
			targets[t+1] = classes[t]
		}
		loss, dLogits = nn.SoftmaxCrossEntropy(logits, targets)
		if !backprop {
			return loss, true, nil
		}
		dLogits.Scale(scale, dLogits)
	}
	m.net.backward(ids, bodyCache, outputCache, dLogits)
	return loss, true, nil
}

// validate returns the mean loss and the token accuracy over the labeled sequences.
func (m *Model) validate(x [][]string, classes [][]int) (loss, accuracy float64, err error) {
	var total float64
	var counted, correct, tokens int
	for i, seq := range x {
		l, ok, err := m.sampleLoss(seq, classes[i], 1, false)
		if err != nil {
			return 0, 0, errors.WithMessagef(err, "validation sequence %d", i)
		}
		if ok {
			total += l
			counted++
		}
		predicted, err := m.predict(seq)
		if err != nil {
			return 0, 0, err
		}
		for j, class := range classes[i] {
			tokens++
			if predicted[j] == m.label(class) {
				correct++
			}
		}
	}
	if tokens > 0 {
		accuracy = float64(correct) / float64(tokens)
	}
	return mean(total, counted), accuracy, nil
}
