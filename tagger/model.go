// Package tagger implements sequence labeling models: given a sequence of tokens they predict
// one label per token, typically BIO tags for named entity recognition.
//
// A Model couples an embedding.Embedding with one of the network Architectures. Models are
// trained with Fit, used with Predict and its variants, measured with Evaluate, and persisted
// with Save and Load:
//
//	model, err := tagger.New(tagger.BLSTMCRF, nil, tagger.WithSequenceLength(64))
//	if err != nil {
//		return err
//	}
//	history, err := model.Fit(ctx, x, y, tagger.FitOptions{Epochs: 10})
//	...
//	labels, err := model.Predict([]string{"我", "爱", "北", "京"})
//
// Only the tokens between the begin and end sentinels of the encoded sequence are scored. Tokens
// beyond the capacity of the sequence length are labeled OutsideLabel.
//
// Prediction methods can be called concurrently. Fit and Load are exclusive with any other use.
package tagger

import (
	"sync"

	"github.com/gomlx/go-seqlabel/embedding"
	"github.com/gomlx/go-seqlabel/nn"
	"github.com/gomlx/go-seqlabel/sequence"
	"github.com/gomlx/go-seqlabel/vocab"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// OutsideLabel is the label of tokens outside any entity.
const OutsideLabel = "O"

// ErrNotTrained is returned when predicting with a model that was neither trained nor loaded.
var ErrNotTrained = errors.New("model not trained")

// Hyperparameters of a Model.
type Hyperparameters struct {
	// ConvFilters and KernelSize configure the convolution of CNNLSTM.
	ConvFilters int `json:"conv_filters"`
	KernelSize  int `json:"kernel_size"`

	// LSTMUnits per direction.
	LSTMUnits int `json:"lstm_units"`

	// SequenceLength and EmbeddingSize of the Custom embedding created when none is given.
	// Otherwise they are taken from the embedding.
	SequenceLength int `json:"sequence_length"`
	EmbeddingSize  int `json:"embedding_size"`

	// MinCount of the tokens kept in the vocabulary of a Custom embedding.
	MinCount int `json:"min_count"`

	// Seed of the weights initialization and of the training shuffles.
	Seed uint64 `json:"seed"`
}

// DefaultHyperparameters returns the hyperparameters used when no Option overrides them.
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		ConvFilters:    32,
		KernelSize:     3,
		LSTMUnits:      100,
		SequenceLength: embedding.DefaultSequenceLength,
		EmbeddingSize:  embedding.DefaultEmbeddingSize,
		MinCount:       1,
		Seed:           42,
	}
}

// Validate returns an error wrapping sequence.ErrInvalidConfig for out of range values.
func (hp Hyperparameters) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"conv filters", hp.ConvFilters},
		{"kernel size", hp.KernelSize},
		{"LSTM units", hp.LSTMUnits},
		{"sequence length", hp.SequenceLength},
		{"embedding size", hp.EmbeddingSize},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return errors.Wrapf(sequence.ErrInvalidConfig, "%s must be positive, got %d", p.name, p.value)
		}
	}
	if hp.SequenceLength < MinSequenceLength {
		return errors.Wrapf(sequence.ErrInvalidConfig, "sequence length must be at least %d to hold a token between the sentinels, got %d",
			MinSequenceLength, hp.SequenceLength)
	}
	if hp.MinCount < 0 {
		return errors.Wrapf(sequence.ErrInvalidConfig, "minimum count must be >= 0, got %d", hp.MinCount)
	}
	return nil
}

// MinSequenceLength of a tagger: the begin and end sentinels plus one token.
const MinSequenceLength = 3

// Option overrides a hyperparameter.
type Option func(*Hyperparameters)

// WithConvFilters sets the number of filters of the CNNLSTM convolution.
func WithConvFilters(filters int) Option {
	return func(hp *Hyperparameters) { hp.ConvFilters = filters }
}

// WithKernelSize sets the kernel width of the CNNLSTM convolution. Even sizes are rounded up.
func WithKernelSize(size int) Option {
	return func(hp *Hyperparameters) { hp.KernelSize = size }
}

// WithLSTMUnits sets the LSTM units per direction.
func WithLSTMUnits(units int) Option {
	return func(hp *Hyperparameters) { hp.LSTMUnits = units }
}

// WithSequenceLength sets the sequence length of the Custom embedding built by Fit.
func WithSequenceLength(length int) Option {
	return func(hp *Hyperparameters) { hp.SequenceLength = length }
}

// WithEmbeddingSize sets the vector size of the Custom embedding built by Fit.
func WithEmbeddingSize(size int) Option {
	return func(hp *Hyperparameters) { hp.EmbeddingSize = size }
}

// WithMinCount sets the minimum count of the tokens of the Custom embedding built by Fit.
func WithMinCount(minCount int) Option {
	return func(hp *Hyperparameters) { hp.MinCount = minCount }
}

// WithSeed sets the random seed.
func WithSeed(seed uint64) Option {
	return func(hp *Hyperparameters) { hp.Seed = seed }
}

// Model is a sequence labeling model.
type Model struct {
	// ID identifies the model, it is preserved by Save and Load.
	ID uuid.UUID

	arch Architecture
	hp   Hyperparameters

	mu     sync.RWMutex
	emb    embedding.Embedding
	labels *vocab.Vocabulary
	net    *network
}

// New creates an untrained model. If emb is nil, a Custom embedding is built from the training
// data on the first call to Fit.
func New(arch Architecture, emb embedding.Embedding, opts ...Option) (*Model, error) {
	if _, err := ParseArchitecture(string(arch)); err != nil {
		return nil, err
	}
	hp := DefaultHyperparameters()
	for _, opt := range opts {
		opt(&hp)
	}
	if emb != nil {
		hp.SequenceLength = emb.SequenceLength()
		hp.EmbeddingSize = emb.EmbeddingSize()
	}
	if err := hp.Validate(); err != nil {
		return nil, err
	}
	return &Model{ID: uuid.New(), arch: arch, hp: hp, emb: emb}, nil
}

// Architecture of the model.
func (m *Model) Architecture() Architecture {
	return m.arch
}

// Hyperparameters of the model.
func (m *Model) Hyperparameters() Hyperparameters {
	return m.hp
}

// Embedding used by the model, nil if it is yet to be built by Fit.
func (m *Model) Embedding() embedding.Embedding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.emb
}

// Labels returns the labels the model predicts, nil before training.
func (m *Model) Labels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.labels == nil {
		return nil
	}
	return m.labels.Tokens()[vocab.NumReserved:]
}

func (m *Model) checkTrained() error {
	if m.net == nil {
		return errors.WithStack(ErrNotTrained)
	}
	return nil
}

// label of the given class. Class k is label id k+vocab.NumReserved.
func (m *Model) label(class int) string {
	label, found := m.labels.Token(class + vocab.NumReserved)
	if !found {
		return OutsideLabel
	}
	return label
}

// window encodes tokens and returns the ids up to the end sentinel, along with the number of
// tokens they hold.
func (m *Model) window(tokens []string) ([]int, int, error) {
	ids, err := m.emb.Encode(tokens)
	if err != nil {
		return nil, 0, err
	}
	n := min(len(tokens), max(len(ids)-2, 0))
	return ids[:min(n+2, len(ids))], n, nil
}

// network holds the trainable layers of a Model.
type network struct {
	lookup *nn.Embedding
	body   nn.Stack
	output *nn.Dense
	crf    *nn.CRF // Only for BLSTMCRF.
}

func newNetwork(arch Architecture, hp Hyperparameters, table *mat.Dense, trainable bool, classes int) *network {
	init := nn.NewInitializer(hp.Seed)
	_, dim := table.Dims()
	net := &network{lookup: nn.NewEmbedding("embedding", table, trainable)}
	features := 2 * hp.LSTMUnits
	switch arch {
	case CNNLSTM:
		net.body = nn.Stack{
			nn.NewConv1D("conv", dim, hp.ConvFilters, hp.KernelSize, init),
			nn.NewLSTM("lstm", hp.ConvFilters, hp.LSTMUnits, init),
		}
		features = hp.LSTMUnits
	default:
		net.body = nn.Stack{nn.NewBiLSTM("blstm", dim, hp.LSTMUnits, init)}
	}
	net.output = nn.NewDense("output", features, classes, init)
	if arch.UsesCRF() {
		net.crf = nn.NewCRF("crf", classes, init)
	}
	return net
}

// params returns the parameters updated by training.
func (net *network) params() []*nn.Param {
	params := append(net.lookup.Params(), net.body.Params()...)
	params = append(params, net.output.Params()...)
	if net.crf != nil {
		params = append(params, net.crf.Params()...)
	}
	return params
}

// weights returns every parameter, including a frozen embedding table.
func (net *network) weights() []*nn.Param {
	if net.lookup.Trainable {
		return net.params()
	}
	return append([]*nn.Param{net.lookup.Table}, net.params()...)
}

func (net *network) forward(ids []int) (logits *mat.Dense, bodyCache, outputCache nn.Cache) {
	h, bodyCache := net.body.Forward(net.lookup.Forward(ids))
	logits, outputCache = net.output.Forward(h)
	return logits, bodyCache, outputCache
}

func (net *network) backward(ids []int, bodyCache, outputCache nn.Cache, dLogits *mat.Dense) {
	dh := net.output.Backward(outputCache, dLogits)
	net.lookup.Backward(ids, net.body.Backward(bodyCache, dh))
}

// contentRows returns a view of the rows of the n tokens after the begin sentinel.
func contentRows(m *mat.Dense, n int) *mat.Dense {
	_, cols := m.Dims()
	return m.Slice(1, n+1, 0, cols).(*mat.Dense)
}
