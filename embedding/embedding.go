// Package embedding maps token sequences to fixed-length sequences of vectors.
//
// Four variants are provided:
//
//   - Word: pretrained word vectors read from a word2vec text file.
//   - Transformer: the token embedding table of a transformer checkpoint, with its tokenizer.
//   - Custom: a trainable table over a vocabulary built from a corpus.
//   - TwoHead: a pair of Custom heads, encoding pairs of sequences side by side.
//
// All variants share the sequence.Encoder rules: sequences are wrapped with begin and end
// sentinels, truncated or padded to the sequence length. Embeddings are immutable after they
// are built and can be used concurrently.
package embedding

import (
	"github.com/gomlx/go-seqlabel/nn"
	"github.com/gomlx/go-seqlabel/sequence"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Embedding is the capability shared by all single-sequence embeddings.
type Embedding interface {
	// Name identifies the embedding, e.g. the word vectors file or checkpoint it was loaded from.
	Name() string

	// SequenceLength is the number of ids (and vectors) of an encoded sequence.
	SequenceLength() int

	// EmbeddingSize is the dimension of the vectors.
	EmbeddingSize() int

	// TokenCount is the number of rows of the table, sentinels included.
	TokenCount() int

	// Tokenize returns the ids of tokens wrapped with the sentinels, without truncation or padding.
	Tokenize(tokens []string) ([]int, error)

	// Encode returns exactly SequenceLength ids.
	Encode(tokens []string) ([]int, error)

	// EncodeBatch encodes each sequence of batch.
	EncodeBatch(batch [][]string) ([][]int, error)

	// Lookup returns the vectors of ids, one row per id.
	Lookup(ids []int) (*mat.Dense, error)

	// Embed encodes tokens and looks up their vectors: SequenceLength rows.
	Embed(tokens []string) (*mat.Dense, error)

	// Table is the embedding table, one row per id. It must not be modified.
	Table() *mat.Dense

	// Trainable reports whether models using this embedding should fine-tune its table.
	Trainable() bool

	// Vocabulary used to encode sequences.
	Vocabulary() sequence.Vocabulary
}

// Defaults of the embeddings created from a corpus.
const (
	DefaultSequenceLength = 100
	DefaultEmbeddingSize  = 100
)

// reservedInitLimit bounds the random vectors of the sentinels and of the trainable tables.
const reservedInitLimit = 0.05

type options struct {
	limit     int
	trainable *bool
	seed      uint64
}

// Option configures the loading of an embedding.
type Option func(*options)

// WithLimit caps the number of word vectors read from a file. 0 means no limit.
func WithLimit(limit int) Option {
	return func(o *options) { o.limit = limit }
}

// WithTrainable overrides whether the table is fine-tuned during training.
// Word and Transformer embeddings are frozen by default, Custom embeddings are trainable.
func WithTrainable(trainable bool) Option {
	return func(o *options) { o.trainable = &trainable }
}

// WithSeed sets the seed used to initialize random vectors.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.seed = seed }
}

func newOptions(opts []Option) *options {
	o := &options{seed: 42}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) isTrainable(defaultValue bool) bool {
	if o.trainable == nil {
		return defaultValue
	}
	return *o.trainable
}

// table is the part common to all variants: an encoder and the matrix of vectors.
type table struct {
	name      string
	encoder   *sequence.Encoder
	vectors   *mat.Dense
	trainable bool
}

// Name implements Embedding.
func (t *table) Name() string { return t.name }

// SequenceLength implements Embedding.
func (t *table) SequenceLength() int { return t.encoder.Length() }

// EmbeddingSize implements Embedding.
func (t *table) EmbeddingSize() int {
	_, dim := t.vectors.Dims()
	return dim
}

// TokenCount implements Embedding.
func (t *table) TokenCount() int {
	rows, _ := t.vectors.Dims()
	return rows
}

// Tokenize implements Embedding.
func (t *table) Tokenize(tokens []string) ([]int, error) {
	return t.encoder.Tokenize(tokens)
}

// Encode implements Embedding.
func (t *table) Encode(tokens []string) ([]int, error) {
	return t.encoder.Encode(tokens)
}

// EncodeBatch implements Embedding.
func (t *table) EncodeBatch(batch [][]string) ([][]int, error) {
	return t.encoder.EncodeBatch(batch)
}

// Lookup implements Embedding.
func (t *table) Lookup(ids []int) (*mat.Dense, error) {
	return lookup(t.vectors, ids)
}

// Embed implements Embedding.
func (t *table) Embed(tokens []string) (*mat.Dense, error) {
	ids, err := t.encoder.Encode(tokens)
	if err != nil {
		return nil, err
	}
	return lookup(t.vectors, ids)
}

// Table implements Embedding.
func (t *table) Table() *mat.Dense { return t.vectors }

// Trainable implements Embedding.
func (t *table) Trainable() bool { return t.trainable }

// Vocabulary implements Embedding.
func (t *table) Vocabulary() sequence.Vocabulary { return t.encoder.Vocabulary() }

// Encoder returns the sequence encoder of the embedding.
func (t *table) Encoder() *sequence.Encoder { return t.encoder }

func lookup(vectors *mat.Dense, ids []int) (*mat.Dense, error) {
	if vectors == nil {
		return nil, errors.WithStack(sequence.ErrNotBuilt)
	}
	if len(ids) == 0 {
		return nil, errors.New("can't look up an empty sequence of ids")
	}
	rows, dim := vectors.Dims()
	out := mat.NewDense(len(ids), dim, nil)
	for i, id := range ids {
		if id < 0 || id >= rows {
			return nil, errors.Errorf("id %d at position %d out of range for a table of %d rows", id, i, rows)
		}
		copy(out.RawRowView(i), vectors.RawRowView(id))
	}
	return out, nil
}

// EmbedBatch embeds every sequence of batch with e.
func EmbedBatch(e Embedding, batch [][]string) ([]*mat.Dense, error) {
	out := make([]*mat.Dense, len(batch))
	for i, tokens := range batch {
		var err error
		out[i], err = e.Embed(tokens)
		if err != nil {
			return nil, errors.WithMessagef(err, "sequence %d", i)
		}
	}
	return out, nil
}

// randomTable returns a rows×dim table of small random values.
func randomTable(rows, dim int, seed uint64) *mat.Dense {
	m := mat.NewDense(rows, dim, nil)
	nn.NewInitializer(seed).UniformDense(m, reservedInitLimit)
	return m
}
