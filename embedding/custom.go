package embedding

import (
	"sync"

	"github.com/gomlx/go-seqlabel/sequence"
	"github.com/gomlx/go-seqlabel/vocab"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Custom is a trainable embedding whose vocabulary is built from a corpus.
//
// It must be built with BuildVocabulary (or restored with SetVocabulary) before use: until then
// encoding returns sequence.ErrNotBuilt.
type Custom struct {
	name           string
	sequenceLength int
	size           int
	opts           *options

	mu      sync.RWMutex
	vocab   *vocab.Vocabulary
	encoder *sequence.Encoder
	vectors *mat.Dense
}

var _ Embedding = &Custom{}

// NewCustom creates an empty Custom embedding with vectors of embeddingSize.
func NewCustom(name string, sequenceLength, embeddingSize int, opts ...Option) (*Custom, error) {
	if sequenceLength <= 0 {
		return nil, errors.Wrapf(sequence.ErrInvalidConfig, "sequence length must be positive, got %d", sequenceLength)
	}
	if embeddingSize <= 0 {
		return nil, errors.Wrapf(sequence.ErrInvalidConfig, "embedding size must be positive, got %d", embeddingSize)
	}
	return &Custom{
		name:           name,
		sequenceLength: sequenceLength,
		size:           embeddingSize,
		opts:           newOptions(opts),
	}, nil
}

// BuildVocabulary builds the vocabulary of corpus, keeping tokens seen at least minCount times,
// and initializes a random table for it.
func (c *Custom) BuildVocabulary(corpus [][]string, minCount int) error {
	v, err := vocab.Build(corpus, minCount)
	if err != nil {
		return err
	}
	return c.SetVocabulary(v, nil)
}

// SetVocabulary sets the vocabulary and its table. With a nil table, a random one is created.
func (c *Custom) SetVocabulary(v *vocab.Vocabulary, vectors *mat.Dense) error {
	if v == nil {
		return errors.WithStack(sequence.ErrNotBuilt)
	}
	encoder, err := sequence.New(v, c.sequenceLength)
	if err != nil {
		return err
	}
	if vectors == nil {
		vectors = randomTable(v.Len(), c.size, c.opts.seed)
	} else if rows, dim := vectors.Dims(); rows != v.Len() || dim != c.size {
		return errors.Errorf("embedding table of shape [%d %d] doesn't match %d tokens of size %d", rows, dim, v.Len(), c.size)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vocab, c.encoder, c.vectors = v, encoder, vectors
	klog.V(1).Infof("custom embedding %q: %d tokens", c.name, v.Len())
	return nil
}

// SetTable replaces the vectors, for instance after training. The shape must not change.
func (c *Custom) SetTable(vectors *mat.Dense) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vectors == nil {
		return errors.WithStack(sequence.ErrNotBuilt)
	}
	r0, c0 := c.vectors.Dims()
	r1, c1 := vectors.Dims()
	if r0 != r1 || c0 != c1 {
		return errors.Errorf("can't replace embedding table of shape [%d %d] by one of shape [%d %d]", r0, c0, r1, c1)
	}
	c.vectors = mat.DenseCopyOf(vectors)
	return nil
}

// IsBuilt reports whether the vocabulary has been built.
func (c *Custom) IsBuilt() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.encoder != nil
}

func (c *Custom) state() (*sequence.Encoder, *mat.Dense, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.encoder == nil {
		return nil, nil, errors.Wrapf(sequence.ErrNotBuilt, "custom embedding %q", c.name)
	}
	return c.encoder, c.vectors, nil
}

// Name implements Embedding.
func (c *Custom) Name() string { return c.name }

// SequenceLength implements Embedding.
func (c *Custom) SequenceLength() int { return c.sequenceLength }

// EmbeddingSize implements Embedding.
func (c *Custom) EmbeddingSize() int { return c.size }

// TokenCount implements Embedding. It is 0 until the vocabulary is built.
func (c *Custom) TokenCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vocab == nil {
		return 0
	}
	return c.vocab.Len()
}

// Tokenize implements Embedding.
func (c *Custom) Tokenize(tokens []string) ([]int, error) {
	encoder, _, err := c.state()
	if err != nil {
		return nil, err
	}
	return encoder.Tokenize(tokens)
}

// Encode implements Embedding.
func (c *Custom) Encode(tokens []string) ([]int, error) {
	encoder, _, err := c.state()
	if err != nil {
		return nil, err
	}
	return encoder.Encode(tokens)
}

// EncodeBatch implements Embedding.
func (c *Custom) EncodeBatch(batch [][]string) ([][]int, error) {
	encoder, _, err := c.state()
	if err != nil {
		return nil, err
	}
	return encoder.EncodeBatch(batch)
}

// Lookup implements Embedding.
func (c *Custom) Lookup(ids []int) (*mat.Dense, error) {
	_, vectors, err := c.state()
	if err != nil {
		return nil, err
	}
	return lookup(vectors, ids)
}

// Embed implements Embedding.
func (c *Custom) Embed(tokens []string) (*mat.Dense, error) {
	encoder, vectors, err := c.state()
	if err != nil {
		return nil, err
	}
	ids, err := encoder.Encode(tokens)
	if err != nil {
		return nil, err
	}
	return lookup(vectors, ids)
}

// Table implements Embedding. It is nil until the vocabulary is built.
func (c *Custom) Table() *mat.Dense {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vectors
}

// Trainable implements Embedding.
func (c *Custom) Trainable() bool {
	return c.opts.isTrainable(true)
}

// Vocabulary implements Embedding. It is nil until the vocabulary is built.
func (c *Custom) Vocabulary() sequence.Vocabulary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vocab == nil {
		return nil
	}
	return c.vocab
}

// TokenVocabulary returns the built vocabulary, or nil.
func (c *Custom) TokenVocabulary() *vocab.Vocabulary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vocab
}
