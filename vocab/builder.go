package vocab

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Builder counts token occurrences over a corpus and builds a Vocabulary from the tokens that
// meet the minimum count.
//
// Example:
//
//	v, err := vocab.NewBuilder().MinCount(2).AddCorpus(corpus).Build()
type Builder struct {
	minCount int
	counts   map[string]int
	order    []string // first-seen order of the counted tokens
}

// NewBuilder returns an empty Builder, with minimum count 1.
func NewBuilder() *Builder {
	return &Builder{
		minCount: 1,
		counts:   make(map[string]int),
	}
}

// MinCount sets the minimum number of occurrences a token needs to be kept.
// A negative value makes Build fail, 0 behaves as 1.
func (b *Builder) MinCount(m int) *Builder {
	b.minCount = m
	return b
}

// Add counts the tokens of one sequence. Sentinel names are not counted, they are always present.
func (b *Builder) Add(seq []string) *Builder {
	for _, token := range seq {
		if IsReserved(token) {
			continue
		}
		if b.counts[token] == 0 {
			b.order = append(b.order, token)
		}
		b.counts[token]++
	}
	return b
}

// AddCorpus counts the tokens of every sequence in corpus, in order.
func (b *Builder) AddCorpus(corpus [][]string) *Builder {
	for _, seq := range corpus {
		b.Add(seq)
	}
	return b
}

// Count returns how many times token was seen so far.
func (b *Builder) Count(token string) int {
	return b.counts[token]
}

func (b *Builder) qualifies(token string) bool {
	return b.counts[token] >= b.minCount
}

func (b *Builder) validate() error {
	if b.minCount < 0 {
		return errors.Wrapf(ErrInvalidConfig, "minimum count must be >= 0, got %d", b.minCount)
	}
	return nil
}

// Build returns the vocabulary: the reserved sentinels at ids 0 to 3, followed by every token
// seen at least MinCount times, in first-seen order.
func (b *Builder) Build() (*Vocabulary, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	v := newReserved(len(b.order))
	for _, token := range b.order {
		if b.qualifies(token) {
			v.append(token)
		}
	}
	klog.V(1).Infof("vocabulary built: %d distinct tokens seen, %d kept (min count %d)",
		len(b.order), v.Len()-NumReserved, b.minCount)
	return v, nil
}

// Build creates the vocabulary of corpus, keeping tokens that occur at least minCount times.
// An empty corpus yields a vocabulary with only the reserved tokens.
func Build(corpus [][]string, minCount int) (*Vocabulary, error) {
	return NewBuilder().MinCount(minCount).AddCorpus(corpus).Build()
}

// BuildLabels creates the label vocabulary of a supervised dataset: same structure as a token
// vocabulary, every label kept.
func BuildLabels(labels [][]string) (*Vocabulary, error) {
	return Build(labels, 1)
}

// BuildTwoHead creates one vocabulary per head for two parallel corpora.
//
// Occurrences are counted over both corpora combined, but each head only holds the qualifying
// tokens that occur in its own corpus, with ids assigned independently: the same token may have
// different ids in each head.
func BuildTwoHead(corpora [2][][]string, minCount int) ([2]*Vocabulary, error) {
	var heads [2]*Vocabulary
	combined := NewBuilder().MinCount(minCount)
	for _, corpus := range corpora {
		combined.AddCorpus(corpus)
	}
	if err := combined.validate(); err != nil {
		return heads, err
	}
	for head, corpus := range corpora {
		local := NewBuilder().AddCorpus(corpus)
		v := newReserved(len(local.order))
		for _, token := range local.order {
			if combined.qualifies(token) {
				v.append(token)
			}
		}
		heads[head] = v
	}
	klog.V(1).Infof("two-head vocabulary built: %d and %d tokens kept (min count %d)",
		heads[0].Len()-NumReserved, heads[1].Len()-NumReserved, minCount)
	return heads, nil
}
