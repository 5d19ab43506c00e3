package embedding

import (
	"github.com/gomlx/go-seqlabel/sequence"
	"github.com/gomlx/go-seqlabel/vocab"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// TwoHead embeds pairs of sequences with two Custom heads, each with its own vocabulary and
// sequence length. The embedded pair has the rows of the first head followed by the rows of the
// second one.
type TwoHead struct {
	name  string
	heads [2]*Custom
}

// NewTwoHead creates an empty TwoHead embedding. Both heads share embeddingSize.
func NewTwoHead(name string, sequenceLengths [2]int, embeddingSize int, opts ...Option) (*TwoHead, error) {
	th := &TwoHead{name: name}
	for i := range th.heads {
		// Each head gets its own seed, so their tables differ.
		headOpts := append(append([]Option{}, opts...), WithSeed(newOptions(opts).seed+uint64(i)))
		head, err := NewCustom(name, sequenceLengths[i], embeddingSize, headOpts...)
		if err != nil {
			return nil, errors.WithMessagef(err, "head %d", i)
		}
		th.heads[i] = head
	}
	return th, nil
}

// BuildVocabulary builds both vocabularies, counting occurrences over both corpora combined (see
// vocab.BuildTwoHead).
func (th *TwoHead) BuildVocabulary(corpora [2][][]string, minCount int) error {
	vocabs, err := vocab.BuildTwoHead(corpora, minCount)
	if err != nil {
		return err
	}
	for i, head := range th.heads {
		if err := head.SetVocabulary(vocabs[i], nil); err != nil {
			return errors.WithMessagef(err, "head %d", i)
		}
	}
	return nil
}

// Head returns head 0 or 1.
func (th *TwoHead) Head(i int) *Custom {
	return th.heads[i]
}

// Name of the embedding.
func (th *TwoHead) Name() string { return th.name }

// SequenceLengths of each head.
func (th *TwoHead) SequenceLengths() [2]int {
	return [2]int{th.heads[0].SequenceLength(), th.heads[1].SequenceLength()}
}

// SequenceLength is the length of an encoded pair: the sum of both heads.
func (th *TwoHead) SequenceLength() int {
	return th.heads[0].SequenceLength() + th.heads[1].SequenceLength()
}

// EmbeddingSize of the vectors.
func (th *TwoHead) EmbeddingSize() int {
	return th.heads[0].EmbeddingSize()
}

// TokenCount is the number of sentinels plus distinct tokens over both vocabularies.
func (th *TwoHead) TokenCount() int {
	distinct := make(map[string]bool)
	for _, head := range th.heads {
		v := head.TokenVocabulary()
		if v == nil {
			return 0
		}
		for _, token := range v.Tokens()[vocab.NumReserved:] {
			distinct[token] = true
		}
	}
	return vocab.NumReserved + len(distinct)
}

func (th *TwoHead) encoder() (*sequence.TwoHeadEncoder, error) {
	var vocabs [2]sequence.Vocabulary
	for i, head := range th.heads {
		v := head.TokenVocabulary()
		if v == nil {
			return nil, errors.Wrapf(sequence.ErrNotBuilt, "two-head embedding %q head %d", th.name, i)
		}
		vocabs[i] = v
	}
	return sequence.NewTwoHead(vocabs, th.SequenceLengths())
}

// EncodePair encodes first with head 0 and second with head 1 into SequenceLength ids.
func (th *TwoHead) EncodePair(first, second []string) ([]int, error) {
	e, err := th.encoder()
	if err != nil {
		return nil, err
	}
	return e.Encode(first, second)
}

// EncodePairBatch encodes two parallel batches.
func (th *TwoHead) EncodePairBatch(first, second [][]string) ([][]int, error) {
	e, err := th.encoder()
	if err != nil {
		return nil, err
	}
	return e.EncodeBatch(first, second)
}

// EmbedPair returns the SequenceLength vectors of the pair.
func (th *TwoHead) EmbedPair(first, second []string) (*mat.Dense, error) {
	parts := [2]*mat.Dense{}
	for i, tokens := range [2][]string{first, second} {
		var err error
		parts[i], err = th.heads[i].Embed(tokens)
		if err != nil {
			return nil, errors.WithMessagef(err, "head %d", i)
		}
	}
	r0, dim := parts[0].Dims()
	r1, _ := parts[1].Dims()
	out := mat.NewDense(r0+r1, dim, nil)
	out.Slice(0, r0, 0, dim).(*mat.Dense).Copy(parts[0])
	out.Slice(r0, r0+r1, 0, dim).(*mat.Dense).Copy(parts[1])
	return out, nil
}
