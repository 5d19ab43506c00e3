package sequence

import (
	"github.com/pkg/errors"
)

// TwoHeadEncoder encodes pairs of sequences, each with its own vocabulary and length, into one
// sequence of the two lengths combined.
type TwoHeadEncoder struct {
	heads [2]*Encoder
}

// NewTwoHead creates a TwoHeadEncoder. Each head follows the rules of New.
func NewTwoHead(vocabs [2]Vocabulary, lengths [2]int) (*TwoHeadEncoder, error) {
	e := &TwoHeadEncoder{}
	for head := range e.heads {
		var err error
		e.heads[head], err = New(vocabs[head], lengths[head])
		if err != nil {
			return nil, errors.WithMessagef(err, "head %d", head)
		}
	}
	return e, nil
}

// Head returns the encoder of head 0 or 1.
func (e *TwoHeadEncoder) Head(head int) *Encoder {
	return e.heads[head]
}

// Lengths returns the length of each head.
func (e *TwoHeadEncoder) Lengths() [2]int {
	return [2]int{e.heads[0].length, e.heads[1].length}
}

// Length returns the total length of the encoded pairs.
func (e *TwoHeadEncoder) Length() int {
	return e.heads[0].length + e.heads[1].length
}

func (e *TwoHeadEncoder) check() error {
	if e == nil {
		return errors.WithStack(ErrNotBuilt)
	}
	for _, head := range e.heads {
		if err := head.check(); err != nil {
			return err
		}
	}
	return nil
}

// Encode encodes first with head 0 and second with head 1, and concatenates the results.
func (e *TwoHeadEncoder) Encode(first, second []string) ([]int, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	return e.encode(first, second), nil
}

func (e *TwoHeadEncoder) encode(first, second []string) []int {
	ids := make([]int, 0, e.Length())
	ids = append(ids, e.heads[0].encode(first)...)
	return append(ids, e.heads[1].encode(second)...)
}

// EncodeBatch encodes two parallel batches, which must have the same number of sequences.
func (e *TwoHeadEncoder) EncodeBatch(first, second [][]string) ([][]int, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	if len(first) != len(second) {
		return nil, errors.Errorf("two-head batches must have the same size, got %d and %d", len(first), len(second))
	}
	out := make([][]int, len(first))
	for i := range first {
		out[i] = e.encode(first[i], second[i])
	}
	return out, nil
}

// Split separates an encoded pair into the ids of each head.
func (e *TwoHeadEncoder) Split(ids []int) (first, second []int, err error) {
	if len(ids) != e.Length() {
		return nil, nil, errors.Errorf("encoded pair has %d ids, expected %d", len(ids), e.Length())
	}
	n := e.heads[0].length
	return ids[:n], ids[n:], nil
}
