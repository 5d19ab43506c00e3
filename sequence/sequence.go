// Package sequence converts token sequences into fixed-length id sequences using a vocabulary:
// every sequence is wrapped with the begin and end sentinels, its token content truncated or the
// result right-padded, so that it always has exactly the configured length.
//
// An Encoder holds no mutable state once created, it can be shared across goroutines.
package sequence

import (
	"context"
	"runtime"

	"github.com/gomlx/go-seqlabel/tokenizers/api"
	"github.com/gomlx/go-seqlabel/vocab"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"
)

var (
	// ErrNotBuilt is returned when encoding with a vocabulary that has not been built.
	ErrNotBuilt = vocab.ErrNotBuilt

	// ErrInvalidConfig is returned for a non-positive sequence length.
	ErrInvalidConfig = vocab.ErrInvalidConfig

	// ErrUnsupportedInput is returned by EncodeInput for inputs that are neither a sequence nor a
	// batch of sequences of tokens.
	ErrUnsupportedInput = errors.New("unsupported input type")
)

// Vocabulary is the token table used by an Encoder.
//
// ID must return the id of the unknown sentinel for tokens not in the table.
// *vocab.Vocabulary implements it, embeddings backed by external tokenizers provide adapters.
type Vocabulary interface {
	ID(token string) int
	Token(id int) (string, bool)
	SpecialTokenID(token api.SpecialToken) (int, error)
}

// Sentinels holds the ids of the four reserved tokens of a Vocabulary.
type Sentinels struct {
	Pad, Begin, End, Unknown int
}

// SentinelsOf resolves the sentinel ids of v.
func SentinelsOf(v Vocabulary) (s Sentinels, err error) {
	targets := []struct {
		token api.SpecialToken
		dst   *int
	}{
		{api.TokPad, &s.Pad},
		{api.TokBeginningOfSentence, &s.Begin},
		{api.TokEndOfSentence, &s.End},
		{api.TokUnknown, &s.Unknown},
	}
	for _, target := range targets {
		*target.dst, err = v.SpecialTokenID(target.token)
		if err != nil {
			return s, errors.WithMessagef(err, "vocabulary has no %s token", target.token)
		}
	}
	return s, nil
}

// Encoder encodes token sequences to a fixed length.
type Encoder struct {
	vocab     Vocabulary
	length    int
	sentinels Sentinels
}

// isUnbuilt reports whether v is nil, including a typed nil *vocab.Vocabulary.
func isUnbuilt(v Vocabulary) bool {
	if v == nil {
		return true
	}
	if typed, ok := v.(*vocab.Vocabulary); ok && typed == nil {
		return true
	}
	return false
}

// New creates an Encoder producing sequences of exactly length ids.
//
// It returns ErrNotBuilt if v is nil, and ErrInvalidConfig if length is not positive.
func New(v Vocabulary, length int) (*Encoder, error) {
	if length <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "sequence length must be positive, got %d", length)
	}
	if isUnbuilt(v) {
		return nil, errors.WithStack(ErrNotBuilt)
	}
	sentinels, err := SentinelsOf(v)
	if err != nil {
		return nil, err
	}
	return &Encoder{vocab: v, length: length, sentinels: sentinels}, nil
}

// Length returns the length of the encoded sequences.
func (e *Encoder) Length() int {
	return e.length
}

// Capacity returns how many tokens fit in an encoded sequence, between the begin and end sentinels.
func (e *Encoder) Capacity() int {
	return max(e.length-2, 0)
}

// Vocabulary used by the encoder.
func (e *Encoder) Vocabulary() Vocabulary {
	return e.vocab
}

// Sentinels returns the ids of the reserved tokens.
func (e *Encoder) Sentinels() Sentinels {
	return e.sentinels
}

func (e *Encoder) check() error {
	if e == nil || isUnbuilt(e.vocab) {
		return errors.WithStack(ErrNotBuilt)
	}
	return nil
}

// Tokenize looks up tokens and wraps them with the begin and end sentinels, without truncation or
// padding: the result has len(tokens)+2 ids.
func (e *Encoder) Tokenize(tokens []string) ([]int, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(tokens)+2)
	ids = append(ids, e.sentinels.Begin)
	for _, token := range tokens {
		ids = append(ids, e.vocab.ID(token))
	}
	return append(ids, e.sentinels.End), nil
}

// Encode returns exactly Length() ids: the begin sentinel, the ids of the tokens (unknown tokens
// mapped to the unknown sentinel), the end sentinel, then padding.
//
// Tokens that don't fit are dropped from the end of the sequence, the sentinels are always kept.
// With a length of 1 only the begin sentinel fits.
func (e *Encoder) Encode(tokens []string) ([]int, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	return e.encode(tokens), nil
}

func (e *Encoder) encode(tokens []string) []int {
	ids := make([]int, e.length)
	ids[0] = e.sentinels.Begin
	if e.length == 1 {
		return ids
	}
	n := min(len(tokens), e.Capacity())
	for i, token := range tokens[:n] {
		ids[i+1] = e.vocab.ID(token)
	}
	ids[n+1] = e.sentinels.End
	for i := n + 2; i < e.length; i++ {
		ids[i] = e.sentinels.Pad
	}
	return ids
}

// EncodeBatch encodes each sequence of batch independently, preserving order.
func (e *Encoder) EncodeBatch(batch [][]string) ([][]int, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	out := make([][]int, len(batch))
	for i, tokens := range batch {
		out[i] = e.encode(tokens)
	}
	return out, nil
}

// EncodeParallel is like EncodeBatch, but fans the sequences out to up to GOMAXPROCS goroutines.
// It stops early if ctx is cancelled.
func (e *Encoder) EncodeParallel(ctx context.Context, batch [][]string) ([][]int, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	out := make([][]int, len(batch))
	p := pool.New().WithMaxGoroutines(runtime.GOMAXPROCS(0)).WithContext(ctx)
	for i := range batch {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = e.encode(batch[i])
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, errors.Wrap(err, "parallel encoding interrupted")
	}
	return out, nil
}

// EncodeInput mirrors the shape of its input: a []string is encoded to a []int, and a [][]string
// to a [][]int. Other types return ErrUnsupportedInput.
func (e *Encoder) EncodeInput(input any) (any, error) {
	switch typed := input.(type) {
	case []string:
		return e.Encode(typed)
	case [][]string:
		return e.EncodeBatch(typed)
	default:
		return nil, errors.Wrapf(ErrUnsupportedInput, "can't encode %T, expected []string or [][]string", input)
	}
}

// Decode maps ids back to tokens. Padding and the begin and end sentinels are dropped, ids out of
// the vocabulary are returned as vocab.UNK.
func (e *Encoder) Decode(ids []int) []string {
	tokens := make([]string, 0, len(ids))
	for _, id := range ids {
		switch id {
		case e.sentinels.Pad, e.sentinels.Begin, e.sentinels.End:
			continue
		}
		token, found := e.vocab.Token(id)
		if !found {
			token = vocab.UNK
		}
		tokens = append(tokens, token)
	}
	return tokens
}
