// Package api defines the Tokenizer API shared by the tokenizer backends and the vocabularies built
// by this module.
//
// It lives in its own package to break the cyclic dependency between the backends
// (hftokenizer, sentencepiece, wordpiece) and the packages consuming them (embedding, vocab).
package api

import "fmt"

// Tokenizer converts text to token ids and back.
//
// Special tokens have a shared meaning (padding, unknown, ...) but their ids
// depend on the tokenizer.
type Tokenizer interface {
	Encode(text string) []int
	Decode([]int) string

	// SpecialTokenID returns ID for given special token if registered, or an error if not.
	SpecialTokenID(token SpecialToken) (int, error)
}

// TokenLookup is implemented by tokenizers that can resolve a whole token to a single id,
// without splitting it into sub-word pieces.
type TokenLookup interface {
	TokenToID(token string) (int, bool)
}

// SpecialToken is an enum of commonly used special tokens.
type SpecialToken int

const (
	TokBeginningOfSentence SpecialToken = iota
	TokEndOfSentence
	TokUnknown
	TokPad
	TokMask
	TokClassification
	TokSpecialTokensCount
)

var specialTokenNames = [...]string{
	TokBeginningOfSentence: "beginning_of_sentence",
	TokEndOfSentence:       "end_of_sentence",
	TokUnknown:             "unknown",
	TokPad:                 "pad",
	TokMask:                "mask",
	TokClassification:      "classification",
	TokSpecialTokensCount:  "special_tokens_count",
}

// String implements fmt.Stringer.
func (t SpecialToken) String() string {
	if t < 0 || int(t) >= len(specialTokenNames) {
		return fmt.Sprintf("SpecialToken(%d)", int(t))
	}
	return specialTokenNames[t]
}
