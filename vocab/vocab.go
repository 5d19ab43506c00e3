// Package vocab builds the token and label vocabularies used to encode sequences: a dense
// token<->id mapping with four reserved sentinel entries at fixed positions, followed by the
// corpus tokens that meet a minimum occurrence count, in first-seen order.
//
// A Vocabulary is immutable once built, and safe for concurrent use.
package vocab

import (
	"encoding/json"
	"os"

	"github.com/gomlx/go-seqlabel/tokenizers/api"
	"github.com/pkg/errors"
)

// Reserved sentinel tokens. They always occupy the first four ids of a built Vocabulary,
// in this order.
const (
	Pad = "<PAD>"
	BOS = "<BOS>"
	EOS = "<EOS>"
	UNK = "<UNK>"
)

// Ids of the reserved sentinel tokens.
const (
	PadID = iota
	BOSID
	EOSID
	UNKID

	// NumReserved is the number of reserved ids, and the id of the first corpus token.
	NumReserved
)

// Reserved lists the sentinel tokens in id order.
var Reserved = [NumReserved]string{Pad, BOS, EOS, UNK}

var (
	// ErrInvalidConfig is returned for malformed configuration, like a negative minimum count or
	// a non-positive sequence length.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotBuilt is returned when a vocabulary is used before it has been built.
	ErrNotBuilt = errors.New("vocabulary not built")
)

// IsReserved returns whether token is one of the sentinel tokens.
func IsReserved(token string) bool {
	for _, r := range Reserved {
		if token == r {
			return true
		}
	}
	return false
}

// Vocabulary is a bidirectional mapping between tokens and contiguous ids starting at 0.
type Vocabulary struct {
	tokens []string
	ids    map[string]int
}

// Compile time assert that Vocabulary resolves special tokens like a tokenizer.
var _ interface {
	SpecialTokenID(token api.SpecialToken) (int, error)
} = &Vocabulary{}

// newReserved returns a vocabulary holding only the sentinel tokens.
func newReserved(capacity int) *Vocabulary {
	v := &Vocabulary{
		tokens: make([]string, 0, NumReserved+capacity),
		ids:    make(map[string]int, NumReserved+capacity),
	}
	for _, token := range Reserved {
		v.append(token)
	}
	return v
}

func (v *Vocabulary) append(token string) {
	v.ids[token] = len(v.tokens)
	v.tokens = append(v.tokens, token)
}

// FromTokens creates a vocabulary from a fixed list of tokens, for instance the rows of a
// pretrained word-vector file. The sentinels are prepended, so tokens[i] gets id i+NumReserved
// as long as tokens has no duplicates. Duplicates and sentinel names are skipped.
func FromTokens(tokens []string) *Vocabulary {
	v := newReserved(len(tokens))
	for _, token := range tokens {
		if _, found := v.ids[token]; found {
			continue
		}
		v.append(token)
	}
	return v
}

// Len returns the number of entries, sentinels included.
func (v *Vocabulary) Len() int {
	return len(v.tokens)
}

// Tokens returns a copy of the tokens in id order.
func (v *Vocabulary) Tokens() []string {
	out := make([]string, len(v.tokens))
	copy(out, v.tokens)
	return out
}

// Lookup returns the id of token, and whether it is in the vocabulary.
func (v *Vocabulary) Lookup(token string) (int, bool) {
	id, found := v.ids[token]
	return id, found
}

// ID returns the id of token, or UNKID if it is not in the vocabulary.
func (v *Vocabulary) ID(token string) int {
	if id, found := v.ids[token]; found {
		return id
	}
	return UNKID
}

// Contains reports whether token is in the vocabulary.
func (v *Vocabulary) Contains(token string) bool {
	_, found := v.ids[token]
	return found
}

// Token returns the token for id, and false if id is out of range.
func (v *Vocabulary) Token(id int) (string, bool) {
	if id < 0 || id >= len(v.tokens) {
		return "", false
	}
	return v.tokens[id], true
}

// SpecialTokenID returns the id of the given sentinel.
// Only pad, beginning and end of sentence, and unknown are defined.
func (v *Vocabulary) SpecialTokenID(token api.SpecialToken) (int, error) {
	switch token {
	case api.TokPad:
		return PadID, nil
	case api.TokBeginningOfSentence:
		return BOSID, nil
	case api.TokEndOfSentence:
		return EOSID, nil
	case api.TokUnknown:
		return UNKID, nil
	default:
		return 0, errors.Errorf("special token %s not defined in vocabulary", token)
	}
}

type vocabularyJSON struct {
	Tokens []string `json:"tokens"`
}

// MarshalJSON implements json.Marshaler.
func (v *Vocabulary) MarshalJSON() ([]byte, error) {
	return json.Marshal(vocabularyJSON{Tokens: v.tokens})
}

// UnmarshalJSON implements json.Unmarshaler. The sentinels must be in their reserved positions.
func (v *Vocabulary) UnmarshalJSON(data []byte) error {
	var raw vocabularyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "failed to parse vocabulary")
	}
	if len(raw.Tokens) < NumReserved {
		return errors.Errorf("vocabulary has %d entries, it must hold at least the %d reserved tokens",
			len(raw.Tokens), NumReserved)
	}
	for id, token := range Reserved {
		if raw.Tokens[id] != token {
			return errors.Errorf("vocabulary entry %d is %q, expected reserved token %q", id, raw.Tokens[id], token)
		}
	}
	loaded := &Vocabulary{
		tokens: make([]string, 0, len(raw.Tokens)),
		ids:    make(map[string]int, len(raw.Tokens)),
	}
	for _, token := range raw.Tokens {
		if _, found := loaded.ids[token]; found {
			return errors.Errorf("duplicate vocabulary entry %q", token)
		}
		loaded.append(token)
	}
	*v = *loaded
	return nil
}

// Save writes the vocabulary as JSON to path.
func (v *Vocabulary) Save(path string) error {
	content, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to serialize vocabulary")
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write vocabulary to %q", path)
	}
	return nil
}

// Load reads a vocabulary saved with Vocabulary.Save.
func Load(path string) (*Vocabulary, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read vocabulary from %q", path)
	}
	v := &Vocabulary{}
	if err := json.Unmarshal(content, v); err != nil {
		return nil, errors.WithMessagef(err, "while loading %q", path)
	}
	return v, nil
}
