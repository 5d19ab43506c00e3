// Package segment splits raw text into the token sequences consumed by vocabularies and taggers.
//
// Chars produces one token per character, the usual unit for Chinese sequence labeling. Words
// uses a dictionary based segmenter (github.com/go-ego/gse) to produce word tokens.
package segment

import (
	"strings"
	"sync"
	"unicode"

	"github.com/go-ego/gse"
	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

// Normalize puts text in NFC. It is applied to the tokens of the datasets too, so that text cut
// at prediction time finds the tokens seen in training. Compatibility forms, like full-width
// punctuation, are kept apart from their ASCII counterparts.
func Normalize(text string) string {
	return norm.NFC.String(text)
}

// Chars normalizes text and returns one token per character, dropping whitespace.
func Chars(text string) []string {
	text = Normalize(text)
	tokens := make([]string, 0, len(text))
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		tokens = append(tokens, string(r))
	}
	return tokens
}

// CharsBatch applies Chars to every text.
func CharsBatch(texts []string) [][]string {
	out := make([][]string, len(texts))
	for i, text := range texts {
		out[i] = Chars(text)
	}
	return out
}

// Words segments text into words.
type Words struct {
	mu  sync.Mutex
	seg gse.Segmenter
}

// NewWords creates a word segmenter with the given dictionary files, or with the default
// dictionary embedded in gse if none is given.
func NewWords(dictPaths ...string) (*Words, error) {
	seg, err := gse.New(dictPaths...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load segmentation dictionaries %v", dictPaths)
	}
	return &Words{seg: seg}, nil
}

// Cut splits text into words, with HMM discovery of words missing from the dictionary. Whitespace
// is dropped.
func (w *Words) Cut(text string) []string {
	w.mu.Lock()
	pieces := w.seg.Cut(Normalize(text), true)
	w.mu.Unlock()
	tokens := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		// Pieces may keep inner spaces, e.g. for latin text.
		tokens = append(tokens, strings.Fields(piece)...)
	}
	return tokens
}
