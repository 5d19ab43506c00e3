// Package sentencepiece implements an api.Tokenizer based on Google's SentencePiece models
// ("tokenizer.model" files), as shipped by T5, XLNet or ALBERT checkpoints.
package sentencepiece

import (
	"strings"

	esentencepiece "github.com/eliben/go-sentencepiece"
	"github.com/gomlx/go-seqlabel/hub"
	"github.com/gomlx/go-seqlabel/tokenizers/api"
	"github.com/pkg/errors"
)

// FileName of the SentencePiece model proto in a repository.
const FileName = "tokenizer.model"

// metaspace marks the start of a word in SentencePiece pieces.
const metaspace = "▁"

// Tokenizer implements api.Tokenizer based on a SentencePiece processor.
type Tokenizer struct {
	*esentencepiece.Processor
	Info *esentencepiece.ModelInfo
}

var (
	_ api.Tokenizer   = &Tokenizer{}
	_ api.TokenLookup = &Tokenizer{}
)

// New creates a SentencePiece tokenizer from the "tokenizer.model" file of repo.
//
// config is accepted for symmetry with the other backends: special tokens are always taken from
// the model proto itself.
func New(config *api.Config, repo *hub.Repo) (*Tokenizer, error) {
	_ = config
	found, err := repo.HasFile(FileName)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Errorf("%q file not found in repo %s", FileName, repo)
	}
	tokenizerFile, err := repo.DownloadFile(FileName)
	if err != nil {
		return nil, errors.WithMessagef(err, "can't download %s file", FileName)
	}
	return NewFromFile(tokenizerFile)
}

// NewFromFile creates a SentencePiece tokenizer from a local model proto file.
func NewFromFile(filePath string) (*Tokenizer, error) {
	proc, err := esentencepiece.NewProcessorFromPath(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "can't create sentencepiece tokenizer from %q", filePath)
	}
	return &Tokenizer{
		Processor: proc,
		Info:      proc.ModelInfo(),
	}, nil
}

// Encode returns the text encoded into a sequence of ids.
func (p *Tokenizer) Encode(text string) []int {
	return tokenIDs(p.Processor.Encode(text))
}

// EncodeWord encodes a single word into its sub-word pieces.
func (p *Tokenizer) EncodeWord(word string) []int {
	return p.Encode(word)
}

// TokenToID returns the id of token if the model encodes it as a single piece, either as is or
// as a word start ("▁" + token).
func (p *Tokenizer) TokenToID(token string) (int, bool) {
	if token == "" {
		return 0, false
	}
	pieces := p.Processor.Encode(token)
	if len(pieces) == 1 && strings.TrimPrefix(pieces[0].Text, metaspace) == token {
		return pieces[0].ID, true
	}
	// Word start marker split as its own piece.
	if len(pieces) == 2 && pieces[0].Text == metaspace && pieces[1].Text == token {
		return pieces[1].ID, true
	}
	return 0, false
}

// Decode returns the text from a sequence of ids.
func (p *Tokenizer) Decode(ids []int) string {
	return p.Processor.Decode(ids)
}

// VocabSize returns the number of pieces in the model.
func (p *Tokenizer) VocabSize() int {
	return p.Info.VocabularySize
}

// SpecialTokenID returns the token for the given symbol, or an error if not known.
func (p *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	var id int
	switch token {
	case api.TokUnknown:
		id = p.Info.UnknownID
	case api.TokPad:
		id = p.Info.PadID
	case api.TokBeginningOfSentence, api.TokClassification:
		id = p.Info.BeginningOfSentenceID
	case api.TokEndOfSentence:
		id = p.Info.EndOfSentenceID
	default:
		return 0, errors.Errorf("unknown special token: %s (%d)", token, int(token))
	}
	if id < 0 {
		return 0, errors.Errorf("special token %s not defined by the sentencepiece model", token)
	}
	return id, nil
}

func tokenIDs(tokens []esentencepiece.Token) []int {
	ids := make([]int, len(tokens))
	for i, t := range tokens {
		ids[i] = t.ID
	}
	return ids
}
