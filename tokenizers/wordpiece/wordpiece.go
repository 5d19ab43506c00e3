// Package wordpiece implements an api.Tokenizer for BERT checkpoints that ship only a "vocab.txt"
// file (one WordPiece token per line, the line number being its id).
//
// Tokenization uses github.com/sugarme/tokenizer with the BERT normalizer (lower casing, accent
// stripping, Chinese characters isolated) and pre-tokenizer.
package wordpiece

import (
	"strings"

	"github.com/gomlx/go-seqlabel/hub"
	"github.com/gomlx/go-seqlabel/tokenizers/api"
	"github.com/pkg/errors"
	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"k8s.io/klog/v2"
)

// FileName of the vocabulary in a repository.
const FileName = "vocab.txt"

// continuingPrefix marks pieces that continue a word.
const continuingPrefix = "##"

// defaultSpecialTokens used when no tokenizer config names them.
var defaultSpecialTokens = [api.TokSpecialTokensCount]string{
	api.TokBeginningOfSentence: "[CLS]",
	api.TokEndOfSentence:       "[SEP]",
	api.TokUnknown:             "[UNK]",
	api.TokPad:                 "[PAD]",
	api.TokMask:                "[MASK]",
	api.TokClassification:      "[CLS]",
}

// Tokenizer is a BERT WordPiece tokenizer.
type Tokenizer struct {
	tokenizer  *tk.Tokenizer
	vocab      map[string]int
	idToToken  []string
	specialIDs [api.TokSpecialTokensCount]int
}

var (
	_ api.Tokenizer   = &Tokenizer{}
	_ api.TokenLookup = &Tokenizer{}
)

// New creates a WordPiece tokenizer from the "vocab.txt" file of repo.
// config is optional, it overrides the default BERT special token names.
func New(config *api.Config, repo *hub.Repo) (*Tokenizer, error) {
	found, err := repo.HasFile(FileName)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Errorf("%q file not found in repo %s", FileName, repo)
	}
	vocabFile, err := repo.DownloadFile(FileName)
	if err != nil {
		return nil, errors.WithMessagef(err, "can't download %s file", FileName)
	}
	return NewFromFile(config, vocabFile)
}

// NewFromFile creates a WordPiece tokenizer from a local vocab.txt file.
func NewFromFile(config *api.Config, vocabPath string) (*Tokenizer, error) {
	names := specialTokenNames(config)
	wp, err := wordpiece.NewWordPieceFromFile(vocabPath, names[api.TokUnknown])
	if err != nil {
		return nil, errors.Wrapf(err, "can't load WordPiece vocabulary from %q", vocabPath)
	}
	t := tk.NewTokenizer(wp)
	t.WithNormalizer(normalizer.NewBertNormalizer(true, true, true, true))
	t.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())

	p := &Tokenizer{tokenizer: t, vocab: t.GetVocab(true)}
	if len(p.vocab) == 0 {
		return nil, errors.Errorf("WordPiece vocabulary %q is empty", vocabPath)
	}
	maxID := 0
	for _, id := range p.vocab {
		maxID = max(maxID, id)
	}
	p.idToToken = make([]string, maxID+1)
	for token, id := range p.vocab {
		p.idToToken[id] = token
	}
	for token, name := range names {
		p.specialIDs[token] = -1
		if id, found := p.vocab[name]; found {
			p.specialIDs[token] = id
		}
	}
	klog.V(1).Infof("loaded WordPiece vocabulary %q: %d tokens", vocabPath, len(p.vocab))
	return p, nil
}

func specialTokenNames(config *api.Config) [api.TokSpecialTokensCount]string {
	names := defaultSpecialTokens
	if config == nil {
		return names
	}
	overrides := []struct {
		token api.SpecialToken
		name  string
	}{
		{api.TokBeginningOfSentence, config.ClsToken},
		{api.TokBeginningOfSentence, config.BosToken},
		{api.TokEndOfSentence, config.SepToken},
		{api.TokEndOfSentence, config.EosToken},
		{api.TokUnknown, config.UnkToken},
		{api.TokPad, config.PadToken},
		{api.TokMask, config.MaskToken},
		{api.TokClassification, config.ClsToken},
	}
	for _, o := range overrides {
		if o.name != "" {
			names[o.token] = o.name
		}
	}
	return names
}

// Encode returns the text encoded into a sequence of ids, without special tokens.
func (p *Tokenizer) Encode(text string) []int {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	enc, err := p.tokenizer.EncodeSingle(text)
	if err != nil {
		klog.Warningf("WordPiece failed to encode %q: %v", text, err)
		return nil
	}
	pieces := enc.GetIds()
	ids := make([]int, len(pieces))
	for i, id := range pieces {
		ids[i] = int(id)
	}
	return ids
}

// EncodeWord encodes a single word into its pieces.
func (p *Tokenizer) EncodeWord(word string) []int {
	return p.Encode(word)
}

// TokenToID returns the id of token if it is in the vocabulary as is.
func (p *Tokenizer) TokenToID(token string) (int, bool) {
	id, found := p.vocab[token]
	return id, found
}

// Decode joins the pieces of ids, merging continuation pieces into their word.
func (p *Tokenizer) Decode(ids []int) string {
	var sb strings.Builder
	for i, id := range ids {
		if id < 0 || id >= len(p.idToToken) {
			continue
		}
		token := p.idToToken[id]
		if rest, ok := strings.CutPrefix(token, continuingPrefix); ok && i > 0 {
			sb.WriteString(rest)
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(token)
	}
	return sb.String()
}

// VocabSize returns the number of tokens in the vocabulary.
func (p *Tokenizer) VocabSize() int {
	return len(p.idToToken)
}

// SpecialTokenID returns the id of the given special token, or an error if the vocabulary doesn't
// have it.
func (p *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	if token < 0 || token >= api.TokSpecialTokensCount {
		return 0, errors.Errorf("unknown special token: %s (%d)", token, int(token))
	}
	id := p.specialIDs[token]
	if id < 0 {
		return 0, errors.Errorf("special token %s not in the WordPiece vocabulary", token)
	}
	return id, nil
}
