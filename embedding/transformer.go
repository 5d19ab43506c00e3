package embedding

import (
	"github.com/gomlx/go-seqlabel/hub"
	"github.com/gomlx/go-seqlabel/safetensors"
	"github.com/gomlx/go-seqlabel/sequence"
	"github.com/gomlx/go-seqlabel/tokenizers/api"
	"github.com/gomlx/go-seqlabel/tokenizers/hftokenizer"
	"github.com/gomlx/go-seqlabel/tokenizers/sentencepiece"
	"github.com/gomlx/go-seqlabel/tokenizers/wordpiece"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// TokenizerConfigFile is the optional file naming the special tokens of a checkpoint.
const TokenizerConfigFile = "tokenizer_config.json"

// TokenEmbeddingNames are the candidate names of the token embedding table in a checkpoint, in
// order of preference. A tensor matches a candidate if its name is the candidate or ends with
// "." followed by it.
var TokenEmbeddingNames = []string{
	"embeddings.word_embeddings.weight",
	"word_embeddings.weight",
	"embed_tokens.weight",
	"wte.weight",
}

// Transformer uses the token embedding table of a transformer checkpoint.
//
// Each input token maps to a single row: its id if the tokenizer knows it whole, otherwise the
// id of its first sub-word piece, otherwise the unknown token.
type Transformer struct {
	table
	repo      *hub.Repo
	tokenizer api.Tokenizer
}

var _ Embedding = &Transformer{}

// LoadTransformer loads the tokenizer and token embedding table of the checkpoint in repo.
//
// The tokenizer is chosen by the files present: "tokenizer.json", then "tokenizer.model"
// (SentencePiece), then "vocab.txt" (WordPiece).
func LoadTransformer(repo *hub.Repo, sequenceLength int, opts ...Option) (*Transformer, error) {
	o := newOptions(opts)
	tok, err := loadTokenizer(repo)
	if err != nil {
		return nil, err
	}
	vectors, err := loadTokenEmbeddings(repo)
	if err != nil {
		return nil, err
	}
	rows, dim := vectors.Dims()
	v := &tokenizerVocabulary{tokenizer: tok, size: rows}
	if lookup, ok := tok.(api.TokenLookup); ok {
		v.lookup = lookup
	}
	encoder, err := sequence.New(v, sequenceLength)
	if err != nil {
		return nil, errors.WithMessagef(err, "checkpoint %s", repo)
	}
	s := encoder.Sentinels()
	for _, id := range []int{s.Pad, s.Begin, s.End, s.Unknown} {
		if id < 0 || id >= rows {
			return nil, errors.Errorf("checkpoint %s: special token id %d out of the embedding table range (%d rows)", repo, id, rows)
		}
	}
	klog.V(1).Infof("transformer embedding %s: %d tokens of dimension %d, sentinels %+v", repo, rows, dim, s)
	return &Transformer{
		table:     table{name: repo.String(), encoder: encoder, vectors: vectors, trainable: o.isTrainable(false)},
		repo:      repo,
		tokenizer: tok,
	}, nil
}

// Repo returns the checkpoint the embedding was loaded from.
func (t *Transformer) Repo() *hub.Repo {
	return t.repo
}

// Tokenizer returns the tokenizer of the checkpoint.
func (t *Transformer) Tokenizer() api.Tokenizer {
	return t.tokenizer
}

func loadTokenizerConfig(repo *hub.Repo) (*api.Config, error) {
	found, err := repo.HasFile(TokenizerConfigFile)
	if err != nil || !found {
		return nil, err
	}
	path, err := repo.DownloadFile(TokenizerConfigFile)
	if err != nil {
		return nil, err
	}
	return api.LoadConfig(path)
}

func loadTokenizer(repo *hub.Repo) (api.Tokenizer, error) {
	config, err := loadTokenizerConfig(repo)
	if err != nil {
		return nil, errors.WithMessagef(err, "checkpoint %s", repo)
	}
	candidates := []struct {
		file string
		load func() (api.Tokenizer, error)
	}{
		{hftokenizer.FileName, func() (api.Tokenizer, error) { return hftokenizer.New(config, repo) }},
		{sentencepiece.FileName, func() (api.Tokenizer, error) { return sentencepiece.New(config, repo) }},
		{wordpiece.FileName, func() (api.Tokenizer, error) { return wordpiece.New(config, repo) }},
	}
	for _, c := range candidates {
		found, err := repo.HasFile(c.file)
		if err != nil {
			return nil, err
		}
		if found {
			tok, err := c.load()
			if err != nil {
				return nil, errors.WithMessagef(err, "checkpoint %s", repo)
			}
			return tok, nil
		}
	}
	return nil, errors.Errorf("checkpoint %s has no tokenizer (%s, %s or %s)", repo,
		hftokenizer.FileName, sentencepiece.FileName, wordpiece.FileName)
}

func loadTokenEmbeddings(repo *hub.Repo) (*mat.Dense, error) {
	model, err := safetensors.FromRepo(repo)
	if err != nil {
		return nil, errors.WithMessagef(err, "checkpoint %s", repo)
	}
	defer func() { _ = model.Close() }()
	for _, candidate := range TokenEmbeddingNames {
		name, found := model.Find(candidate)
		if !found {
			continue
		}
		meta, err := model.Metadata(name)
		if err != nil {
			return nil, err
		}
		if len(meta.Shape) != 2 {
			continue
		}
		return model.ReadDense(name)
	}
	return nil, errors.Errorf("checkpoint %s has no token embedding table (looked for %v)", repo, TokenEmbeddingNames)
}

// tokenizerVocabulary adapts a tokenizer to sequence.Vocabulary.
type tokenizerVocabulary struct {
	tokenizer api.Tokenizer
	lookup    api.TokenLookup
	size      int
}

type wordEncoder interface {
	EncodeWord(word string) []int
}

func (v *tokenizerVocabulary) valid(id int) bool {
	return id >= 0 && id < v.size
}

// ID implements sequence.Vocabulary.
func (v *tokenizerVocabulary) ID(token string) int {
	if v.lookup != nil {
		if id, found := v.lookup.TokenToID(token); found && v.valid(id) {
			return id
		}
	}
	var pieces []int
	if we, ok := v.tokenizer.(wordEncoder); ok {
		pieces = we.EncodeWord(token)
	} else {
		pieces = v.tokenizer.Encode(token)
	}
	if len(pieces) > 0 && v.valid(pieces[0]) {
		return pieces[0]
	}
	unk, err := v.SpecialTokenID(api.TokUnknown)
	if err != nil {
		return 0
	}
	return unk
}

// Token implements sequence.Vocabulary.
func (v *tokenizerVocabulary) Token(id int) (string, bool) {
	if !v.valid(id) {
		return "", false
	}
	return v.tokenizer.Decode([]int{id}), true
}

// SpecialTokenID implements sequence.Vocabulary. Checkpoints without begin or end of sentence
// tokens use their classification and end tokens instead.
func (v *tokenizerVocabulary) SpecialTokenID(token api.SpecialToken) (int, error) {
	var fallbacks []api.SpecialToken
	switch token {
	case api.TokBeginningOfSentence:
		fallbacks = []api.SpecialToken{api.TokClassification, api.TokEndOfSentence}
	case api.TokPad:
		fallbacks = []api.SpecialToken{api.TokEndOfSentence}
	}
	id, err := v.tokenizer.SpecialTokenID(token)
	for _, fallback := range fallbacks {
		if err == nil {
			break
		}
		id, err = v.tokenizer.SpecialTokenID(fallback)
	}
	return id, err
}
