// Package hftokenizer reads the tokenizer.json files written by the HuggingFace "fast" tokenizers
// and encodes text with them. WordPiece, BPE and Unigram models are supported.
package hftokenizer

import (
	"bytes"
	"encoding/json"
	"os"
	"slices"

	"github.com/gomlx/go-seqlabel/hub"
	"github.com/gomlx/go-seqlabel/tokenizers/api"
	"github.com/pkg/errors"
)

// FileName is the name of the tokenizer file in a model repository.
const FileName = "tokenizer.json"

// TokenizerJSON is the subset of tokenizer.json used for encoding.
// Truncation, padding and post-processing are not used: sequences are wrapped by the encoders.
type TokenizerJSON struct {
	Version      string        `json:"version"`
	AddedTokens  []AddedToken  `json:"added_tokens"`
	Normalizer   *Normalizer   `json:"normalizer"`
	PreTokenizer *PreTokenizer `json:"pre_tokenizer"`
	Decoder      *Decoder      `json:"decoder"`
	Model        Model         `json:"model"`
}

// AddedToken represents a token added to the vocabulary, usually a special one.
type AddedToken struct {
	ID         int    `json:"id"`
	Content    string `json:"content"`
	SingleWord bool   `json:"single_word"`
	Lstrip     bool   `json:"lstrip"`
	Rstrip     bool   `json:"rstrip"`
	Normalized bool   `json:"normalized"`
	Special    bool   `json:"special"`
}

// Pattern for string or regex based operations. Only String patterns are supported.
type Pattern struct {
	Regex  string `json:"Regex,omitempty"`
	String string `json:"String,omitempty"`
}

// Normalizer configures the text normalization applied before pre-tokenization.
type Normalizer struct {
	Type               string       `json:"type"`
	Lowercase          bool         `json:"lowercase"`
	CleanText          bool         `json:"clean_text"`
	HandleChineseChars bool         `json:"handle_chinese_chars"`
	StripAccents       *bool        `json:"strip_accents"`
	Normalizers        []Normalizer `json:"normalizers"`
	Pattern            *Pattern     `json:"pattern"`
	Content            string       `json:"content"`
	Prepend            string       `json:"prepend"`
}

// PreTokenizer configures how text is split into words.
type PreTokenizer struct {
	Type           string         `json:"type"`
	AddPrefixSpace bool           `json:"add_prefix_space"`
	PrependScheme  string         `json:"prepend_scheme"`
	Replacement    string         `json:"replacement"`
	PreTokenizers  []PreTokenizer `json:"pretokenizers"`
}

// Decoder configures how tokens are joined back into text.
type Decoder struct {
	Type     string    `json:"type"`
	Prefix   string    `json:"prefix"`
	Suffix   string    `json:"suffix"`
	Decoders []Decoder `json:"decoders"`
	Pattern  *Pattern  `json:"pattern"`
	Content  string    `json:"content"`
}

// Model holds the vocabulary and the parameters of a WordPiece, BPE or Unigram model.
type Model struct {
	Type                    string `json:"type"`
	UnkToken                string `json:"unk_token"`
	UnkID                   *int   `json:"unk_id"` // Unigram only.
	ContinuingSubwordPrefix string `json:"continuing_subword_prefix"`
	MaxInputCharsPerWord    int    `json:"max_input_chars_per_word"`
	EndOfWordSuffix         string `json:"end_of_word_suffix"`
	FuseUnk                 bool   `json:"fuse_unk"`

	// Vocab maps tokens to ids. For Unigram models it is built from the scored pieces list.
	Vocab  map[string]int `json:"-"`
	Scores []float64      `json:"-"` // Unigram only, indexed by id.
	Merges [][2]string    `json:"-"` // BPE only, in priority order.
}

// UnmarshalJSON handles the variants of the model vocabulary (a map for WordPiece and BPE, a
// list of [piece, score] for Unigram) and of the BPE merges ("a b" strings or ["a", "b"] pairs).
func (m *Model) UnmarshalJSON(data []byte) error {
	type plainModel Model
	var raw struct {
		plainModel
		Vocab  json.RawMessage   `json:"vocab"`
		Merges []json.RawMessage `json:"merges"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Model(raw.plainModel)
	m.Vocab = make(map[string]int)
	vocab := bytes.TrimSpace(raw.Vocab)
	switch {
	case len(vocab) == 0 || bytes.Equal(vocab, []byte("null")):
	case vocab[0] == '{':
		if err := json.Unmarshal(vocab, &m.Vocab); err != nil {
			return errors.Wrap(err, "failed to parse model vocab")
		}
	case vocab[0] == '[':
		var pieces [][2]json.RawMessage
		if err := json.Unmarshal(vocab, &pieces); err != nil {
			return errors.Wrap(err, "failed to parse unigram vocab")
		}
		m.Scores = make([]float64, len(pieces))
		for id, piece := range pieces {
			var token string
			if err := json.Unmarshal(piece[0], &token); err != nil {
				return errors.Wrapf(err, "failed to parse unigram piece %d", id)
			}
			if err := json.Unmarshal(piece[1], &m.Scores[id]); err != nil {
				return errors.Wrapf(err, "failed to parse score of unigram piece %q", token)
			}
			m.Vocab[token] = id
		}
	default:
		return errors.Errorf("unexpected model vocab format %.20q", vocab)
	}
	for i, merge := range raw.Merges {
		var pair [2]string
		var text string
		if err := json.Unmarshal(merge, &text); err == nil {
			var found bool
			pair[0], pair[1], found = cutSpace(text)
			if !found {
				return errors.Errorf("invalid merge %q", text)
			}
		} else if err := json.Unmarshal(merge, &pair); err != nil {
			return errors.Wrapf(err, "failed to parse merge #%d", i)
		}
		m.Merges = append(m.Merges, pair)
	}
	return nil
}

// Tokenizer encodes text with a parsed tokenizer.json.
type Tokenizer struct {
	config    *api.Config
	tokenizer *TokenizerJSON
	idToToken map[int]string

	mergeRanks map[[2]string]int // BPE: merge priority.
	maxPiece   int               // Unigram: longest piece, in runes.

	specialIDs  [api.TokSpecialTokensCount]int // -1 if not defined.
	addedTokens map[string]int                 // content -> id.
}

// Tokenizer is an api.Tokenizer.
var (
	_ api.Tokenizer   = &Tokenizer{}
	_ api.TokenLookup = &Tokenizer{}
)

// New creates a HuggingFace tokenizer from the tokenizer.json file of repo.
// config is optional, it's used to resolve the special tokens.
func New(config *api.Config, repo *hub.Repo) (*Tokenizer, error) {
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
	return NewFromFile(config, tokenizerFile)
}

// NewFromFile parses the tokenizer.json at path.
func NewFromFile(config *api.Config, filePath string) (*Tokenizer, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tokenizer.json file %q", filePath)
	}
	return NewFromContent(config, content)
}

// NewFromContent parses tokenizer.json content.
func NewFromContent(config *api.Config, content []byte) (*Tokenizer, error) {
	var tj TokenizerJSON
	if err := json.Unmarshal(content, &tj); err != nil {
		return nil, errors.Wrapf(err, "failed to parse tokenizer.json")
	}
	switch tj.Model.Type {
	case "WordPiece", "BPE", "Unigram":
	case "":
		// Older files omit the type: infer it from the fields present.
		switch {
		case tj.Model.Scores != nil:
			tj.Model.Type = "Unigram"
		case tj.Model.Merges != nil:
			tj.Model.Type = "BPE"
		default:
			tj.Model.Type = "WordPiece"
		}
	default:
		return nil, errors.Errorf("tokenizer model type %q not supported", tj.Model.Type)
	}

	t := &Tokenizer{
		config:      config,
		tokenizer:   &tj,
		idToToken:   make(map[int]string, len(tj.Model.Vocab)+len(tj.AddedTokens)),
		addedTokens: make(map[string]int, len(tj.AddedTokens)),
	}
	for token, id := range tj.Model.Vocab {
		t.idToToken[id] = token
		if tj.Model.Type == "Unigram" {
			t.maxPiece = max(t.maxPiece, len([]rune(token)))
		}
	}
	for _, at := range tj.AddedTokens {
		t.addedTokens[at.Content] = at.ID
		t.idToToken[at.ID] = at.Content
	}
	if tj.Model.Type == "BPE" {
		t.mergeRanks = make(map[[2]string]int, len(tj.Model.Merges))
		for i, merge := range tj.Model.Merges {
			if _, found := t.mergeRanks[merge]; !found {
				t.mergeRanks[merge] = i
			}
		}
	}
	t.resolveSpecialTokens()
	return t, nil
}

// conventionalNames of special tokens, tried when the configuration doesn't name them.
var conventionalNames = [api.TokSpecialTokensCount][]string{
	api.TokBeginningOfSentence: {"[CLS]", "<s>", "<bos>", "<|startoftext|>"},
	api.TokEndOfSentence:       {"[SEP]", "</s>", "<eos>", "<|endoftext|>"},
	api.TokUnknown:             {"[UNK]", "<unk>"},
	api.TokPad:                 {"[PAD]", "<pad>"},
	api.TokMask:                {"[MASK]", "<mask>"},
	api.TokClassification:      {"[CLS]", "<s>"},
}

// configuredName returns the name of a special token given by the configuration, if any.
func (t *Tokenizer) configuredName(token api.SpecialToken) string {
	c := t.config
	if c == nil {
		return ""
	}
	switch token {
	case api.TokBeginningOfSentence:
		if c.BosToken != "" {
			return c.BosToken
		}
		return c.ClsToken
	case api.TokEndOfSentence:
		if c.EosToken != "" {
			return c.EosToken
		}
		return c.SepToken
	case api.TokUnknown:
		return c.UnkToken
	case api.TokPad:
		return c.PadToken
	case api.TokMask:
		return c.MaskToken
	case api.TokClassification:
		return c.ClsToken
	}
	return ""
}

// resolveSpecialTokens maps special tokens to their ids: the configured name first, then the
// model's unknown token, then the conventional names.
func (t *Tokenizer) resolveSpecialTokens() {
	for i := range t.specialIDs {
		token := api.SpecialToken(i)
		t.specialIDs[i] = -1
		candidates := []string{t.configuredName(token)}
		if token == api.TokUnknown {
			candidates = append(candidates, t.tokenizer.Model.UnkToken)
		}
		candidates = append(candidates, conventionalNames[token]...)
		for _, name := range candidates {
			if name == "" {
				continue
			}
			if id, ok := t.TokenToID(name); ok {
				t.specialIDs[i] = id
				break
			}
		}
	}
	if t.specialIDs[api.TokUnknown] == -1 && t.tokenizer.Model.UnkID != nil {
		t.specialIDs[api.TokUnknown] = *t.tokenizer.Model.UnkID
	}
}

// SpecialTokenID returns the id of token, or an error if the tokenizer lacks it.
func (t *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	if token >= 0 && token < api.TokSpecialTokensCount && t.specialIDs[token] >= 0 {
		return t.specialIDs[token], nil
	}
	return 0, errors.Errorf("special token %s not found", token)
}

// unkIDs returns the unknown token as a slice, or nil if the tokenizer has none.
func (t *Tokenizer) unkIDs() []int {
	if id := t.specialIDs[api.TokUnknown]; id >= 0 {
		return []int{id}
	}
	return nil
}

// Encode returns the ids of text. Added tokens are matched first and never split.
func (t *Tokenizer) Encode(text string) []int {
	var ids []int
	for _, segment := range t.splitAddedTokens(text) {
		if segment.added {
			ids = append(ids, t.addedTokens[segment.text])
			continue
		}
		normalized := t.normalize(segment.text)
		for _, word := range t.preTokenize(normalized) {
			ids = append(ids, t.tokenizeWord(word)...)
		}
	}
	return ids
}

// EncodeWord tokenizes a single pre-split word: it is normalized but not pre-tokenized further,
// except for the prefix space handling of Metaspace and ByteLevel pre-tokenizers.
func (t *Tokenizer) EncodeWord(word string) []int {
	if id, ok := t.addedTokens[word]; ok {
		return []int{id}
	}
	var ids []int
	for _, piece := range t.preTokenize(t.normalize(word)) {
		ids = append(ids, t.tokenizeWord(piece)...)
	}
	return ids
}

type textSegment struct {
	text  string
	added bool
}

// splitAddedTokens splits text around occurrences of the added tokens, which are never split by
// the model. The longest added token matching at each position wins.
func (t *Tokenizer) splitAddedTokens(text string) []textSegment {
	if len(t.addedTokens) == 0 {
		return []textSegment{{text: text}}
	}
	contents := make([]string, 0, len(t.addedTokens))
	for content := range t.addedTokens {
		if content != "" {
			contents = append(contents, content)
		}
	}
	slices.SortFunc(contents, func(a, b string) int { return len(b) - len(a) })

	var segments []textSegment
	start := 0
	for i := 0; i < len(text); {
		var match string
		for _, content := range contents {
			if len(text)-i >= len(content) && text[i:i+len(content)] == content {
				match = content
				break
			}
		}
		if match == "" {
			i++
			continue
		}
		if start < i {
			segments = append(segments, textSegment{text: text[start:i]})
		}
		segments = append(segments, textSegment{text: match, added: true})
		i += len(match)
		start = i
	}
	if start < len(text) {
		segments = append(segments, textSegment{text: text[start:]})
	}
	return segments
}

// tokenizeWord dispatches on the model type.
func (t *Tokenizer) tokenizeWord(word string) []int {
	if id, ok := t.addedTokens[word]; ok {
		return []int{id}
	}
	switch t.tokenizer.Model.Type {
	case "WordPiece":
		return t.wordPieceTokenize(word)
	case "BPE":
		return t.bpeTokenize(word)
	default:
		return t.unigramTokenize(word)
	}
}

// Decode joins the tokens of ids with the configured decoder. Unknown ids are skipped.
func (t *Tokenizer) Decode(ids []int) string {
	tokens := make([]string, 0, len(ids))
	for _, id := range ids {
		if token, ok := t.idToToken[id]; ok {
			tokens = append(tokens, token)
		}
	}
	return t.decode(tokens)
}

// Type returns the model type (WordPiece, BPE, Unigram).
func (t *Tokenizer) Type() string {
	return t.tokenizer.Model.Type
}

// VocabSize returns the number of ids: the largest id plus one.
func (t *Tokenizer) VocabSize() int {
	size := 0
	for id := range t.idToToken {
		size = max(size, id+1)
	}
	return size
}

// TokenToID returns the id of token, if it is in the vocabulary.
func (t *Tokenizer) TokenToID(token string) (int, bool) {
	if id, ok := t.addedTokens[token]; ok {
		return id, true
	}
	id, ok := t.tokenizer.Model.Vocab[token]
	return id, ok
}

// IDToToken returns the token of id, if any.
func (t *Tokenizer) IDToToken(id int) (string, bool) {
	token, ok := t.idToToken[id]
	return token, ok
}

// AddedTokensList returns the added tokens ordered by id.
func (t *Tokenizer) AddedTokensList() []AddedToken {
	result := slices.Clone(t.tokenizer.AddedTokens)
	slices.SortFunc(result, func(a, b AddedToken) int { return a.ID - b.ID })
	return result
}
