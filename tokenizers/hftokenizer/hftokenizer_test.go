package hftokenizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/go-seqlabel/hub"
	"github.com/gomlx/go-seqlabel/tokenizers/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// BERT-style WordPiece tokenizer.
var testWordPieceTokenizerJSON = []byte(`{
  "version": "1.0",
  "truncation": null,
  "padding": null,
  "added_tokens": [
    {"id": 0, "content": "[PAD]", "special": true},
    {"id": 100, "content": "[UNK]", "special": true},
    {"id": 101, "content": "[CLS]", "special": true},
    {"id": 102, "content": "[SEP]", "special": true},
    {"id": 103, "content": "[MASK]", "special": true}
  ],
  "normalizer": {"type": "BertNormalizer", "clean_text": true, "handle_chinese_chars": true, "strip_accents": null, "lowercase": true},
  "pre_tokenizer": {"type": "BertPreTokenizer"},
  "post_processor": null,
  "decoder": {"type": "WordPiece", "prefix": "##"},
  "model": {
    "type": "WordPiece",
    "unk_token": "[UNK]",
    "continuing_subword_prefix": "##",
    "max_input_chars_per_word": 100,
    "vocab": {
      "[PAD]": 0, "hello": 1, "world": 2, "test": 3, "##ing": 4, "##ed": 5,
      "[UNK]": 100, "[CLS]": 101, "[SEP]": 102, "[MASK]": 103,
      "the": 104, "a": 105, "is": 106, "this": 107, "!": 108, "北": 109, "京": 110, "cafe": 111
    }
  }
}`)

// GPT-2-style byte-level BPE tokenizer.
var testBPETokenizerJSON = []byte(`{
  "added_tokens": [
    {"id": 0, "content": "<|endoftext|>", "special": true}
  ],
  "normalizer": null,
  "pre_tokenizer": {"type": "ByteLevel", "add_prefix_space": false},
  "decoder": {"type": "ByteLevel"},
  "model": {
    "type": "BPE",
    "unk_token": null,
    "vocab": {
      "Ġ": 10, "w": 11, "o": 12, "r": 13, "l": 14, "d": 15, "h": 16, "e": 17,
      "Ġw": 18, "or": 19, "ld": 20, "Ġwor": 21, "Ġworld": 22,
      "he": 23, "ll": 24, "hell": 25, "hello": 26
    },
    "merges": ["Ġ w", "o r", "l d", ["Ġw", "or"], "Ġwor ld", "h e", "l l", "he ll", "hell o"]
  }
}`)

// SentencePiece-style Unigram tokenizer.
var testUnigramTokenizerJSON = []byte(`{
  "added_tokens": [
    {"id": 0, "content": "<unk>", "special": true},
    {"id": 11, "content": "</s>", "special": true}
  ],
  "normalizer": {"type": "Sequence", "normalizers": [{"type": "NFKC"}]},
  "pre_tokenizer": {"type": "Metaspace", "replacement": "▁", "prepend_scheme": "always"},
  "decoder": {"type": "Metaspace", "replacement": "▁"},
  "model": {
    "type": "Unigram",
    "unk_id": 0,
    "vocab": [
      ["<unk>", 0], ["▁", -2], ["▁he", -3], ["llo", -3], ["▁hello", -4],
      ["h", -5], ["e", -5], ["l", -5], ["o", -5], ["▁w", -4], ["orld", -4], ["</s>", 0]
    ]
  }
}`)

func TestWordPiece(t *testing.T) {
	tok, err := NewFromContent(nil, testWordPieceTokenizerJSON)
	require.NoError(t, err)
	assert.Equal(t, "WordPiece", tok.Type())
	assert.Equal(t, 112, tok.VocabSize())

	assert.Equal(t, []int{107, 106, 105, 3, 4, 108}, tok.Encode("This is a TESTing!"))
	assert.Equal(t, []int{1, 100}, tok.Encode("hello xyz"))
	assert.Equal(t, []int{109, 110}, tok.Encode("北京"))
	assert.Equal(t, []int{111}, tok.Encode("Café"))
	assert.Equal(t, []int{101, 1, 102}, tok.Encode("[CLS]hello[SEP]"))

	assert.Equal(t, "this is a testing", tok.Decode([]int{107, 106, 105, 3, 4}))
	assert.Equal(t, []int{3, 5}, tok.EncodeWord("tested"))

	for token, want := range map[api.SpecialToken]int{
		api.TokPad: 0, api.TokUnknown: 100, api.TokBeginningOfSentence: 101,
		api.TokEndOfSentence: 102, api.TokMask: 103, api.TokClassification: 101,
	} {
		id, err := tok.SpecialTokenID(token)
		require.NoError(t, err, token.String())
		assert.Equal(t, want, id, token.String())
	}
	_, err = tok.SpecialTokenID(api.TokSpecialTokensCount)
	assert.Error(t, err)

	id, found := tok.TokenToID("world")
	assert.True(t, found)
	assert.Equal(t, 2, id)
	token, found := tok.IDToToken(103)
	assert.True(t, found)
	assert.Equal(t, "[MASK]", token)
	_, found = tok.TokenToID("missing")
	assert.False(t, found)

	added := tok.AddedTokensList()
	require.Len(t, added, 5)
	assert.Equal(t, "[PAD]", added[0].Content)
	assert.Equal(t, "[MASK]", added[4].Content)
}

func TestWordPieceConfig(t *testing.T) {
	config := &api.Config{BosToken: "[MASK]", PadToken: "the"}
	tok, err := NewFromContent(config, testWordPieceTokenizerJSON)
	require.NoError(t, err)
	id, err := tok.SpecialTokenID(api.TokBeginningOfSentence)
	require.NoError(t, err)
	assert.Equal(t, 103, id)
	id, err = tok.SpecialTokenID(api.TokPad)
	require.NoError(t, err)
	assert.Equal(t, 104, id)
}

func TestBPE(t *testing.T) {
	tok, err := NewFromContent(nil, testBPETokenizerJSON)
	require.NoError(t, err)
	assert.Equal(t, "BPE", tok.Type())
	ids := tok.Encode("hello world")
	assert.Equal(t, []int{26, 22}, ids)
	assert.Equal(t, "hello world", tok.Decode(ids))
	assert.Equal(t, []int{26, 0}, tok.Encode("hello<|endoftext|>"))

	// No unknown token: unmatched symbols are dropped.
	assert.Equal(t, []int{23}, tok.Encode("hez"))

	id, err := tok.SpecialTokenID(api.TokEndOfSentence)
	require.NoError(t, err)
	assert.Equal(t, 0, id)
	_, err = tok.SpecialTokenID(api.TokUnknown)
	assert.Error(t, err)
}

func TestUnigram(t *testing.T) {
	tok, err := NewFromContent(nil, testUnigramTokenizerJSON)
	require.NoError(t, err)
	assert.Equal(t, "Unigram", tok.Type())

	ids := tok.Encode("hello world")
	assert.Equal(t, []int{4, 9, 10}, ids)
	assert.Equal(t, "hello world", tok.Decode(ids))

	// Unknown characters are fused into a single unknown token.
	assert.Equal(t, []int{1, 0}, tok.Encode("xyz"))
	assert.Equal(t, []int{4}, tok.EncodeWord("hello"))

	unk, err := tok.SpecialTokenID(api.TokUnknown)
	require.NoError(t, err)
	assert.Equal(t, 0, unk)
	eos, err := tok.SpecialTokenID(api.TokEndOfSentence)
	require.NoError(t, err)
	assert.Equal(t, 11, eos)
}

func TestNewFromRepo(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), testWordPieceTokenizerJSON, 0644))
	tok, err := New(nil, hub.NewLocal(dir))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, tok.Encode("hello world"))

	_, err = New(nil, hub.NewLocal(t.TempDir()))
	assert.ErrorContains(t, err, "not found")
}

func TestInvalidTokenizer(t *testing.T) {
	_, err := NewFromContent(nil, []byte(`{not json`))
	assert.Error(t, err)
	_, err = NewFromContent(nil, []byte(`{"model": {"type": "CharLevel", "vocab": {}}}`))
	assert.ErrorContains(t, err, "not supported")
}

func TestPreTokenizers(t *testing.T) {
	assert.Equal(t, []string{"Hello", ",", "world", "!"}, splitRunes("Hello, world!", isWhitespace, isPunctuation))
	assert.Equal(t, []string{"Hello", ",", "wor_ld", "!?"}, whitespacePreTokenize("Hello, wor_ld!?"))
	assert.Equal(t, []string{"▁hello", "▁world"}, metaspacePreTokenize("hello world", &PreTokenizer{PrependScheme: "always"}))
	assert.Equal(t, []string{"hello", "▁world"}, metaspacePreTokenize("hello world", &PreTokenizer{PrependScheme: "never"}))
	assert.Equal(t, []string{"hello", "Ġworld", "ĠĠx"}, byteLevelPreTokenize("hello world  x"))
	assert.Equal(t, "hello world  x", byteLevelDecode("helloĠworldĠĠx"))
}

func TestNormalizers(t *testing.T) {
	assert.Equal(t, "a b", cleanText("a\tb\x00"))
	assert.Equal(t, "x 北  京 ", padChineseChars("x北京"))
	assert.Equal(t, "cafe", applyNormalizer("café", &Normalizer{Type: "StripAccents"}))
	assert.Equal(t, "ﬁ", applyNormalizer("ﬁ", &Normalizer{Type: "NFC"}))
	assert.Equal(t, "fi", applyNormalizer("ﬁ", &Normalizer{Type: "NFKC"}))
	assert.Equal(t, "▁a▁b", applyNormalizer("a b", &Normalizer{Type: "Sequence", Normalizers: []Normalizer{
		{Type: "Prepend", Prepend: "▁"},
		{Type: "Replace", Pattern: &Pattern{String: " "}, Content: "▁"},
	}}))
	assert.Equal(t, []string{"a", "é"}, byteFallbackDecode([]string{"a", "<0xC3>", "<0xA9>"}))
}
