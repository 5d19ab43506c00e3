package vocab

import (
	"path/filepath"
	"testing"

	"github.com/gomlx/go-seqlabel/internal/testutil"
	"github.com/gomlx/go-seqlabel/tokenizers/api"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservedPositions(t *testing.T) {
	v, err := Build(testutil.CharCorpus(), 2)
	require.NoError(t, err)
	for id, token := range Reserved {
		got, ok := v.Token(id)
		require.True(t, ok)
		assert.Equal(t, token, got)
		assert.Equal(t, id, v.ID(token))
	}
	assert.Equal(t, 0, v.ID(Pad))

	// Every corpus token has an id larger than any sentinel.
	for id := NumReserved; id < v.Len(); id++ {
		token, _ := v.Token(id)
		assert.False(t, IsReserved(token))
		assert.Greater(t, v.ID(token), UNKID)
	}
}

func TestBuildCharCorpus(t *testing.T) {
	v, err := Build(testutil.CharCorpus(), 2)
	require.NoError(t, err)
	assert.Equal(t, 33, v.Len())
	assert.True(t, v.Contains("我"))

	v3, err := Build(testutil.CharCorpus(), 3)
	require.NoError(t, err)
	assert.False(t, v3.Contains("我"))
	assert.Equal(t, UNKID, v3.ID("我"))
	assert.True(t, v3.Contains("书"))
}

func TestBuildMinCountFilter(t *testing.T) {
	corpus := [][]string{{"a", "b", "a"}, {"c", "b", "d"}, {"a"}}
	builder := NewBuilder().AddCorpus(corpus)
	for _, m := range []int{0, 1, 2, 3, 4} {
		v, err := builder.MinCount(m).Build()
		require.NoError(t, err)
		for _, token := range []string{"a", "b", "c", "d"} {
			assert.Equal(t, builder.Count(token) >= m, v.Contains(token), "token %q, min count %d", token, m)
		}
	}
}

func TestBuildFirstSeenOrder(t *testing.T) {
	corpus := [][]string{{"x", "y", "x"}, {"z", "y", "w", "z"}}
	v, err := Build(corpus, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{Pad, BOS, EOS, UNK, "x", "y", "z"}, v.Tokens())

	again, err := Build(corpus, 2)
	require.NoError(t, err)
	assert.Equal(t, v.Tokens(), again.Tokens())
}

func TestBuildEmptyCorpus(t *testing.T) {
	v, err := Build(nil, 2)
	require.NoError(t, err)
	assert.Equal(t, NumReserved, v.Len())
	assert.Equal(t, Reserved[:], v.Tokens())
}

func TestBuildNegativeMinCount(t *testing.T) {
	_, err := Build(testutil.CharCorpus(), -1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestSentinelsInCorpusAreNotDuplicated(t *testing.T) {
	v, err := Build([][]string{{UNK, "a", Pad}}, 1)
	require.NoError(t, err)
	assert.Equal(t, NumReserved+1, v.Len())
	assert.Equal(t, PadID, v.ID(Pad))
}

func TestSpecialTokenID(t *testing.T) {
	v := FromTokens(nil)
	for token, want := range map[api.SpecialToken]int{
		api.TokPad:                 PadID,
		api.TokBeginningOfSentence: BOSID,
		api.TokEndOfSentence:       EOSID,
		api.TokUnknown:             UNKID,
	} {
		got, err := v.SpecialTokenID(token)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := v.SpecialTokenID(api.TokMask)
	require.Error(t, err)
}

func TestBuildLabels(t *testing.T) {
	_, y := testutil.TaggedCorpus()
	labels, err := BuildLabels(y)
	require.NoError(t, err)
	assert.Equal(t, NumReserved+7, labels.Len())
	assert.Equal(t, NumReserved, labels.ID("O"))
}

func TestBuildTwoHead(t *testing.T) {
	corpus := testutil.CharCorpus()
	heads, err := BuildTwoHead([2][][]string{corpus[:2], corpus[2:]}, 2)
	require.NoError(t, err)

	// "我" occurs once in each head: it qualifies over the combined corpora.
	assert.True(t, heads[0].Contains("我"))
	assert.True(t, heads[1].Contains("我"))

	// "书" only occurs in the first head.
	assert.True(t, heads[0].Contains("书"))
	assert.False(t, heads[1].Contains("书"))

	// Ids are assigned per head.
	assert.Equal(t, NumReserved, heads[0].ID("我"))
	assert.NotEqual(t, heads[0].ID("的"), heads[1].ID("的"))

	union := make(map[string]bool)
	for _, head := range heads {
		for _, token := range head.Tokens()[NumReserved:] {
			union[token] = true
		}
	}
	assert.Len(t, union, 29)

	_, err = BuildTwoHead([2][][]string{corpus[:2], corpus[2:]}, -2)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestFromTokens(t *testing.T) {
	v := FromTokens([]string{"the", "cat", "the", EOS, "sat"})
	assert.Equal(t, []string{Pad, BOS, EOS, UNK, "the", "cat", "sat"}, v.Tokens())
	assert.Equal(t, NumReserved+1, v.ID("cat"))
}

func TestSaveLoad(t *testing.T) {
	v, err := Build(testutil.CharCorpus(), 2)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "vocab.json")
	require.NoError(t, v.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, v.Tokens(), loaded.Tokens())
	assert.Equal(t, v.ID("书"), loaded.ID("书"))
}

func TestUnmarshalRejectsMisplacedSentinels(t *testing.T) {
	v := &Vocabulary{}
	require.Error(t, v.UnmarshalJSON([]byte(`{"tokens": ["<BOS>", "<PAD>", "<EOS>", "<UNK>"]}`)))
	require.Error(t, v.UnmarshalJSON([]byte(`{"tokens": ["<PAD>"]}`)))
	require.Error(t, v.UnmarshalJSON([]byte(`{"tokens": ["<PAD>", "<BOS>", "<EOS>", "<UNK>", "a", "a"]}`)))
}
