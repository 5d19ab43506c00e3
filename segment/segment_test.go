package segment

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChars(t *testing.T) {
	assert.Equal(t, []string{"我", "想", "看", "电", "影", "！"}, Chars("我想 看电影！"))
	assert.Equal(t, []string{"Ａ", "１"}, Chars("Ａ\t１\n"))
	assert.Equal(t, []string{"é", "，", "；"}, Chars("e\u0301，；"))
	assert.Empty(t, Chars("  "))
	assert.Equal(t, [][]string{{"a"}, {}}, CharsBatch([]string{"a", ""}))
}

func TestWords(t *testing.T) {
	dict := filepath.Join(t.TempDir(), "dict.txt")
	require.NoError(t, os.WriteFile(dict, []byte("北京 100 ns\n大学 80 n\n大学生 60 n\n学生 50 n\n电影 90 n\n"), 0644))
	w, err := NewWords(dict)
	require.NoError(t, err)

	for _, text := range []string{"北京大学生看电影", "北京 大学", "hello world 北京"} {
		tokens := w.Cut(text)
		require.NotEmpty(t, tokens, text)
		for _, token := range tokens {
			assert.NotContains(t, token, " ")
			assert.NotEmpty(t, token)
		}
		assert.Equal(t, strings.ReplaceAll(text, " ", ""), strings.Join(tokens, ""), text)
	}
}
