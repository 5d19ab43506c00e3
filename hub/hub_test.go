package hub

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLocalRepo(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "vocab.txt"), "[PAD]\n")
	writeFile(t, filepath.Join(dir, "onnx", "model.onnx"), "x")
	writeFile(t, filepath.Join(dir, ".git", "HEAD"), "ref")

	repo := NewLocal(dir)
	assert.True(t, repo.IsLocal())
	names, err := repo.FileNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"onnx/model.onnx", "vocab.txt"}, names)

	var iterated []string
	for name, err := range repo.IterFileNames() {
		require.NoError(t, err)
		iterated = append(iterated, name)
	}
	assert.Equal(t, names, iterated)

	found, err := repo.HasFile("vocab.txt")
	require.NoError(t, err)
	assert.True(t, found)
	found, err = repo.HasFile("tokenizer.json")
	require.NoError(t, err)
	assert.False(t, found)

	p, err := repo.DownloadFile("onnx/model.onnx")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "onnx", "model.onnx"), p)

	_, err = repo.DownloadFile("missing.txt")
	assert.True(t, errors.Is(err, ErrFileNotFound))
	_, err = repo.DownloadFile("../escape.txt")
	assert.Error(t, err)
}

// fakeHub serves a single repository "org/model" at revision "main".
type fakeHub struct {
	files    map[string]string
	requests atomic.Int32
	failures atomic.Int32 // Number of requests to fail with 503 before serving.
	token    string
}

func (h *fakeHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.requests.Add(1)
	if h.token != "" && r.Header.Get("Authorization") != "Bearer "+h.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if h.failures.Load() > 0 {
		h.failures.Add(-1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
		return
	}
	if r.URL.Path == "/api/models/org/model/revision/main" {
		fmt.Fprint(w, `{"id":"org/model","siblings":[`)
		first := true
		for name := range h.files {
			if !first {
				fmt.Fprint(w, ",")
			}
			first = false
			fmt.Fprintf(w, `{"rfilename":%q}`, name)
		}
		fmt.Fprint(w, `]}`)
		return
	}
	const prefix = "/org/model/resolve/main/"
	if len(r.URL.Path) > len(prefix) && r.URL.Path[:len(prefix)] == prefix {
		if content, ok := h.files[r.URL.Path[len(prefix):]]; ok {
			fmt.Fprint(w, content)
			return
		}
	}
	http.NotFound(w, r)
}

func newFakeRepo(t *testing.T, h *fakeHub) *Repo {
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return New("org/model").
		WithEndpoint(server.URL + "/").
		WithCacheDir(t.TempDir()).
		WithRetries(3, time.Millisecond)
}

func TestRemoteRepo(t *testing.T) {
	h := &fakeHub{files: map[string]string{
		"vocab.txt":         "[PAD]\n[UNK]\n",
		"model.safetensors": "weights",
	}}
	repo := newFakeRepo(t, h)
	assert.False(t, repo.IsLocal())
	assert.Equal(t, "org/model", repo.String())

	names, err := repo.FileNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"model.safetensors", "vocab.txt"}, names)

	p, err := repo.DownloadFile("vocab.txt")
	require.NoError(t, err)
	content, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "[PAD]\n[UNK]\n", string(content))
	assert.NoFileExists(t, p+".downloading")
	assert.NoFileExists(t, p+".lock")

	// Second download is served from the cache.
	before := h.requests.Load()
	p2, err := repo.DownloadFile("vocab.txt")
	require.NoError(t, err)
	assert.Equal(t, p, p2)
	assert.Equal(t, before, h.requests.Load())

	_, err = repo.DownloadFile("missing.bin")
	assert.True(t, errors.Is(err, ErrFileNotFound))
}

func TestRemoteRepoRetries(t *testing.T) {
	h := &fakeHub{files: map[string]string{"vocab.txt": "a\n"}}
	h.failures.Store(2)
	repo := newFakeRepo(t, h)
	_, err := repo.DownloadFile("vocab.txt")
	require.NoError(t, err)
	assert.Equal(t, int32(3), h.requests.Load())

	h2 := &fakeHub{files: map[string]string{"vocab.txt": "a\n"}}
	h2.failures.Store(100)
	repo2 := newFakeRepo(t, h2).WithRetries(2, time.Millisecond)
	_, err = repo2.DownloadFile("vocab.txt")
	require.Error(t, err)
	assert.Equal(t, int32(3), h2.requests.Load())
}

func TestRemoteRepoAuth(t *testing.T) {
	h := &fakeHub{files: map[string]string{"vocab.txt": "a\n"}, token: "secret"}
	_, err := newFakeRepo(t, h).DownloadFile("vocab.txt")
	require.Error(t, err)
	assert.Equal(t, int32(1), h.requests.Load(), "client errors are not retried")

	_, err = newFakeRepo(t, h).WithAuth("secret").DownloadFile("vocab.txt")
	require.NoError(t, err)
}

func TestConcurrentDownloads(t *testing.T) {
	h := &fakeHub{files: map[string]string{"vocab.txt": "a\nb\n"}}
	repo := newFakeRepo(t, h)
	var wg sync.WaitGroup
	paths := make([]string, 8)
	errs := make([]error, 8)
	for i := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			paths[i], errs[i] = repo.DownloadFile("vocab.txt")
		}()
	}
	wg.Wait()
	for i := range paths {
		require.NoError(t, errs[i])
		assert.Equal(t, paths[0], paths[i])
	}
	content, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(content))
}
