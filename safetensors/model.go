package safetensors

import (
	"encoding/json"
	"os"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/gomlx/go-seqlabel/hub"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// indexFiles are the names of the index of sharded models.
var indexFiles = []string{
	"model.safetensors.index.json",
	"pytorch_model.safetensors.index.json",
}

// ShardedModelIndex represents a model.safetensors.index.json file for sharded models.
type ShardedModelIndex struct {
	Metadata  map[string]any    `json:"metadata"`   // Model metadata
	WeightMap map[string]string `json:"weight_map"` // Tensor name -> filename
}

// Model is the set of safetensors files of a repository, either a single file or the shards listed
// in an index file. Files are opened on demand and kept open until Close.
type Model struct {
	Repo      *hub.Repo
	WeightMap map[string]string // Tensor name -> file name within the repository.

	mu    sync.Mutex
	files map[string]*File
}

// FromRepo loads the tensor index of the safetensors model in repo.
func FromRepo(repo *hub.Repo) (*Model, error) {
	m := &Model{Repo: repo, files: make(map[string]*File)}
	names, err := repo.FileNames()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if slices.Contains(indexFiles, path.Base(name)) {
			return m, m.loadIndex(name)
		}
	}
	var single string
	for _, name := range names {
		if strings.HasSuffix(name, ".safetensors") {
			if single != "" {
				return nil, errors.Errorf("repository %s has multiple .safetensors files (%s, %s) and no index", repo, single, name)
			}
			single = name
		}
	}
	if single == "" {
		return nil, errors.Errorf("no .safetensors files found in repository %s", repo)
	}
	f, err := m.open(single)
	if err != nil {
		return nil, err
	}
	m.WeightMap = make(map[string]string, len(f.Header.Tensors))
	for name := range f.Header.Tensors {
		m.WeightMap[name] = single
	}
	return m, nil
}

func (m *Model) loadIndex(indexName string) error {
	localPath, err := m.Repo.DownloadFile(indexName)
	if err != nil {
		return errors.WithMessagef(err, "failed to download %s", indexName)
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", localPath)
	}
	var index ShardedModelIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return errors.Wrap(err, "failed to parse sharded model index")
	}
	// Shard names are relative to the index file.
	m.WeightMap = make(map[string]string, len(index.WeightMap))
	for tensorName, fileName := range index.WeightMap {
		m.WeightMap[tensorName] = path.Join(path.Dir(indexName), fileName)
	}
	return nil
}

func (m *Model) open(fileName string) (*File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[fileName]; ok {
		return f, nil
	}
	localPath, err := m.Repo.DownloadFile(fileName)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to download %s", fileName)
	}
	f, err := Open(localPath)
	if err != nil {
		return nil, err
	}
	m.files[fileName] = f
	return f, nil
}

// Names returns all tensor names of the model, sorted.
func (m *Model) Names() []string {
	names := make([]string, 0, len(m.WeightMap))
	for name := range m.WeightMap {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Find returns the first tensor name (in sorted order) equal to or ending with one of the
// candidates, trying the candidates in order.
func (m *Model) Find(candidates ...string) (string, bool) {
	names := m.Names()
	for _, candidate := range candidates {
		if _, ok := m.WeightMap[candidate]; ok {
			return candidate, true
		}
		for _, name := range names {
			if strings.HasSuffix(name, "."+candidate) {
				return name, true
			}
		}
	}
	return "", false
}

// fileOf returns the open file holding the tensor name.
func (m *Model) fileOf(name string) (*File, error) {
	fileName, ok := m.WeightMap[name]
	if !ok {
		return nil, errors.Errorf("tensor %s not found in weight map", name)
	}
	return m.open(fileName)
}

// Metadata returns the metadata of a tensor, without reading its data.
func (m *Model) Metadata(name string) (*TensorMetadata, error) {
	f, err := m.fileOf(name)
	if err != nil {
		return nil, err
	}
	return f.Metadata(name)
}

// ReadTensor reads the tensor name as a GoMLX tensor.
func (m *Model) ReadTensor(name string) (*tensors.Tensor, error) {
	f, err := m.fileOf(name)
	if err != nil {
		return nil, err
	}
	return f.ReadTensor(name)
}

// ReadDense reads the tensor name as a matrix, see File.ReadDense.
func (m *Model) ReadDense(name string) (*mat.Dense, error) {
	f, err := m.fileOf(name)
	if err != nil {
		return nil, err
	}
	return f.ReadDense(name)
}

// Close closes all opened files.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for name, f := range m.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.files, name)
	}
	return firstErr
}
