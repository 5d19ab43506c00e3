package safetensors

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/go-seqlabel/hub"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func writeTestFile(t *testing.T, dir string) string {
	p := filepath.Join(dir, "model.safetensors")
	err := Write(p, map[string]*mat.Dense{
		"embeddings.word_embeddings.weight": mat.NewDense(3, 2, []float64{0, 0.5, 1, 1.5, -2, 2.5}),
		"classifier.bias":                   mat.NewDense(1, 4, []float64{1, 2, 3, 4}),
	}, map[string]string{"format": "pt"})
	require.NoError(t, err)
	return p
}

func TestWriteAndOpen(t *testing.T) {
	p := writeTestFile(t, t.TempDir())
	assert.NoFileExists(t, p+".tmp")

	f, err := Open(p)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	assert.Equal(t, map[string]string{"format": "pt"}, f.Header.Metadata)
	assert.Equal(t, []string{"classifier.bias", "embeddings.word_embeddings.weight"}, f.Names())
	meta, err := f.Metadata("embeddings.word_embeddings.weight")
	require.NoError(t, err)
	assert.Equal(t, "F32", meta.Dtype)
	assert.Equal(t, []int{3, 2}, meta.Shape)
	assert.Equal(t, 6, meta.NumElements())
	assert.Equal(t, int64(24), meta.SizeBytes())

	m, err := f.ReadDense("embeddings.word_embeddings.weight")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, 1, 1.5, -2, 2.5}, m.RawMatrix().Data)

	tensor, err := f.ReadTensor("embeddings.word_embeddings.weight")
	require.NoError(t, err)
	assert.True(t, tensor.Shape().Equal(shapes.Make(dtypes.Float32, 3, 2)))

	var names []string
	for tn, err := range f.IterTensors() {
		require.NoError(t, err)
		names = append(names, tn.Name)
	}
	assert.Equal(t, f.Names(), names)

	_, err = f.ReadDense("missing")
	assert.ErrorContains(t, err, "not found")
}

func TestReadAll(t *testing.T) {
	p := writeTestFile(t, t.TempDir())
	matrices, metadata, err := ReadAll(p)
	require.NoError(t, err)
	assert.Equal(t, "pt", metadata["format"])
	require.Contains(t, matrices, "classifier.bias")
	rows, cols := matrices["classifier.bias"].Dims()
	assert.Equal(t, 1, rows)
	assert.Equal(t, 4, cols)
}

// writeRaw writes a safetensors file with a single tensor of the given dtype and raw data.
func writeRaw(t *testing.T, p, header string, data []byte) {
	buf := binary.LittleEndian.AppendUint64(nil, uint64(len(header)))
	buf = append(buf, header...)
	buf = append(buf, data...)
	require.NoError(t, os.WriteFile(p, buf, 0644))
}

func TestReadDenseHalfPrecision(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "half.safetensors")
	// 1.0, -2.0 in F16; 1.5, 0.25 in BF16.
	var data []byte
	data = binary.LittleEndian.AppendUint16(data, 0x3c00)
	data = binary.LittleEndian.AppendUint16(data, 0xc000)
	data = binary.LittleEndian.AppendUint16(data, uint16(math.Float32bits(1.5)>>16))
	data = binary.LittleEndian.AppendUint16(data, uint16(math.Float32bits(0.25)>>16))
	writeRaw(t, p, `{"a":{"dtype":"F16","shape":[2],"data_offsets":[0,4]},"b":{"dtype":"BF16","shape":[1,2],"data_offsets":[4,8]}}`, data)

	f, err := Open(p)
	require.NoError(t, err)
	defer f.Close()
	a, err := f.ReadDense("a")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -2}, a.RawMatrix().Data)
	b, err := f.ReadDense("b")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 0.25}, b.RawMatrix().Data)
}

func TestOpenInvalid(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "bad.safetensors")
	writeRaw(t, p, `{"a":{"dtype":"F32","shape":[4],"data_offsets":[0,16]}}`, make([]byte, 8))
	_, err := Open(p)
	assert.ErrorContains(t, err, "invalid data offsets")

	writeRaw(t, p, `{not json`, nil)
	_, err = Open(p)
	assert.Error(t, err)

	writeRaw(t, p, `{"a":{"dtype":"I64","shape":[1],"data_offsets":[0,8]}}`, make([]byte, 8))
	f, err := Open(p)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.ReadDense("a")
	assert.ErrorContains(t, err, "floating point")
}

func TestModelFromRepo(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir)
	model, err := FromRepo(hub.NewLocal(dir))
	require.NoError(t, err)
	defer model.Close()

	name, found := model.Find("embed_tokens.weight", "word_embeddings.weight")
	require.True(t, found)
	assert.Equal(t, "embeddings.word_embeddings.weight", name)
	_, found = model.Find("lm_head.weight")
	assert.False(t, found)

	m, err := model.ReadDense(name)
	require.NoError(t, err)
	rows, _ := m.Dims()
	assert.Equal(t, 3, rows)

	_, err = FromRepo(hub.NewLocal(t.TempDir()))
	assert.ErrorContains(t, err, "no .safetensors")
}

func TestModelFromShardedRepo(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "weights"), 0755))
	require.NoError(t, Write(filepath.Join(dir, "weights", "part-1.safetensors"),
		map[string]*mat.Dense{"a.weight": mat.NewDense(1, 1, []float64{7})}, nil))
	require.NoError(t, Write(filepath.Join(dir, "weights", "part-2.safetensors"),
		map[string]*mat.Dense{"b.weight": mat.NewDense(1, 1, []float64{8})}, nil))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "weights", "model.safetensors.index.json"),
		[]byte(`{"metadata":{},"weight_map":{"a.weight":"part-1.safetensors","b.weight":"part-2.safetensors"}}`), 0644))

	model, err := FromRepo(hub.NewLocal(dir))
	require.NoError(t, err)
	defer model.Close()
	assert.Equal(t, []string{"a.weight", "b.weight"}, model.Names())
	b, err := model.ReadDense("b.weight")
	require.NoError(t, err)
	assert.Equal(t, 8.0, b.At(0, 0))
	meta, err := model.Metadata("a.weight")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, meta.Shape)
}
