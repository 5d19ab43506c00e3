package safetensors

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// headerEntry is how a tensor is described in the JSON header.
type headerEntry struct {
	Dtype       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// Write saves the matrices as F32 tensors of shape [rows, cols], sorted by name, with the given
// (optional) metadata. The file is written to a temporary path and renamed into place.
func Write(path string, matrices map[string]*mat.Dense, metadata map[string]string) error {
	names := make([]string, 0, len(matrices))
	for name := range matrices {
		if name == metadataKey {
			return errors.Errorf("tensor name %q is reserved", name)
		}
		names = append(names, name)
	}
	slices.Sort(names)

	header := make(map[string]any, len(names)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	var offset int64
	for _, name := range names {
		rows, cols := matrices[name].Dims()
		size := int64(rows*cols) * 4
		header[name] = headerEntry{Dtype: "F32", Shape: []int{rows, cols}, DataOffsets: [2]int64{offset, offset + size}}
		offset += size
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "failed to encode safetensors header")
	}
	// Pad the header with spaces so the data section is 8-byte aligned.
	for len(headerBytes)%8 != 0 {
		headerBytes = append(headerBytes, ' ')
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", tmpPath)
	}
	w := bufio.NewWriter(f)
	err = writeAll(w, headerBytes, names, matrices)
	if err == nil {
		err = w.Flush()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return errors.Wrapf(os.Rename(tmpPath, path), "failed to move %s to %s", tmpPath, path)
}

func writeAll(w *bufio.Writer, headerBytes []byte, names []string, matrices map[string]*mat.Dense) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerBytes))); err != nil {
		return err
	}
	if _, err := w.Write(headerBytes); err != nil {
		return err
	}
	var buf [4]byte
	for _, name := range names {
		m := matrices[name]
		rows, cols := m.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				binary.LittleEndian.PutUint32(buf[:], math.Float32bits(float32(m.At(i, j))))
				if _, err := w.Write(buf[:]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ReadAll reads every floating point tensor of rank 1 or 2 of the file at path as a matrix,
// along with the file metadata.
func ReadAll(path string) (map[string]*mat.Dense, map[string]string, error) {
	sf, err := Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer sf.Close()
	matrices := make(map[string]*mat.Dense, len(sf.Header.Tensors))
	for _, name := range sf.Names() {
		m, err := sf.ReadDense(name)
		if err != nil {
			return nil, nil, err
		}
		matrices[name] = m
	}
	return matrices, sf.Header.Metadata, nil
}
