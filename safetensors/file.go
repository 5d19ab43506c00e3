// Package safetensors reads and writes files in the safetensors format: an 8-byte little-endian
// header size, a JSON header describing each tensor, followed by the raw tensor data.
//
// Files are memory-mapped on Open, and tensors can be read either as GoMLX tensors or, for
// floating point tensors of rank 1 or 2, as gonum matrices:
//
//	f, err := safetensors.Open("model.safetensors")
//	if err != nil {
//		return err
//	}
//	defer f.Close()
//	table, err := f.ReadDense("embeddings.word_embeddings.weight")
package safetensors

import (
	"bytes"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/gomlx/gomlx/pkg/core/dtypes/bfloat16"
	"github.com/gomlx/gomlx/pkg/core/dtypes/float16"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// File is an open, memory-mapped safetensors file.
type File struct {
	Path   string
	Header *Header

	f          *os.File
	data       mmap.MMap
	dataOffset int64
}

// Open memory-maps the safetensors file at path and parses its header.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file %s", path)
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "failed to mmap %s", path)
	}
	header, dataOffset, err := parseHeader(bytes.NewReader(data))
	if err != nil {
		_ = data.Unmap()
		_ = f.Close()
		return nil, errors.WithMessagef(err, "while parsing header of %s", path)
	}
	sf := &File{Path: path, Header: header, f: f, data: data, dataOffset: dataOffset}
	for _, meta := range header.Tensors {
		if _, err := sf.tensorBytes(meta); err != nil {
			_ = sf.Close()
			return nil, err
		}
	}
	return sf, nil
}

// Close unmaps and closes the file. Tensors read from it remain valid.
func (sf *File) Close() error {
	if sf.data == nil {
		return nil
	}
	err := sf.data.Unmap()
	sf.data = nil
	if closeErr := sf.f.Close(); err == nil {
		err = closeErr
	}
	return errors.Wrapf(err, "failed to close %s", sf.Path)
}

// Names returns the names of the tensors in the file, in file order.
func (sf *File) Names() []string {
	return sf.Header.Names()
}

// Metadata returns the tensor metadata for name.
func (sf *File) Metadata(name string) (*TensorMetadata, error) {
	meta, ok := sf.Header.Tensors[name]
	if !ok {
		return nil, errors.Errorf("tensor %s not found in %s", name, sf.Path)
	}
	return meta, nil
}

// tensorBytes returns the mapped bytes of a tensor, checking they are within the file.
func (sf *File) tensorBytes(meta *TensorMetadata) ([]byte, error) {
	start, end := sf.dataOffset+meta.DataOffsets[0], sf.dataOffset+meta.DataOffsets[1]
	if meta.DataOffsets[0] < 0 || start > end || end > int64(len(sf.data)) {
		return nil, errors.Errorf("tensor %s has invalid data offsets %v in %s", meta.Name, meta.DataOffsets, sf.Path)
	}
	return sf.data[start:end], nil
}

// ReadTensor reads a tensor by name as a GoMLX tensor.
func (sf *File) ReadTensor(name string) (*tensors.Tensor, error) {
	meta, err := sf.Metadata(name)
	if err != nil {
		return nil, err
	}
	dtype, err := dtypeToGoMLX(meta.Dtype)
	if err != nil {
		return nil, err
	}
	raw, err := sf.tensorBytes(meta)
	if err != nil {
		return nil, err
	}
	t := tensors.FromShape(shapes.Make(dtype, meta.Shape...))
	var readErr error
	t.MutableBytes(func(data []byte) {
		if len(data) != len(raw) {
			readErr = errors.Errorf("tensor %s with shape %s expected %d bytes, but got %d bytes", name, t.Shape(), len(data), len(raw))
			return
		}
		copy(data, raw)
	})
	if readErr != nil {
		return nil, readErr
	}
	return t, nil
}

// ReadDense reads a floating point tensor of rank 1 or 2 as a matrix. Rank 1 tensors become a
// single row. The tensor is decoded by ReadTensor and converted to float64.
func (sf *File) ReadDense(name string) (*mat.Dense, error) {
	meta, err := sf.Metadata(name)
	if err != nil {
		return nil, err
	}
	var rows, cols int
	switch len(meta.Shape) {
	case 1:
		rows, cols = 1, meta.Shape[0]
	case 2:
		rows, cols = meta.Shape[0], meta.Shape[1]
	default:
		return nil, errors.Errorf("tensor %s has rank %d, only rank 1 or 2 can be read as a matrix", name, len(meta.Shape))
	}
	if !isFloat(meta.Dtype) {
		return nil, errors.Errorf("tensor %s has dtype %s, only floating point tensors can be read as a matrix", name, meta.Dtype)
	}
	if rows*cols == 0 {
		return nil, errors.Errorf("tensor %s is empty", name)
	}
	t, err := sf.ReadTensor(name)
	if err != nil {
		return nil, err
	}
	defer t.FinalizeLocal()
	values := make([]float64, rows*cols)
	err = t.ConstFlatData(func(flat any) {
		switch flat := flat.(type) {
		case []float64:
			copy(values, flat)
		case []float32:
			for i, v := range flat {
				values[i] = float64(v)
			}
		case []bfloat16.BFloat16:
			for i, v := range flat {
				values[i] = float64(v.Float32())
			}
		case []float16.Float16:
			for i, v := range flat {
				values[i] = float64(v.Float32())
			}
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tensor %s of %s", name, sf.Path)
	}
	return mat.NewDense(rows, cols, values), nil
}

// TensorAndName holds a tensor name and its GoMLX tensor data.
type TensorAndName struct {
	Name   string
	Tensor *tensors.Tensor
}

// IterTensors iterates over all tensors of the file as GoMLX tensors, in file order.
func (sf *File) IterTensors() func(yield func(TensorAndName, error) bool) {
	return func(yield func(TensorAndName, error) bool) {
		for _, name := range sf.Names() {
			t, err := sf.ReadTensor(name)
			if err != nil {
				yield(TensorAndName{}, err)
				return
			}
			if !yield(TensorAndName{Name: name, Tensor: t}, nil) {
				return
			}
		}
	}
}
