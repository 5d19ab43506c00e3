package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"slices"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"
)

// maxHeaderSize is a sanity check on the declared JSON header size.
const maxHeaderSize = 100 * 1024 * 1024

// metadataKey is the header entry holding free-form string metadata.
const metadataKey = "__metadata__"

// Header represents the JSON header of a safetensors file.
type Header struct {
	Tensors  map[string]*TensorMetadata // Tensor name -> metadata
	Metadata map[string]string          // Optional __metadata__ field
}

// TensorMetadata represents metadata for a single tensor in a safetensors file.
type TensorMetadata struct {
	Name        string   `json:"-"`            // Tensor name (from map key)
	Dtype       string   `json:"dtype"`        // Data type: F32, F64, I32, I64, etc.
	Shape       []int    `json:"shape"`        // Tensor dimensions
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end) byte offsets, relative to the data section
}

// NumElements returns the number of elements of the tensor.
func (tm *TensorMetadata) NumElements() int {
	n := 1
	for _, d := range tm.Shape {
		n *= d
	}
	return n
}

// SizeBytes returns the size of the tensor data.
func (tm *TensorMetadata) SizeBytes() int64 {
	return tm.DataOffsets[1] - tm.DataOffsets[0]
}

// Names returns the tensor names ordered by their offset in the file.
func (h *Header) Names() []string {
	names := make([]string, 0, len(h.Tensors))
	for name := range h.Tensors {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		oa, ob := h.Tensors[a].DataOffsets[0], h.Tensors[b].DataOffsets[0]
		if oa != ob {
			if oa < ob {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	})
	return names
}

// parseHeader reads and parses the header of a safetensors file.
// Safetensors format:
//
//	[8 bytes: header size as little-endian u64]
//	[header_size bytes: JSON header]
//	[remaining bytes: tensor data]
//
// It returns the header and the offset of the data section.
func parseHeader(r io.Reader) (*Header, int64, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, 0, errors.Wrap(err, "failed to read header size")
	}
	if headerSize > maxHeaderSize {
		return nil, 0, errors.Errorf("header size too large: %d bytes", headerSize)
	}
	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, 0, errors.Wrap(err, "failed to read header JSON")
	}

	var rawHeader map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &rawHeader); err != nil {
		return nil, 0, errors.Wrap(err, "failed to parse header JSON")
	}
	header := &Header{
		Tensors:  make(map[string]*TensorMetadata),
		Metadata: make(map[string]string),
	}
	for key, value := range rawHeader {
		if key == metadataKey {
			if err := json.Unmarshal(value, &header.Metadata); err != nil {
				return nil, 0, errors.Wrap(err, "failed to parse __metadata__")
			}
			continue
		}
		var tm TensorMetadata
		if err := json.Unmarshal(value, &tm); err != nil {
			return nil, 0, errors.Wrapf(err, "failed to parse tensor metadata for %s", key)
		}
		tm.Name = key
		header.Tensors[key] = &tm
	}
	return header, int64(8 + headerSize), nil
}

func dtypeToGoMLX(stDtype string) (dtypes.DType, error) {
	dtype, found := dtypes.MapOfNames[strings.ToLower(stDtype)]
	if !found {
		return dtypes.InvalidDType, errors.Errorf("dtype %q not supported", stDtype)
	}
	return dtype, nil
}

// isFloat reports whether the safetensors dtype is a floating point one, convertible to float64.
func isFloat(stDtype string) bool {
	switch stDtype {
	case "F64", "F32", "F16", "BF16":
		return true
	}
	return false
}
