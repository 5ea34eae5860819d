package serialization

import (
	"cmp"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/born-ml/unitensor/internal/tensor"
)

// File is a decoded SafeTensors payload.
type File struct {
	Names    []string                     // Tensor names in data order
	Tensors  map[string]*tensor.RawTensor // Decoded tensors, own their bytes
	Metadata map[string]string            // "__metadata__" entries
	Meta     map[string]TensorMeta        // Header entries by name
}

// Decode reads a SafeTensors payload from r with strict validation.
func Decode(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read: %w", err)
	}
	return DecodeBytes(data, ValidationStrict)
}

// DecodeBytes parses a SafeTensors payload. Tensor data is copied out of data.
func DecodeBytes(data []byte, level ValidationLevel) (*File, error) {
	if len(data) < HeaderSizeSize {
		return nil, fmt.Errorf("payload too small: %d bytes", len(data))
	}
	headerSize := binary.LittleEndian.Uint64(data[:HeaderSizeSize])
	if headerSize > MaxHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}
	if headerSize > uint64(len(data)-HeaderSizeSize) {
		return nil, fmt.Errorf("%w: header of %d bytes in %d byte payload", ErrOutOfBounds, headerSize, len(data))
	}
	body := data[HeaderSizeSize+int(headerSize):]

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data[HeaderSizeSize:HeaderSizeSize+int(headerSize)], &entries); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	f := &File{
		Tensors:  make(map[string]*tensor.RawTensor, len(entries)),
		Metadata: make(map[string]string),
		Meta:     make(map[string]TensorMeta, len(entries)),
	}
	metas := make([]TensorMeta, 0, len(entries))
	for name, msg := range entries {
		if name == MetadataKey {
			if err := json.Unmarshal(msg, &f.Metadata); err != nil {
				return nil, fmt.Errorf("failed to parse metadata: %w", err)
			}
			continue
		}
		var e headerEntry
		if err := json.Unmarshal(msg, &e); err != nil {
			return nil, fmt.Errorf("failed to parse tensor %q: %w", name, err)
		}
		shape := make([]int, len(e.Shape))
		for i, d := range e.Shape {
			shape[i] = int(d)
		}
		metas = append(metas, TensorMeta{
			Name:   name,
			DType:  e.DType,
			Shape:  shape,
			Offset: e.DataOffsets[0],
			Size:   e.DataOffsets[1] - e.DataOffsets[0],
		})
	}

	if err := ValidateHeader(metas, int64(len(body)), level); err != nil {
		return nil, err
	}
	if sum, ok := f.Metadata[ChecksumKey]; ok && level != ValidationNone {
		if err := ValidateChecksum(body, sum); err != nil {
			return nil, err
		}
	}

	// Data order, with names breaking ties between empty tensors as the
	// writer does.
	slices.SortFunc(metas, func(a, b TensorMeta) int {
		return cmp.Or(cmp.Compare(a.Offset, b.Offset), cmp.Compare(a.Name, b.Name))
	})
	for _, m := range metas {
		dt, ok := safeTensorsToDType(m.DType)
		if !ok {
			return nil, fmt.Errorf("%w: tensor %q has dtype %q", ErrUnsupportedDType, m.Name, m.DType)
		}
		if m.Offset < 0 || m.Size < 0 || m.Offset+m.Size > int64(len(body)) {
			return nil, &ValidationError{Type: "out_of_bounds", Tensor: m.Name, Details: "data offsets outside payload"}
		}
		buf := make([]byte, m.Size)
		copy(buf, body[m.Offset:m.Offset+m.Size])
		raw, err := tensor.NewRawFromBytes(tensor.Shape(m.Shape), dt, tensor.CPU, buf)
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", m.Name, err)
		}
		f.Names = append(f.Names, m.Name)
		f.Tensors[m.Name] = raw
		f.Meta[m.Name] = m
	}
	return f, nil
}
