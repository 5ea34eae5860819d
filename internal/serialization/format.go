package serialization

import (
	"github.com/born-ml/unitensor/internal/tensor"
)

// Format constants.
const (
	MetadataKey    = "__metadata__"
	ChecksumKey    = "sha256"
	HeaderSizeSize = 8 // uint64 LE prefix
)

// SafeTensors dtype strings.
const (
	DTypeBool     = "BOOL"
	DTypeUint8    = "U8"
	DTypeInt8     = "I8"
	DTypeInt16    = "I16"
	DTypeInt32    = "I32"
	DTypeInt64    = "I64"
	DTypeFloat16  = "F16"
	DTypeBFloat16 = "BF16"
	DTypeFloat32  = "F32"
	DTypeFloat64  = "F64"
)

// TensorMeta describes one tensor of an encoded file.
type TensorMeta struct {
	Name   string // Tensor name (e.g., "data", "layer1/weight")
	DType  string // SafeTensors dtype (e.g., "F32")
	Shape  []int  // Tensor shape
	Offset int64  // Offset in the data section
	Size   int64  // Size in bytes
}

// headerEntry is one tensor entry of the JSON header.
type headerEntry struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

var dtypeNames = map[tensor.DataType]string{
	tensor.Bool:     DTypeBool,
	tensor.Uint8:    DTypeUint8,
	tensor.Int8:     DTypeInt8,
	tensor.Int16:    DTypeInt16,
	tensor.Int32:    DTypeInt32,
	tensor.Int64:    DTypeInt64,
	tensor.Float16:  DTypeFloat16,
	tensor.BFloat16: DTypeBFloat16,
	tensor.Float32:  DTypeFloat32,
	tensor.Float64:  DTypeFloat64,
}

// dtypeToSafeTensors converts tensor.DataType to its SafeTensors string.
func dtypeToSafeTensors(dt tensor.DataType) (string, bool) {
	s, ok := dtypeNames[dt]
	return s, ok
}

// safeTensorsToDType converts a SafeTensors dtype string to tensor.DataType.
func safeTensorsToDType(s string) (tensor.DataType, bool) {
	for dt, name := range dtypeNames {
		if name == s {
			return dt, true
		}
	}
	return 0, false
}
