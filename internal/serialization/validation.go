package serialization

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Limits applied to decoded headers.
const (
	MaxHeaderSize    = 100 << 20
	MaxTensorCount   = 100_000
	MaxTensorNameLen = 4096
)

// ValidationLevel controls the strictness of validation.
type ValidationLevel int

const (
	// ValidationStrict checks names, dtypes, sizes, offsets and the checksum.
	ValidationStrict ValidationLevel = iota
	// ValidationNormal checks names and counts only.
	ValidationNormal
	// ValidationNone skips validation. Use only with trusted input.
	ValidationNone
)

func invalid(typ, name, format string, args ...any) *ValidationError {
	return &ValidationError{Type: typ, Tensor: name, Details: fmt.Sprintf(format, args...)}
}

// ValidateTensorOffsets checks that tensor regions are in bounds and do not
// overlap.
func ValidateTensorOffsets(tensors []TensorMeta, dataSize int64) error {
	if len(tensors) > MaxTensorCount {
		return invalid("too_many_tensors", "", "got %d, max %d", len(tensors), MaxTensorCount)
	}

	sorted := slices.Clone(tensors)
	slices.SortStableFunc(sorted, func(a, b TensorMeta) int {
		return cmp.Or(cmp.Compare(a.Offset, b.Offset), cmp.Compare(a.Size, b.Size))
	})

	// Empty tensors occupy no bytes and cannot overlap anything.
	var prev *TensorMeta
	for i := range sorted {
		t := &sorted[i]
		end := t.Offset + t.Size
		switch {
		case t.Offset < 0 || t.Size < 0:
			return invalid("negative_offset", t.Name, "offset=%d size=%d", t.Offset, t.Size)
		case end > dataSize:
			return invalid("out_of_bounds", t.Name, "offset %d + size %d > data size %d", t.Offset, t.Size, dataSize)
		case t.Size == 0:
			continue
		}
		if prev != nil && prev.Offset+prev.Size > t.Offset {
			e := invalid("offset_overlap", prev.Name, "regions [%d-%d] and [%d-%d] overlap",
				prev.Offset, prev.Offset+prev.Size, t.Offset, end)
			e.Tensor2 = t.Name
			return e
		}
		prev = t
	}
	return nil
}

// ValidateTensorSize checks that t's byte size matches its dtype and shape.
func ValidateTensorSize(t TensorMeta) error {
	dt, ok := safeTensorsToDType(t.DType)
	if !ok {
		return fmt.Errorf("%w: tensor %q has dtype %q", ErrUnsupportedDType, t.Name, t.DType)
	}
	n := int64(1)
	for _, d := range t.Shape {
		if d < 0 {
			return invalid("size_mismatch", t.Name, "negative dimension in shape %v", t.Shape)
		}
		n *= int64(d)
	}
	if want := n * int64(dt.Size()); want != t.Size {
		return invalid("size_mismatch", t.Name, "%s%v needs %d bytes, got %d", t.DType, t.Shape, want, t.Size)
	}
	return nil
}

// ValidateTensorName rejects empty, oversized and path-like names.
// Key chains such as "layer1/weight" are allowed.
func ValidateTensorName(name string) error {
	switch {
	case name == "":
		return invalid("invalid_name", "", "empty name")
	case len(name) > MaxTensorNameLen:
		return invalid("name_too_long", name, "length %d > max %d", len(name), MaxTensorNameLen)
	case name == MetadataKey:
		return invalid("invalid_name", name, "reserved name")
	case strings.Contains(name, ".."):
		return invalid("invalid_name", name, "contains '..'")
	case strings.HasPrefix(name, "/") || strings.Contains(name, "\\"):
		return invalid("invalid_name", name, "absolute path or backslash")
	case strings.Contains(name, "\x00"):
		return invalid("invalid_name", name, "contains null byte")
	}
	return nil
}

// ValidateHeader validates the tensor table of a decoded header.
func ValidateHeader(tensors []TensorMeta, dataSize int64, level ValidationLevel) error {
	if level == ValidationNone {
		return nil
	}
	if len(tensors) > MaxTensorCount {
		return invalid("too_many_tensors", "", "got %d, max %d", len(tensors), MaxTensorCount)
	}
	for _, t := range tensors {
		if err := ValidateTensorName(t.Name); err != nil {
			return err
		}
	}
	if level != ValidationStrict {
		return nil
	}
	for _, t := range tensors {
		if err := ValidateTensorSize(t); err != nil {
			return err
		}
	}
	return ValidateTensorOffsets(tensors, dataSize)
}
