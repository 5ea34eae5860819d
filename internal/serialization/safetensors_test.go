package serialization

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/unitensor/internal/tensor"
)

func mustRaw(t *testing.T, shape tensor.Shape, dtype tensor.DataType, values ...float64) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.FromFloat64s(shape, dtype, values)
	if err != nil {
		t.Fatalf("FromFloat64s: %v", err)
	}
	return raw
}

// TestEncodeDecodeRoundTrip checks every dtype survives encoding bit for bit.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, dt := range tensor.AllDataTypes {
		t.Run(dt.String(), func(t *testing.T) {
			raw := mustRaw(t, tensor.Shape{2, 2}, dt, 1, 0, 1, 1)
			var buf bytes.Buffer
			if err := Encode(&buf, map[string]*tensor.RawTensor{"data": raw}, map[string]string{"backend": "cpu"}); err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			f, err := Decode(&buf)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			got := f.Tensors["data"]
			if got == nil || !got.Equal(raw) {
				t.Fatalf("round trip mismatch: got %v, want %v", got, raw)
			}
			if f.Metadata["backend"] != "cpu" {
				t.Errorf("metadata backend = %q, want cpu", f.Metadata["backend"])
			}
			if f.Metadata[ChecksumKey] == "" {
				t.Error("checksum missing from metadata")
			}
		})
	}
}

// TestEncodeOrderAndScalars checks sorted data order, scalars and empty tensors.
func TestEncodeOrderAndScalars(t *testing.T) {
	scalar := mustRaw(t, tensor.Shape{}, tensor.Float64, 3.5)
	empty := mustRaw(t, tensor.Shape{0, 3}, tensor.Int32)
	nested := mustRaw(t, tensor.Shape{3}, tensor.Int64, 1, 2, 3)

	var buf bytes.Buffer
	err := Encode(&buf, map[string]*tensor.RawTensor{
		"z":             scalar,
		"a/empty":       empty,
		"layer1/weight": nested,
	}, nil)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	f, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	want := []string{"a/empty", "layer1/weight", "z"}
	if len(f.Names) != len(want) {
		t.Fatalf("Names = %v, want %v", f.Names, want)
	}
	for i := range want {
		if f.Names[i] != want[i] {
			t.Errorf("Names[%d] = %q, want %q", i, f.Names[i], want[i])
		}
	}
	if got := f.Tensors["z"]; len(got.Shape()) != 0 || got.Float64At(0) != 3.5 {
		t.Errorf("scalar = %v", got.Float64s())
	}
	if got := f.Tensors["a/empty"]; !got.Shape().Equal(tensor.Shape{0, 3}) {
		t.Errorf("empty shape = %v", got.Shape())
	}
	if m := f.Meta["layer1/weight"]; m.DType != DTypeInt64 || m.Size != 24 {
		t.Errorf("meta = %+v", m)
	}
}

// TestDecodeDetectsCorruption flips a data byte and expects a checksum error.
func TestDecodeDetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	raw := mustRaw(t, tensor.Shape{4}, tensor.Float32, 1, 2, 3, 4)
	if err := Encode(&buf, map[string]*tensor.RawTensor{"data": raw}, nil); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	data := buf.Bytes()
	data[len(data)-1] ^= 0xFF

	if _, err := DecodeBytes(data, ValidationStrict); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
	if _, err := DecodeBytes(data, ValidationNone); err != nil {
		t.Fatalf("ValidationNone should skip the checksum: %v", err)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	header := []byte(`{"a":{"dtype":"F32","shape":[2],"data_offsets":[0,8]},"b":{"dtype":"F32","shape":[2],"data_offsets":[4,12]}}`)
	payload := make([]byte, 8+len(header)+12)
	binary.LittleEndian.PutUint64(payload, uint64(len(header)))
	copy(payload[8:], header)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"too small", []byte{1, 2}, nil},
		{"overlap", payload, ErrOffsetOverlap},
		{"header beyond payload", func() []byte {
			b := make([]byte, 16)
			binary.LittleEndian.PutUint64(b, 1000)
			return b
		}(), ErrOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBytes(tt.data, ValidationStrict)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateTensorName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"data", false},
		{"layer1/weight", false},
		{"", true},
		{"../etc/passwd", true},
		{"/abs", true},
		{"a\\b", true},
		{"a\x00b", true},
		{MetadataKey, true},
	}
	for _, tt := range tests {
		err := ValidateTensorName(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateTensorName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidTensorName) {
			t.Errorf("ValidateTensorName(%q) = %v, want ErrInvalidTensorName", tt.name, err)
		}
	}
}

func TestValidateTensorOffsets(t *testing.T) {
	tests := []struct {
		name    string
		tensors []TensorMeta
		want    error
	}{
		{"exact boundary", []TensorMeta{{Name: "a", Offset: 0, Size: 100}, {Name: "b", Offset: 100, Size: 100}}, nil},
		{"overlap", []TensorMeta{{Name: "a", Offset: 0, Size: 100}, {Name: "b", Offset: 99, Size: 100}}, ErrOffsetOverlap},
		{"out of bounds", []TensorMeta{{Name: "a", Offset: 150, Size: 100}}, ErrOutOfBounds},
		{"negative", []TensorMeta{{Name: "a", Offset: -1, Size: 10}}, ErrNegativeOffset},
		{"empty before data", []TensorMeta{{Name: "e", Offset: 0, Size: 0}, {Name: "w", Offset: 0, Size: 12}}, nil},
		{"empty after data", []TensorMeta{{Name: "w", Offset: 0, Size: 12}, {Name: "e", Offset: 0, Size: 0}}, nil},
		{"empty inside data", []TensorMeta{{Name: "w", Offset: 0, Size: 12}, {Name: "e", Offset: 4, Size: 0}}, nil},
		{"empty at end", []TensorMeta{{Name: "w", Offset: 0, Size: 200}, {Name: "e", Offset: 200, Size: 0}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTensorOffsets(tt.tensors, 200)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// TestWriteReadFile round-trips through a memory-mapped file.
func TestWriteReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.safetensors")
	raw := mustRaw(t, tensor.Shape{2, 3}, tensor.BFloat16, 1, 2, 3, 4, 5, 6)
	if err := WriteFile(path, map[string]*tensor.RawTensor{"data": raw}, map[string]string{"device": "cpu"}); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	f, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !f.Tensors["data"].Equal(raw) {
		t.Errorf("ReadFile data = %v, want %v", f.Tensors["data"].Float64s(), raw.Float64s())
	}
	if f.Metadata["device"] != "cpu" {
		t.Errorf("device = %q", f.Metadata["device"])
	}
}

func TestReadFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadFile(filepath.Join(dir, "missing.safetensors")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: got %v, want os.ErrNotExist", err)
	}

	short := filepath.Join(dir, "short.safetensors")
	if err := os.WriteFile(short, []byte{1, 2, 3}, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(short); err == nil {
		t.Error("expected error for a truncated file")
	}

	path := filepath.Join(dir, "state.safetensors")
	raw := mustRaw(t, tensor.Shape{2}, tensor.Float32, 1, 2)
	if err := WriteFile(path, map[string]*tensor.RawTensor{"w": raw}, nil); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(path); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("corrupted file: got %v, want ErrChecksumMismatch", err)
	}
}

func TestValidateTensorSize(t *testing.T) {
	tests := []struct {
		name string
		meta TensorMeta
		want error
	}{
		{"match", TensorMeta{Name: "a", DType: DTypeFloat32, Shape: []int{2, 3}, Size: 24}, nil},
		{"scalar", TensorMeta{Name: "a", DType: DTypeInt64, Shape: []int{}, Size: 8}, nil},
		{"short", TensorMeta{Name: "a", DType: DTypeFloat32, Shape: []int{2, 3}, Size: 20}, ErrSizeMismatch},
		{"unknown dtype", TensorMeta{Name: "a", DType: "C64", Shape: []int{1}, Size: 8}, ErrUnsupportedDType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTensorSize(tt.meta)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
