package serialization

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/born-ml/unitensor/internal/tensor"
)

// Encode writes tensors and metadata to w in SafeTensors format.
//
// Format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]
//
// Tensors are written in alphabetical order by name. The checksum of the
// data section is added to the metadata.
func Encode(w io.Writer, tensors map[string]*tensor.RawTensor, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	h := sha256.New()
	var offset int64
	for _, name := range names {
		raw := tensors[name]
		dt, ok := dtypeToSafeTensors(raw.DType())
		if !ok {
			return fmt.Errorf("%w: tensor %q has dtype %s", ErrUnsupportedDType, name, raw.DType())
		}
		shape := make([]int64, len(raw.Shape()))
		for i, d := range raw.Shape() {
			shape[i] = int64(d)
		}
		size := int64(raw.ByteSize())
		header[name] = headerEntry{
			DType:       dt,
			Shape:       shape,
			DataOffsets: [2]int64{offset, offset + size},
		}
		h.Write(raw.Data())
		offset += size
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[ChecksumKey] = hex.EncodeToString(h.Sum(nil))
	header[MetadataKey] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := bw.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, name := range names {
		if _, err := bw.Write(tensors[name].Data()); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}
	return bw.Flush()
}

// WriteFile encodes tensors and metadata into the file at path.
func WriteFile(path string, tensors map[string]*tensor.RawTensor, metadata map[string]string) (err error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for saving
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return Encode(f, tensors, metadata)
}
