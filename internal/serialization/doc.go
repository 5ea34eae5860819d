// Package serialization encodes named host tensors in the SafeTensors format.
//
// It is the persistence layer behind Array state (Array.MarshalBinary) and
// container snapshots:
//
//	Format Structure:
//	  [8 bytes: Header Size (uint64 LE)]
//	  [Header: JSON object, one entry per tensor plus "__metadata__"]
//	  [Tensor data: raw little-endian bytes, in header order]
//
// Tensors are written in sorted name order. The writer records a SHA-256
// checksum of the data section in the metadata under "sha256"; readers
// verify it when present.
//
// Example usage:
//
//	var buf bytes.Buffer
//	err := serialization.Encode(&buf, map[string]*tensor.RawTensor{"data": raw},
//	    map[string]string{"backend": "cpu"})
//
//	f, err := serialization.Decode(&buf)
//	raw := f.Tensors["data"]
package serialization
