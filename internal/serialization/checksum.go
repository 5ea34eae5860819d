package serialization

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeChecksum computes SHA-256 checksum of data.
func ComputeChecksum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ValidateChecksum compares the checksum of data against a hex-encoded
// stored checksum. Returns ErrChecksumMismatch if they don't match.
func ValidateChecksum(data []byte, stored string) error {
	want, err := hex.DecodeString(stored)
	if err != nil || len(want) != sha256.Size {
		return fmt.Errorf("%w: malformed checksum %q", ErrChecksumMismatch, stored)
	}
	got := ComputeChecksum(data)
	if string(got[:]) != string(want) {
		return ErrChecksumMismatch
	}
	return nil
}
