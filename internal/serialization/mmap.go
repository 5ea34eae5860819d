package serialization

import (
	"fmt"
	"os"
)

// mapping is a read-only view of a whole file.
type mapping struct {
	data  []byte
	unmap func() error
}

func (m *mapping) Close() error {
	if m.unmap == nil {
		return nil
	}
	err := m.unmap()
	m.data, m.unmap = nil, nil
	return err
}

// ReadFile maps the file at path and decodes it with strict validation.
// Decoded tensors own their bytes, so the mapping is released before
// ReadFile returns.
func ReadFile(path string) (f *File, err error) {
	//nolint:gosec // G304: loading a user-chosen path is the point
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open state file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat state file: %w", err)
	}
	if stat.Size() < HeaderSizeSize {
		return nil, fmt.Errorf("state file too small: %d bytes", stat.Size())
	}

	m, err := mapFile(file, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", path, err)
	}
	defer func() {
		if cerr := m.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("unmap %s: %w", path, cerr)
		}
	}()

	return DecodeBytes(m.data, ValidationStrict)
}
