package mmap

import (
	"errors"
	"io"
	"os"
	"sync"
)

// ErrClosed is returned when reading from a closed mapping.
var ErrClosed = errors.New("mmap: mapping closed")

// Mapping is a read-only memory-mapped file.
type Mapping struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

// Open maps the file at path into memory.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := fi.Size()
	if size == 0 {
		return &Mapping{}, nil
	}
	if int64(int(size)) != size {
		return nil, errors.New("mmap: file too large")
	}

	data, err := mmap(f, int(size))
	if err != nil {
		return nil, err
	}
	return &Mapping{data: data}, nil
}

// Bytes returns the mapped region. It is valid until Close.
func (m *Mapping) Bytes() []byte {
	return m.data
}

// Size returns the mapped length in bytes.
func (m *Mapping) Size() int {
	return len(m.data)
}

// ReadAt implements io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	if off < 0 || off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close unmaps the file. It is idempotent.
func (m *Mapping) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	data := m.data
	m.data = nil
	if len(data) == 0 {
		return nil
	}
	return munmap(data)
}

// ReadFile maps path and returns a private copy of its contents.
func ReadFile(path string) ([]byte, error) {
	m, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}
