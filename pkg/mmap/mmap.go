// Package mmap provides read-only memory-mapped file access for the
// on-disk graph artifacts.
//
// Mappings are created once at load time and stay valid until Close.
// Zero-length files map to an empty (nil-backed) mapping, since the
// kernel rejects zero-length mmap requests.
package mmap

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Mapping is a read-only view over a memory-mapped file.
type Mapping struct {
	data []byte
}

// Open memory-maps the file at path read-only.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.Size() == 0 {
		return &Mapping{}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &Mapping{data: data}, nil
}

// Bytes returns the mapped region. The slice is valid until Close.
func (m *Mapping) Bytes() []byte {
	return m.data
}

// Len returns the size of the mapped region in bytes.
func (m *Mapping) Len() int {
	return len(m.data)
}

// Close releases the mapping. Views previously returned become invalid.
func (m *Mapping) Close() error {
	if m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	return unix.Munmap(data)
}

// Uint32s reinterprets a byte slice as a little-endian []uint32 without
// copying. The byte length must be a multiple of 4.
func Uint32s(b []byte) []uint32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// Uint64s reinterprets a byte slice as a little-endian []uint64 without
// copying. The byte length must be a multiple of 8.
func Uint64s(b []byte) []uint64 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&b[0])), len(b)/8)
}
