package csr

import (
	"encoding/binary"
	"fmt"
	"os"
)

// metaSize is two little-endian uint64: node count and edge count.
const metaSize = 16

// ReadMeta reads the node and edge counts from a meta.bin file.
func ReadMeta(path string) (numNodes, numEdges uint64, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("reading meta: %w", err)
	}
	if len(data) != metaSize {
		return 0, 0, fmt.Errorf("%w: meta is %d bytes, want %d", ErrCorruptArtifact, len(data), metaSize)
	}
	return binary.LittleEndian.Uint64(data[0:8]), binary.LittleEndian.Uint64(data[8:16]), nil
}

// WriteMeta writes the node and edge counts to a meta.bin file.
func WriteMeta(path string, numNodes, numEdges uint64) error {
	var buf [metaSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], numNodes)
	binary.LittleEndian.PutUint64(buf[8:16], numEdges)
	if err := os.WriteFile(path, buf[:], 0644); err != nil {
		return fmt.Errorf("writing meta: %w", err)
	}
	return nil
}
