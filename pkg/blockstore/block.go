// Package blockstore partitions the CSR into fixed-width node blocks
// for graphs that do not fit in addressable memory as a single mapping.
//
// Each block carries local forward and reverse offset arrays plus its
// adjacency records. Cold blocks live in a badger database with their
// adjacency bodies delta-varint encoded and snappy compressed; hot
// blocks sit decoded in an LRU cache bounded by a byte budget.
// BlockCSR exposes the same neighbor accessors as the flat csr.Store,
// so the query engine runs unchanged over either backend.
package blockstore

import (
	"github.com/orneryd/munindb/pkg/csr"
)

// DefaultBlockWidth is the number of nodes per block.
const DefaultBlockWidth = 65536

// Block is one decoded node partition: local CSR for both directions.
// Node u lives in block u/width at local index u%width.
type Block struct {
	ID    uint32
	Width uint32

	OffsetsOut []uint32 // len Width+1
	OffsetsIn  []uint32

	NbrOut []uint32
	LblOut []uint8
	NbrIn  []uint32
	LblIn  []uint8
}

// NewBlock creates an empty block with zeroed offsets.
func NewBlock(id, width uint32) *Block {
	return &Block{
		ID:         id,
		Width:      width,
		OffsetsOut: make([]uint32, width+1),
		OffsetsIn:  make([]uint32, width+1),
	}
}

// OutView returns the forward adjacency of the local node index.
func (b *Block) OutView(local uint32) csr.EdgeView {
	lo, hi := b.OffsetsOut[local], b.OffsetsOut[local+1]
	return csr.EdgeView{Neighbors: b.NbrOut[lo:hi], Labels: b.LblOut[lo:hi]}
}

// InView returns the reverse adjacency of the local node index.
func (b *Block) InView(local uint32) csr.EdgeView {
	lo, hi := b.OffsetsIn[local], b.OffsetsIn[local+1]
	return csr.EdgeView{Neighbors: b.NbrIn[lo:hi], Labels: b.LblIn[lo:hi]}
}

// MemBytes estimates the decoded in-memory footprint of the block,
// used to account hot cache usage.
func (b *Block) MemBytes() uint64 {
	return 4*uint64(len(b.OffsetsOut)+len(b.OffsetsIn)+len(b.NbrOut)+len(b.NbrIn)) +
		uint64(len(b.LblOut)+len(b.LblIn))
}
