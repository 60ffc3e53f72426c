// Package csr holds the on-disk compressed-sparse-row graph
// representation and its read-only memory-mapped store.
//
// A graph directory contains forward and reverse adjacency, each as
// three parallel arrays (offsets, neighbors, edge labels), the node
// label array, the identifier registry and two label string tables.
// Everything is little-endian and write-once: one import produces the
// directory atomically and queries only ever map it read-only.
package csr

import (
	"fmt"
	"path/filepath"

	"github.com/orneryd/munindb/pkg/mmap"
)

// Artifact file names inside a graph directory.
const (
	MetaFile          = "meta.bin"
	OutOffsetsFile    = "out_offsets.bin"
	OutNeighborsFile  = "out_neighbors.bin"
	OutEdgeLabelsFile = "out_edge_labels.bin"
	InOffsetsFile     = "in_offsets.bin"
	InNeighborsFile   = "in_neighbors.bin"
	InEdgeLabelsFile  = "in_edge_labels.bin"
	NodeLabelsFile    = "node_labels.bin"
	NodeLabelStrings  = "node_label_strings.txt"
	EdgeLabelStrings  = "edge_label_strings.txt"
)

// ErrCorruptArtifact indicates an artifact file whose size or contents
// disagree with the meta record.
var ErrCorruptArtifact = fmt.Errorf("csr: corrupt artifact")

// EdgeView is a zero-copy view over one node's adjacency: parallel
// neighbor and edge-label slices. Valid for the lifetime of the store
// that produced it.
type EdgeView struct {
	Neighbors []uint32
	Labels    []uint8
}

// Len returns the number of edges in the view.
func (v EdgeView) Len() int {
	return len(v.Neighbors)
}

// direction bundles one CSR half (forward or reverse).
type direction struct {
	offsets   []uint32
	neighbors []uint32
	labels    []uint8
}

func (d *direction) view(u uint32) EdgeView {
	lo, hi := d.offsets[u], d.offsets[u+1]
	return EdgeView{
		Neighbors: d.neighbors[lo:hi],
		Labels:    d.labels[lo:hi],
	}
}

// Store is the memory-mapped CSR pair plus node labels. All methods are
// safe for concurrent readers; the store never mutates after Load.
type Store struct {
	numNodes uint64
	numEdges uint64

	out direction
	in  direction

	nodeLabels []uint8

	maps []*mmap.Mapping
}

// Load opens and memory-maps the CSR artifacts in dir, validating every
// file size against the meta record and the offset arrays for
// monotonicity. The returned store keeps the mappings alive until
// Close.
func Load(dir string) (*Store, error) {
	n, m, err := ReadMeta(filepath.Join(dir, MetaFile))
	if err != nil {
		return nil, err
	}

	s := &Store{numNodes: n, numEdges: m}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	mapFile := func(name string, wantBytes uint64) (*mmap.Mapping, error) {
		mp, err := mmap.Open(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		s.maps = append(s.maps, mp)
		if uint64(mp.Len()) != wantBytes {
			return nil, fmt.Errorf("%w: %s is %d bytes, want %d", ErrCorruptArtifact, name, mp.Len(), wantBytes)
		}
		return mp, nil
	}

	load := func(d *direction, offName, nbrName, lblName string) error {
		off, err := mapFile(offName, 4*(n+1))
		if err != nil {
			return err
		}
		nbr, err := mapFile(nbrName, 4*m)
		if err != nil {
			return err
		}
		lbl, err := mapFile(lblName, m)
		if err != nil {
			return err
		}
		d.offsets = mmap.Uint32s(off.Bytes())
		d.neighbors = mmap.Uint32s(nbr.Bytes())
		d.labels = lbl.Bytes()
		return validateOffsets(offName, d.offsets, m)
	}

	if err := load(&s.out, OutOffsetsFile, OutNeighborsFile, OutEdgeLabelsFile); err != nil {
		return nil, err
	}
	if err := load(&s.in, InOffsetsFile, InNeighborsFile, InEdgeLabelsFile); err != nil {
		return nil, err
	}

	nl, err := mapFile(NodeLabelsFile, n)
	if err != nil {
		return nil, err
	}
	s.nodeLabels = nl.Bytes()

	ok = true
	return s, nil
}

// validateOffsets checks the CSR invariants: offsets[0] = 0, monotone
// non-decreasing, offsets[N] = M.
func validateOffsets(name string, offsets []uint32, m uint64) error {
	if len(offsets) == 0 || offsets[0] != 0 {
		return fmt.Errorf("%w: %s does not start at 0", ErrCorruptArtifact, name)
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return fmt.Errorf("%w: %s not monotone at index %d", ErrCorruptArtifact, name, i)
		}
	}
	if uint64(offsets[len(offsets)-1]) != m {
		return fmt.Errorf("%w: %s ends at %d, meta says %d edges", ErrCorruptArtifact, name, offsets[len(offsets)-1], m)
	}
	return nil
}

// NumNodes returns the node count N.
func (s *Store) NumNodes() uint64 {
	return s.numNodes
}

// NumEdges returns the edge count M.
func (s *Store) NumEdges() uint64 {
	return s.numEdges
}

// OutEdges returns the forward adjacency view of u.
func (s *Store) OutEdges(u uint32) (EdgeView, error) {
	if uint64(u) >= s.numNodes {
		return EdgeView{}, fmt.Errorf("csr: node %d out of range [0, %d)", u, s.numNodes)
	}
	return s.out.view(u), nil
}

// InEdges returns the reverse adjacency view of u.
func (s *Store) InEdges(u uint32) (EdgeView, error) {
	if uint64(u) >= s.numNodes {
		return EdgeView{}, fmt.Errorf("csr: node %d out of range [0, %d)", u, s.numNodes)
	}
	return s.in.view(u), nil
}

// NodeLabel returns the label id of node u.
func (s *Store) NodeLabel(u uint32) uint8 {
	return s.nodeLabels[u]
}

// OutDegree returns the forward degree of u.
func (s *Store) OutDegree(u uint32) int {
	return int(s.out.offsets[u+1] - s.out.offsets[u])
}

// InDegree returns the reverse degree of u.
func (s *Store) InDegree(u uint32) int {
	return int(s.in.offsets[u+1] - s.in.offsets[u])
}

// Close releases all mappings. Views obtained from the store become
// invalid.
func (s *Store) Close() error {
	var first error
	for _, mp := range s.maps {
		if err := mp.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.maps = nil
	return first
}
