// Package idmap maps external string node identifiers to dense internal
// ids.
//
// The on-disk form is a pair of parallel arrays sorted by the 64-bit
// xxHash of the external id: id_hashes.bin (N x uint64, ascending) and
// id_internal_ids.bin (N x uint32). Lookup is an allocation-free binary
// search over the memory-mapped hash array.
//
// The same hash family is used at build and lookup time; a mapper built
// by one version of the importer is readable by any later version.
package idmap

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/orneryd/munindb/pkg/mmap"
)

// Artifact file names inside a graph directory.
const (
	HashesFile = "id_hashes.bin"
	IDsFile    = "id_internal_ids.bin"
)

// Errors for identifier registry operations.
var (
	ErrCorruptArtifact = fmt.Errorf("idmap: corrupt artifact")
	ErrHashCollision   = fmt.Errorf("idmap: hash collision between distinct external ids")
)

// HashExternalID computes the fixed 64-bit hash of an external id.
func HashExternalID(id string) uint64 {
	return xxhash.Sum64String(id)
}

// Builder accumulates external ids during import, assigning dense
// internal ids in order of first occurrence.
type Builder struct {
	ids   map[string]uint32
	order []string
}

// NewBuilder creates an empty identifier builder.
func NewBuilder() *Builder {
	return &Builder{ids: make(map[string]uint32)}
}

// Add registers an external id and returns its internal id. Repeated
// ids return the id assigned on first sight.
func (b *Builder) Add(external string) uint32 {
	if id, ok := b.ids[external]; ok {
		return id
	}
	id := uint32(len(b.order))
	b.ids[external] = id
	b.order = append(b.order, external)
	return id
}

// Get returns the internal id for an already-registered external id.
func (b *Builder) Get(external string) (uint32, bool) {
	id, ok := b.ids[external]
	return id, ok
}

// Len returns the number of distinct external ids registered.
func (b *Builder) Len() int {
	return len(b.order)
}

type hashPair struct {
	hash     uint64
	internal uint32
}

// WriteTo sorts the (hash, internal id) pairs by hash and writes the two
// parallel artifact files into dir. Two distinct external ids hashing to
// the same value make lookups ambiguous, so a collision aborts the
// import with ErrHashCollision.
func (b *Builder) WriteTo(dir string) error {
	pairs := make([]hashPair, len(b.order))
	for i, ext := range b.order {
		pairs[i] = hashPair{hash: HashExternalID(ext), internal: uint32(i)}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].hash < pairs[j].hash })

	for i := 1; i < len(pairs); i++ {
		if pairs[i].hash == pairs[i-1].hash {
			return fmt.Errorf("%w: hash %#x", ErrHashCollision, pairs[i].hash)
		}
	}

	hashes := make([]byte, 8*len(pairs))
	ids := make([]byte, 4*len(pairs))
	for i, p := range pairs {
		binary.LittleEndian.PutUint64(hashes[8*i:], p.hash)
		binary.LittleEndian.PutUint32(ids[4*i:], p.internal)
	}

	if err := os.WriteFile(filepath.Join(dir, HashesFile), hashes, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", HashesFile, err)
	}
	if err := os.WriteFile(filepath.Join(dir, IDsFile), ids, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", IDsFile, err)
	}
	return nil
}

// Mapper answers external-to-internal id lookups over the memory-mapped
// registry artifact. Safe for concurrent use; the artifact is immutable.
type Mapper struct {
	hashesMap *mmap.Mapping
	idsMap    *mmap.Mapping
	hashes    []uint64
	ids       []uint32
}

// Load memory-maps the registry files in dir and validates their sizes
// against the expected node count.
func Load(dir string, numNodes uint64) (*Mapper, error) {
	hm, err := mmap.Open(filepath.Join(dir, HashesFile))
	if err != nil {
		return nil, err
	}
	im, err := mmap.Open(filepath.Join(dir, IDsFile))
	if err != nil {
		hm.Close()
		return nil, err
	}

	if hm.Len()%8 != 0 || im.Len()%4 != 0 {
		hm.Close()
		im.Close()
		return nil, fmt.Errorf("%w: file sizes %d/%d not multiples of element width",
			ErrCorruptArtifact, hm.Len(), im.Len())
	}
	if uint64(hm.Len()/8) != numNodes || uint64(im.Len()/4) != numNodes {
		hm.Close()
		im.Close()
		return nil, fmt.Errorf("%w: registry holds %d hashes and %d ids, meta says %d nodes",
			ErrCorruptArtifact, hm.Len()/8, im.Len()/4, numNodes)
	}

	return &Mapper{
		hashesMap: hm,
		idsMap:    im,
		hashes:    mmap.Uint64s(hm.Bytes()),
		ids:       mmap.Uint32s(im.Bytes()),
	}, nil
}

// Lookup resolves an external id to its internal id.
func (m *Mapper) Lookup(external string) (uint32, bool) {
	h := HashExternalID(external)
	lo, hi := 0, len(m.hashes)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		switch {
		case m.hashes[mid] == h:
			return m.ids[mid], true
		case m.hashes[mid] < h:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0, false
}

// Size returns the number of registered ids.
func (m *Mapper) Size() int {
	return len(m.hashes)
}

// Close releases the underlying mappings.
func (m *Mapper) Close() error {
	err1 := m.hashesMap.Close()
	err2 := m.idsMap.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
