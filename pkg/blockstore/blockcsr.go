package blockstore

import (
	"fmt"
	"path/filepath"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/orneryd/munindb/pkg/csr"
	"github.com/orneryd/munindb/pkg/mmap"
)

// BlockCSR serves neighbor queries from the block-partitioned store:
// hot blocks from the LRU cache, cold blocks faulted in from badger and
// decompressed on demand. It satisfies the same Graph contract as the
// flat csr.Store.
type BlockCSR struct {
	numNodes uint64
	numEdges uint64
	width    uint32

	cold  *ColdStore
	cache *Cache
	group singleflight.Group

	labelsMap  *mmap.Mapping
	nodeLabels []uint8
}

// Open attaches to the block store inside an artifact directory. The
// meta record and node labels come from the flat artifact files; the
// adjacency comes from the block database.
func Open(dataDir string, cacheBytes uint64) (*BlockCSR, error) {
	n, m, err := csr.ReadMeta(filepath.Join(dataDir, csr.MetaFile))
	if err != nil {
		return nil, err
	}

	cold, err := OpenColdStore(filepath.Join(dataDir, BlocksDir))
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			cold.Close()
		}
	}()

	width := uint32(DefaultBlockWidth)
	if n > 0 {
		width, err = cold.Meta()
		if err != nil {
			return nil, err
		}
	}

	lm, err := mmap.Open(filepath.Join(dataDir, csr.NodeLabelsFile))
	if err != nil {
		return nil, err
	}
	if uint64(lm.Len()) != n {
		lm.Close()
		return nil, fmt.Errorf("%w: node labels hold %d entries, meta says %d", csr.ErrCorruptArtifact, lm.Len(), n)
	}

	ok = true
	return &BlockCSR{
		numNodes:   n,
		numEdges:   m,
		width:      width,
		cold:       cold,
		cache:      NewCache(cacheBytes),
		labelsMap:  lm,
		nodeLabels: lm.Bytes(),
	}, nil
}

// NumNodes returns the node count N.
func (s *BlockCSR) NumNodes() uint64 { return s.numNodes }

// NumEdges returns the edge count M.
func (s *BlockCSR) NumEdges() uint64 { return s.numEdges }

// block returns the decoded block for id, consulting the cache first.
// Concurrent faults on the same cold block are collapsed into one load.
func (s *BlockCSR) block(id uint32) (*Block, error) {
	if b, ok := s.cache.Get(id); ok {
		return b, nil
	}
	v, err, _ := s.group.Do(strconv.FormatUint(uint64(id), 10), func() (interface{}, error) {
		if b, ok := s.cache.Get(id); ok {
			return b, nil
		}
		b, err := s.cold.GetBlock(id)
		if err != nil {
			return nil, err
		}
		s.cache.Put(b)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Block), nil
}

// OutEdges returns the forward adjacency view of u.
func (s *BlockCSR) OutEdges(u uint32) (csr.EdgeView, error) {
	if uint64(u) >= s.numNodes {
		return csr.EdgeView{}, fmt.Errorf("blockstore: node %d out of range [0, %d)", u, s.numNodes)
	}
	b, err := s.block(u / s.width)
	if err != nil {
		return csr.EdgeView{}, err
	}
	return b.OutView(u % s.width), nil
}

// InEdges returns the reverse adjacency view of u.
func (s *BlockCSR) InEdges(u uint32) (csr.EdgeView, error) {
	if uint64(u) >= s.numNodes {
		return csr.EdgeView{}, fmt.Errorf("blockstore: node %d out of range [0, %d)", u, s.numNodes)
	}
	b, err := s.block(u / s.width)
	if err != nil {
		return csr.EdgeView{}, err
	}
	return b.InView(u % s.width), nil
}

// NodeLabel returns the label id of node u.
func (s *BlockCSR) NodeLabel(u uint32) uint8 {
	return s.nodeLabels[u]
}

// OutDegree returns the forward degree of u, faulting its block in if
// needed.
func (s *BlockCSR) OutDegree(u uint32) (int, error) {
	view, err := s.OutEdges(u)
	if err != nil {
		return 0, err
	}
	return view.Len(), nil
}

// InDegree returns the reverse degree of u, faulting its block in if
// needed.
func (s *BlockCSR) InDegree(u uint32) (int, error) {
	view, err := s.InEdges(u)
	if err != nil {
		return 0, err
	}
	return view.Len(), nil
}

// CacheStats returns hot cache counters.
func (s *BlockCSR) CacheStats() CacheStats {
	return s.cache.Stats()
}

// Shrink evicts hot blocks until the cache holds at most ratio of its
// budget.
func (s *BlockCSR) Shrink(ratio float64) {
	s.cache.Shrink(ratio)
}

// Close releases the cold store and node label mapping.
func (s *BlockCSR) Close() error {
	err1 := s.cold.Close()
	err2 := s.labelsMap.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
