package blockstore

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/orneryd/munindb/pkg/log"
)

// BlocksDir is the subdirectory of the artifact directory holding the
// cold block database.
const BlocksDir = "blocks"

// Writer accumulates resolved edges into per-block builders during
// import and persists the finished blocks. It satisfies the importer's
// EdgeSink contract: when the importer's memory watermark trips,
// FlushHot spills every builder to disk as a segment and releases its
// buffers; Finalize merges segments and buffers into final blocks.
type Writer struct {
	width   uint32
	cold    *ColdStore
	buffers map[uint32]*blockBuffer
	nextSeq uint64
}

// rec is one half-edge routed to a block: the local node index, the
// other endpoint's global id, and the edge label.
type rec struct {
	local uint32
	other uint32
	label uint8
}

type blockBuffer struct {
	out []rec
	in  []rec
}

// NewWriter creates a block writer persisting into a badger database
// at dir.
func NewWriter(dir string, width uint32) (*Writer, error) {
	if width == 0 {
		width = DefaultBlockWidth
	}
	cold, err := OpenColdStore(dir)
	if err != nil {
		return nil, err
	}
	return &Writer{
		width:   width,
		cold:    cold,
		buffers: make(map[uint32]*blockBuffer),
	}, nil
}

func (w *Writer) buffer(blockID uint32) *blockBuffer {
	b, ok := w.buffers[blockID]
	if !ok {
		b = &blockBuffer{}
		w.buffers[blockID] = b
	}
	return b
}

// AppendEdge routes one directed edge to the source's block (forward)
// and the destination's block (reverse).
func (w *Writer) AppendEdge(src, dst uint32, label uint8) error {
	sb := w.buffer(src / w.width)
	sb.out = append(sb.out, rec{local: src % w.width, other: dst, label: label})
	db := w.buffer(dst / w.width)
	db.in = append(db.in, rec{local: dst % w.width, other: src, label: label})
	return nil
}

// segment layout: nOut uint32, nIn uint32, then 9 bytes per record
// (local, other, label), out records first.
func encodeSegment(b *blockBuffer) []byte {
	buf := make([]byte, 8, 8+9*(len(b.out)+len(b.in)))
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(b.out)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(b.in)))
	var tmp [9]byte
	for _, lists := range [][]rec{b.out, b.in} {
		for _, r := range lists {
			binary.LittleEndian.PutUint32(tmp[0:], r.local)
			binary.LittleEndian.PutUint32(tmp[4:], r.other)
			tmp[8] = r.label
			buf = append(buf, tmp[:]...)
		}
	}
	return buf
}

func decodeSegment(data []byte) (out, in []rec, err error) {
	if len(data) < 8 {
		return nil, nil, fmt.Errorf("blockstore: truncated segment")
	}
	nOut := int(binary.LittleEndian.Uint32(data[0:]))
	nIn := int(binary.LittleEndian.Uint32(data[4:]))
	if len(data) != 8+9*(nOut+nIn) {
		return nil, nil, fmt.Errorf("blockstore: segment is %d bytes, want %d", len(data), 8+9*(nOut+nIn))
	}
	pos := 8
	read := func(n int) []rec {
		recs := make([]rec, n)
		for i := range recs {
			recs[i] = rec{
				local: binary.LittleEndian.Uint32(data[pos:]),
				other: binary.LittleEndian.Uint32(data[pos+4:]),
				label: data[pos+8],
			}
			pos += 9
		}
		return recs
	}
	return read(nOut), read(nIn), nil
}

// FlushHot spills every non-empty builder to a cold segment and drops
// its buffers.
func (w *Writer) FlushHot() error {
	flushed := 0
	for id, b := range w.buffers {
		if len(b.out) == 0 && len(b.in) == 0 {
			continue
		}
		if err := w.cold.AppendSegment(id, w.nextSeq, encodeSegment(b)); err != nil {
			return err
		}
		w.nextSeq++
		flushed++
		delete(w.buffers, id)
	}
	log.Debug("flushed %d block builders to cold segments", flushed)
	return nil
}

// Finalize builds every block from its buffered records and cold
// segments, persists it, and removes the segments. Blocks with no
// edges are written too, so readers never fault on a valid node range.
func (w *Writer) Finalize(numNodes uint64) error {
	if err := w.cold.PutMeta(w.width); err != nil {
		return err
	}
	numBlocks := uint32((numNodes + uint64(w.width) - 1) / uint64(w.width))
	for id := uint32(0); id < numBlocks; id++ {
		buf := w.buffers[id]
		if buf == nil {
			buf = &blockBuffer{}
		}
		err := w.cold.Segments(id, func(data []byte) error {
			out, in, err := decodeSegment(data)
			if err != nil {
				return err
			}
			buf.out = append(buf.out, out...)
			buf.in = append(buf.in, in...)
			return nil
		})
		if err != nil {
			return fmt.Errorf("merging segments for block %d: %w", id, err)
		}

		block := buildBlock(id, w.width, buf)
		if err := w.cold.PutBlock(block); err != nil {
			return err
		}
		if err := w.cold.DeleteSegments(id); err != nil {
			return err
		}
		delete(w.buffers, id)
	}
	log.Info("finalized %d blocks (width %d)", numBlocks, w.width)
	return nil
}

// Close closes the underlying cold store.
func (w *Writer) Close() error {
	return w.cold.Close()
}

// buildBlock assembles a local CSR from unordered records. Slices are
// sorted by neighbor id, which also tightens the delta encoding.
func buildBlock(id, width uint32, buf *blockBuffer) *Block {
	b := NewBlock(id, width)
	b.NbrOut, b.LblOut = scatter(width, buf.out, b.OffsetsOut)
	b.NbrIn, b.LblIn = scatter(width, buf.in, b.OffsetsIn)
	return b
}

func scatter(width uint32, recs []rec, offsets []uint32) ([]uint32, []uint8) {
	counts := make([]uint32, width)
	for _, r := range recs {
		counts[r.local]++
	}
	for u := uint32(0); u < width; u++ {
		offsets[u+1] = offsets[u] + counts[u]
	}

	cursor := counts
	for i := range cursor {
		cursor[i] = 0
	}
	nbrs := make([]uint32, len(recs))
	lbls := make([]uint8, len(recs))
	for _, r := range recs {
		pos := offsets[r.local] + cursor[r.local]
		nbrs[pos] = r.other
		lbls[pos] = r.label
		cursor[r.local]++
	}

	for u := uint32(0); u < width; u++ {
		lo, hi := offsets[u], offsets[u+1]
		s := pairSlice{nbrs: nbrs[lo:hi], lbls: lbls[lo:hi]}
		sort.Stable(s)
	}
	return nbrs, lbls
}

type pairSlice struct {
	nbrs []uint32
	lbls []uint8
}

func (p pairSlice) Len() int           { return len(p.nbrs) }
func (p pairSlice) Less(i, j int) bool { return p.nbrs[i] < p.nbrs[j] }
func (p pairSlice) Swap(i, j int) {
	p.nbrs[i], p.nbrs[j] = p.nbrs[j], p.nbrs[i]
	p.lbls[i], p.lbls[j] = p.lbls[j], p.lbls[i]
}
