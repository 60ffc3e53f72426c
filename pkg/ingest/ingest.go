// Package ingest builds the on-disk graph artifacts from an edge-list
// text file.
//
// The importer makes two passes over the input. The first pass assigns
// dense internal ids to external node ids in order of first occurrence
// and interns node and edge labels. The second pass resolves every
// record and builds the forward CSR; the reverse CSR is derived from it
// by a counting transpose. All artifacts are staged in a temporary
// directory and renamed into place on success, so a failed import never
// leaves a partially visible graph.
//
// Record format: one header line (skipped), then
// src_id,src_label,dst_id,dst_label,edge_label per line. Lines with
// fewer than five fields are skipped with a warning.
package ingest

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/orneryd/munindb/pkg/csr"
	"github.com/orneryd/munindb/pkg/idmap"
	"github.com/orneryd/munindb/pkg/log"
)

// Errors for import operations.
var (
	ErrMemoryLimit = fmt.Errorf("ingest: import memory limit exceeded")
)

// EdgeSink receives resolved edges during the second pass instead of
// the in-memory CSR builder. Used by the block store to stream edges
// into per-block builders for graphs too large for a single CSR.
type EdgeSink interface {
	// AppendEdge adds one directed edge.
	AppendEdge(src, dst uint32, label uint8) error
	// FlushHot persists buffered state to disk and releases memory.
	// Called when the importer's memory watermark trips.
	FlushHot() error
	// Finalize completes the sink after the last edge. numNodes is the
	// final node count.
	Finalize(numNodes uint64) error
	// Close releases the sink's resources. Called before the staged
	// artifact is published.
	Close() error
}

// Options control an import run.
type Options struct {
	// SortAdjacency sorts each adjacency slice by destination id.
	// Improves locality for neighbor-set intersection; off changes no
	// query result.
	SortAdjacency bool

	// MaxMemBytes aborts (or, with a Sink, flushes) when the heap
	// crosses this watermark. 0 disables the check.
	MaxMemBytes uint64

	// SinkFactory, when non-nil, creates an EdgeSink rooted in the
	// staging directory. Edges then bypass the flat CSR builder and the
	// out/in adjacency files are not written; the sink persists blocks
	// under the staging directory so they publish atomically with the
	// rest of the artifact.
	SinkFactory func(stageDir string) (EdgeSink, error)
}

// Stats summarizes a completed import.
type Stats struct {
	Nodes        uint64
	Edges        uint64
	SkippedLines uint64
	NodeLabels   int
	EdgeLabels   int
	Duration     time.Duration
}

// Import reads the edge list at inputPath and publishes the graph
// artifacts at dataDir. On any fatal error no artifact becomes
// visible.
func Import(inputPath, dataDir string, opts Options) (*Stats, error) {
	start := time.Now()

	stage := dataDir + ".tmp"
	if err := os.RemoveAll(stage); err != nil {
		return nil, fmt.Errorf("clearing staging directory: %w", err)
	}
	if err := os.MkdirAll(stage, 0755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			os.RemoveAll(stage)
		}
	}()

	imp := &importer{
		opts:       opts,
		ids:        idmap.NewBuilder(),
		nodeLabels: csr.NewLabelTable(),
		edgeLabels: csr.NewLabelTable(),
	}

	if opts.SinkFactory != nil {
		sink, err := opts.SinkFactory(stage)
		if err != nil {
			return nil, fmt.Errorf("creating edge sink: %w", err)
		}
		imp.sink = sink
		defer func() {
			if !ok {
				sink.Close()
			}
		}()
	}

	if err := imp.passOne(inputPath); err != nil {
		return nil, err
	}
	log.Info("pass 1 complete: %d nodes, %d node labels, %d edge labels",
		imp.ids.Len(), imp.nodeLabels.Len(), imp.edgeLabels.Len())

	if err := imp.passTwo(inputPath); err != nil {
		return nil, err
	}

	if err := imp.writeArtifacts(stage); err != nil {
		return nil, err
	}

	if imp.sink != nil {
		if err := imp.sink.Close(); err != nil {
			return nil, fmt.Errorf("closing edge sink: %w", err)
		}
	}

	if err := publish(stage, dataDir); err != nil {
		return nil, err
	}
	ok = true

	stats := &Stats{
		Nodes:        uint64(imp.ids.Len()),
		Edges:        imp.numEdges,
		SkippedLines: imp.skipped,
		NodeLabels:   imp.nodeLabels.Len(),
		EdgeLabels:   imp.edgeLabels.Len(),
		Duration:     time.Since(start),
	}
	log.Info("import complete: %d nodes, %d edges in %v", stats.Nodes, stats.Edges, stats.Duration)
	return stats, nil
}

type importer struct {
	opts Options
	sink EdgeSink

	ids        *idmap.Builder
	nodeLabels *csr.LabelTable
	edgeLabels *csr.LabelTable

	// node label id per internal id, assigned on first occurrence
	nodeLabelIDs []uint8

	numEdges uint64
	skipped  uint64

	// flat forward CSR, built in pass two (nil when a Sink is set)
	outOffsets []uint32
	outNbrs    []uint32
	outLbls    []uint8
}

// record is one parsed input line.
type record struct {
	srcID, srcLabel, dstID, dstLabel, edgeLabel string
}

// parseLine splits a data line into its five fields. The last field may
// contain commas. Returns false for malformed lines.
func parseLine(line string) (record, bool) {
	fields := strings.SplitN(line, ",", 5)
	if len(fields) < 5 {
		return record{}, false
	}
	return record{
		srcID:     fields[0],
		srcLabel:  fields[1],
		dstID:     fields[2],
		dstLabel:  fields[3],
		edgeLabel: fields[4],
	}, true
}

// scan runs fn over every data line of the input, skipping the header
// and counting malformed lines.
func (imp *importer) scan(path string, fn func(rec record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo == 1 {
			continue // header
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		rec, valid := parseLine(line)
		if !valid {
			imp.skipped++
			log.Warn("skipping malformed line %d: %q", lineNo, line)
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
		if lineNo%(1<<20) == 0 {
			if err := imp.checkWatermark(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// checkWatermark compares the resident heap against the configured
// ceiling. With a sink, crossing the watermark flushes builders; without
// one it is fatal.
func (imp *importer) checkWatermark() error {
	if imp.opts.MaxMemBytes == 0 {
		return nil
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.HeapAlloc <= imp.opts.MaxMemBytes {
		return nil
	}
	if imp.sink != nil {
		log.Info("memory watermark at %s, flushing block builders", humanize.Bytes(ms.HeapAlloc))
		if err := imp.sink.FlushHot(); err != nil {
			return fmt.Errorf("flushing block builders: %w", err)
		}
		runtime.GC()
		return nil
	}
	return fmt.Errorf("%w: heap %s over limit %s", ErrMemoryLimit,
		humanize.Bytes(ms.HeapAlloc), humanize.Bytes(imp.opts.MaxMemBytes))
}

// passOne registers external ids and interns labels.
func (imp *importer) passOne(path string) error {
	imp.skipped = 0
	return imp.scan(path, func(rec record) error {
		srcLbl, err := imp.nodeLabels.Intern(rec.srcLabel)
		if err != nil {
			return err
		}
		dstLbl, err := imp.nodeLabels.Intern(rec.dstLabel)
		if err != nil {
			return err
		}
		if _, err := imp.edgeLabels.Intern(rec.edgeLabel); err != nil {
			return err
		}

		src := imp.ids.Add(rec.srcID)
		if int(src) == len(imp.nodeLabelIDs) {
			imp.nodeLabelIDs = append(imp.nodeLabelIDs, srcLbl)
		}
		dst := imp.ids.Add(rec.dstID)
		if int(dst) == len(imp.nodeLabelIDs) {
			imp.nodeLabelIDs = append(imp.nodeLabelIDs, dstLbl)
		}
		return nil
	})
}

// passTwo resolves every record and builds the forward CSR (or feeds
// the sink).
func (imp *importer) passTwo(path string) error {
	n := imp.ids.Len()

	if imp.sink != nil {
		imp.skipped = 0
		err := imp.scan(path, func(rec record) error {
			src, dst, lbl, err := imp.resolve(rec)
			if err != nil {
				return err
			}
			imp.numEdges++
			return imp.sink.AppendEdge(src, dst, lbl)
		})
		if err != nil {
			return err
		}
		return imp.sink.Finalize(uint64(n))
	}

	// Collect resolved edges, then count, prefix-sum and scatter.
	var srcs, dsts []uint32
	var lbls []uint8
	imp.skipped = 0
	err := imp.scan(path, func(rec record) error {
		src, dst, lbl, err := imp.resolve(rec)
		if err != nil {
			return err
		}
		srcs = append(srcs, src)
		dsts = append(dsts, dst)
		lbls = append(lbls, lbl)
		return nil
	})
	if err != nil {
		return err
	}
	imp.numEdges = uint64(len(srcs))

	offsets := make([]uint32, n+1)
	for _, s := range srcs {
		offsets[s+1]++
	}
	for i := 1; i <= n; i++ {
		offsets[i] += offsets[i-1]
	}

	nbrs := make([]uint32, len(srcs))
	elbls := make([]uint8, len(srcs))
	cursor := make([]uint32, n)
	for i, s := range srcs {
		pos := offsets[s] + cursor[s]
		nbrs[pos] = dsts[i]
		elbls[pos] = lbls[i]
		cursor[s]++
	}

	if imp.opts.SortAdjacency {
		sortAdjacency(offsets, nbrs, elbls)
	}

	imp.outOffsets = offsets
	imp.outNbrs = nbrs
	imp.outLbls = elbls
	return nil
}

// resolve maps a record's fields to internal ids. Pass one registered
// everything, so a miss here means the input changed between passes.
func (imp *importer) resolve(rec record) (src, dst uint32, label uint8, err error) {
	src, ok := imp.ids.Get(rec.srcID)
	if !ok {
		return 0, 0, 0, fmt.Errorf("ingest: unknown source id %q in pass two", rec.srcID)
	}
	dst, ok = imp.ids.Get(rec.dstID)
	if !ok {
		return 0, 0, 0, fmt.Errorf("ingest: unknown destination id %q in pass two", rec.dstID)
	}
	label, ok = imp.edgeLabels.ID(rec.edgeLabel)
	if !ok {
		return 0, 0, 0, fmt.Errorf("ingest: unknown edge label %q in pass two", rec.edgeLabel)
	}
	return src, dst, label, nil
}

// sortAdjacency orders each adjacency slice by destination id, keeping
// the parallel label array in step.
func sortAdjacency(offsets, nbrs []uint32, lbls []uint8) {
	for u := 0; u+1 < len(offsets); u++ {
		lo, hi := offsets[u], offsets[u+1]
		slice := adjSlice{nbrs: nbrs[lo:hi], lbls: lbls[lo:hi]}
		sort.Stable(slice)
	}
}

type adjSlice struct {
	nbrs []uint32
	lbls []uint8
}

func (a adjSlice) Len() int           { return len(a.nbrs) }
func (a adjSlice) Less(i, j int) bool { return a.nbrs[i] < a.nbrs[j] }
func (a adjSlice) Swap(i, j int) {
	a.nbrs[i], a.nbrs[j] = a.nbrs[j], a.nbrs[i]
	a.lbls[i], a.lbls[j] = a.lbls[j], a.lbls[i]
}

// publish renames the staged directory onto the target, replacing any
// previous artifact.
func publish(stage, dataDir string) error {
	if err := os.RemoveAll(dataDir); err != nil {
		return fmt.Errorf("removing previous artifact: %w", err)
	}
	if err := os.Rename(stage, dataDir); err != nil {
		return fmt.Errorf("publishing artifact: %w", err)
	}
	return nil
}
