// Package query implements the analytic query engine over an immutable
// CSR graph: k-hop neighborhood counts, common-neighbor counts, weakly
// connected components, directed reachability and subgraph-isomorphism
// counts.
//
// All operations take external node ids and resolve them through the
// identifier registry; unknown ids produce a zero result rather than an
// error. Queries are read-only and safe to run concurrently.
package query

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring"

	"github.com/orneryd/munindb/pkg/csr"
	"github.com/orneryd/munindb/pkg/idmap"
)

// Graph is the neighbor-access contract the engine runs over. Both the
// memory-mapped csr.Store and the block-partitioned blockstore.BlockCSR
// satisfy it. Accessors may fail on block-backed graphs when a cold
// block cannot be loaded.
type Graph interface {
	NumNodes() uint64
	NumEdges() uint64
	OutEdges(u uint32) (csr.EdgeView, error)
	InEdges(u uint32) (csr.EdgeView, error)
	NodeLabel(u uint32) uint8
}

// Engine answers analytic queries over one graph snapshot.
type Engine struct {
	graph      Graph
	ids        *idmap.Mapper
	nodeLabels *csr.LabelTable
	edgeLabels *csr.LabelTable
}

// New creates a query engine over a graph, its identifier registry and
// its label tables.
func New(g Graph, ids *idmap.Mapper, nodeLabels, edgeLabels *csr.LabelTable) *Engine {
	return &Engine{graph: g, ids: ids, nodeLabels: nodeLabels, edgeLabels: edgeLabels}
}

// NumNodes returns the node count of the underlying graph.
func (e *Engine) NumNodes() uint64 { return e.graph.NumNodes() }

// NumEdges returns the edge count of the underlying graph.
func (e *Engine) NumEdges() uint64 { return e.graph.NumEdges() }

// NodeLabelCount returns the number of distinct node labels.
func (e *Engine) NodeLabelCount() int { return e.nodeLabels.Len() }

// EdgeLabelCount returns the number of distinct edge labels.
func (e *Engine) EdgeLabelCount() int { return e.edgeLabels.Len() }

// DegreeSummary scans every node and reports the maximum forward and
// reverse degrees. Works over either backend; on the block store it
// faults each block in once.
func (e *Engine) DegreeSummary(ctx context.Context) (maxOut, maxIn int, err error) {
	n := e.graph.NumNodes()
	for u := uint64(0); u < n; u++ {
		if u%(1<<16) == 0 {
			if err := ctx.Err(); err != nil {
				return 0, 0, err
			}
		}
		out, err := e.graph.OutEdges(uint32(u))
		if err != nil {
			return 0, 0, err
		}
		if out.Len() > maxOut {
			maxOut = out.Len()
		}
		in, err := e.graph.InEdges(uint32(u))
		if err != nil {
			return 0, 0, err
		}
		if in.Len() > maxIn {
			maxIn = in.Len()
		}
	}
	return maxOut, maxIn, nil
}

// KHop counts the distinct nodes reachable from node in at most k
// edges, following both edge directions. k = 0 counts just the node
// itself; an unknown id counts 0.
func (e *Engine) KHop(ctx context.Context, node string, k int) (uint64, error) {
	if k < 0 {
		return 0, fmt.Errorf("query: negative hop count %d", k)
	}
	start, ok := e.ids.Lookup(node)
	if !ok {
		return 0, nil
	}

	visited := roaring.New()
	visited.Add(start)
	frontier := []uint32{start}

	for depth := 0; depth < k && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		var next []uint32
		for _, u := range frontier {
			if err := e.expandUndirected(u, visited, &next); err != nil {
				return 0, err
			}
		}
		frontier = next
	}
	return visited.GetCardinality(), nil
}

// expandUndirected adds unvisited out- and in-neighbors of u to the
// visited set and the next frontier.
func (e *Engine) expandUndirected(u uint32, visited *roaring.Bitmap, next *[]uint32) error {
	out, err := e.graph.OutEdges(u)
	if err != nil {
		return err
	}
	for _, v := range out.Neighbors {
		if visited.CheckedAdd(v) {
			*next = append(*next, v)
		}
	}
	in, err := e.graph.InEdges(u)
	if err != nil {
		return err
	}
	for _, v := range in.Neighbors {
		if visited.CheckedAdd(v) {
			*next = append(*next, v)
		}
	}
	return nil
}

// neighborhood returns the union of out- and in-neighbors of u as a
// bitmap.
func (e *Engine) neighborhood(u uint32) (*roaring.Bitmap, error) {
	bm := roaring.New()
	out, err := e.graph.OutEdges(u)
	if err != nil {
		return nil, err
	}
	bm.AddMany(out.Neighbors)
	in, err := e.graph.InEdges(u)
	if err != nil {
		return nil, err
	}
	bm.AddMany(in.Neighbors)
	return bm, nil
}

// CommonNeighbors counts the nodes adjacent (in either direction) to
// every listed node. A single node yields the size of its own union
// neighborhood; any unknown id yields 0.
func (e *Engine) CommonNeighbors(ctx context.Context, nodes []string) (uint64, error) {
	if len(nodes) == 0 {
		return 0, nil
	}
	var acc *roaring.Bitmap
	for _, name := range nodes {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		u, ok := e.ids.Lookup(name)
		if !ok {
			return 0, nil
		}
		nb, err := e.neighborhood(u)
		if err != nil {
			return 0, err
		}
		if acc == nil {
			acc = nb
		} else {
			acc.And(nb)
		}
		if acc.IsEmpty() {
			return 0, nil
		}
	}
	return acc.GetCardinality(), nil
}

// ConnectedComponents counts the weakly connected components of the
// full graph: one BFS over the union of both adjacency directions per
// still-unvisited node.
func (e *Engine) ConnectedComponents(ctx context.Context) (uint64, error) {
	n := e.graph.NumNodes()
	visited := roaring.New()
	var components uint64

	for u := uint64(0); u < n; u++ {
		if visited.Contains(uint32(u)) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		components++
		visited.Add(uint32(u))
		frontier := []uint32{uint32(u)}
		for len(frontier) > 0 {
			var next []uint32
			for _, v := range frontier {
				if err := e.expandUndirected(v, visited, &next); err != nil {
					return 0, err
				}
			}
			frontier = next
		}
	}
	return components, nil
}

// Reachable reports whether a directed path from src to dst exists,
// following forward edges only. Returns 1 when reachable, else 0.
// src reaches itself trivially.
func (e *Engine) Reachable(ctx context.Context, src, dst string) (uint64, error) {
	s, ok := e.ids.Lookup(src)
	if !ok {
		return 0, nil
	}
	d, ok := e.ids.Lookup(dst)
	if !ok {
		return 0, nil
	}
	if s == d {
		return 1, nil
	}

	visited := roaring.New()
	visited.Add(s)
	frontier := []uint32{s}
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		var next []uint32
		for _, u := range frontier {
			out, err := e.graph.OutEdges(u)
			if err != nil {
				return 0, err
			}
			for _, v := range out.Neighbors {
				if v == d {
					return 1, nil
				}
				if visited.CheckedAdd(v) {
					next = append(next, v)
				}
			}
		}
		frontier = next
	}
	return 0, nil
}
