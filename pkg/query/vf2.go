package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/orneryd/munindb/pkg/csr"
)

// PatternEdge is one directed, labeled edge of a pattern graph. From
// and To index into the pattern's node list.
type PatternEdge struct {
	From  int
	To    int
	Label string
}

// Pattern is a small labeled graph to count embeddings of. Node ids are
// positions in NodeLabels.
type Pattern struct {
	NodeLabels []string
	Edges      []PatternEdge
}

// Validate checks the pattern's internal consistency.
func (p *Pattern) Validate() error {
	if len(p.NodeLabels) == 0 {
		return fmt.Errorf("query: empty pattern")
	}
	for i, e := range p.Edges {
		if e.From < 0 || e.From >= len(p.NodeLabels) || e.To < 0 || e.To >= len(p.NodeLabels) {
			return fmt.Errorf("query: pattern edge %d references node outside [0, %d)", i, len(p.NodeLabels))
		}
	}
	return nil
}

// resolvedEdge is a pattern edge with its label resolved to a host
// label id.
type resolvedEdge struct {
	from, to int
	label    uint8
}

// vf2State carries one backtracking search. Pattern vertices are
// assigned in ascending index order; host candidates are tried in
// ascending internal id order, so counts are deterministic.
type vf2State struct {
	engine    *Engine
	nodeLbls  []uint8        // pattern node label ids
	edgesAt   [][]resolvedEdge // edges incident to vertex i whose other endpoint is <= i (self-loops included)
	adjBefore []int          // a mapped pattern neighbor of i (or -1)
	adjDir    []bool         // true: edge i->adjBefore[i]; false: adjBefore[i]->i
	mapping   []uint32       // pattern -> host, valid up to depth
	count     uint64
}

// Subgraph counts the injective, label-preserving embeddings of the
// pattern into the host graph (VF2-style backtracking). A pattern
// label absent from the host's label tables can match nothing, so the
// count is 0. The context is polled during the search; cancellation
// aborts with the context's error.
func (e *Engine) Subgraph(ctx context.Context, p *Pattern) (uint64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	np := len(p.NodeLabels)
	st := &vf2State{
		engine:    e,
		nodeLbls:  make([]uint8, np),
		edgesAt:   make([][]resolvedEdge, np),
		adjBefore: make([]int, np),
		adjDir:    make([]bool, np),
		mapping:   make([]uint32, np),
	}

	for i, name := range p.NodeLabels {
		id, ok := e.nodeLabels.ID(name)
		if !ok {
			return 0, nil
		}
		st.nodeLbls[i] = id
	}

	for i := range st.adjBefore {
		st.adjBefore[i] = -1
	}
	for _, pe := range p.Edges {
		lbl, ok := e.edgeLabels.ID(pe.Label)
		if !ok {
			return 0, nil
		}
		re := resolvedEdge{from: pe.From, to: pe.To, label: lbl}
		// Attach the edge to its later endpoint: by the time that
		// vertex is assigned, the other endpoint is already mapped.
		later, earlier := pe.From, pe.To
		if pe.To > pe.From {
			later, earlier = pe.To, pe.From
		}
		st.edgesAt[later] = append(st.edgesAt[later], re)
		if earlier < later && st.adjBefore[later] == -1 {
			st.adjBefore[later] = earlier
			st.adjDir[later] = re.from == later
		}
	}

	if err := st.backtrack(ctx, 0); err != nil {
		return 0, err
	}
	return st.count, nil
}

// backtrack assigns pattern vertex depth to every feasible host vertex.
func (st *vf2State) backtrack(ctx context.Context, depth int) error {
	if depth == len(st.mapping) {
		st.count++
		return nil
	}

	candidates, err := st.candidates(depth)
	if err != nil {
		return err
	}
	for _, g := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := st.feasible(depth, g)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		st.mapping[depth] = g
		if err := st.backtrack(ctx, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// candidates enumerates host vertices for pattern vertex p in ascending
// id order. When p has a pattern edge to an already-mapped vertex, only
// the mapped partner's adjacency needs to be considered; otherwise the
// whole host vertex range is scanned.
func (st *vf2State) candidates(p int) ([]uint32, error) {
	if partner := st.adjBefore[p]; partner >= 0 {
		host := st.mapping[partner]
		// Pattern edge p -> partner means candidates carry an out-edge
		// to the partner's host, i.e. they are its in-neighbors.
		var view csr.EdgeView
		var err error
		if st.adjDir[p] {
			view, err = st.engine.graph.InEdges(host)
		} else {
			view, err = st.engine.graph.OutEdges(host)
		}
		if err != nil {
			return nil, err
		}
		cands := append([]uint32(nil), view.Neighbors...)
		sort.Slice(cands, func(i, j int) bool { return cands[i] < cands[j] })
		// dedup: multi-edges repeat neighbors
		out := cands[:0]
		for i, v := range cands {
			if i == 0 || v != out[len(out)-1] {
				out = append(out, v)
			}
		}
		return out, nil
	}

	n := st.engine.graph.NumNodes()
	cands := make([]uint32, 0, n)
	for g := uint64(0); g < n; g++ {
		cands = append(cands, uint32(g))
	}
	return cands, nil
}

// feasible checks whether mapping pattern vertex p to host vertex g
// preserves node labels, injectivity, and every pattern edge between p
// and an already-mapped vertex.
func (st *vf2State) feasible(p int, g uint32) (bool, error) {
	if st.engine.graph.NodeLabel(g) != st.nodeLbls[p] {
		return false, nil
	}
	for i := 0; i < p; i++ {
		if st.mapping[i] == g {
			return false, nil
		}
	}
	for _, re := range st.edgesAt[p] {
		var from, to uint32
		switch {
		case re.from == p && re.to == p:
			from, to = g, g
		case re.from == p:
			from, to = g, st.mapping[re.to]
		default:
			from, to = st.mapping[re.from], g
		}
		ok, err := st.hasEdge(from, to, re.label)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// hasEdge reports whether the host holds a directed edge from -> to
// with the given label.
func (st *vf2State) hasEdge(from, to uint32, label uint8) (bool, error) {
	view, err := st.engine.graph.OutEdges(from)
	if err != nil {
		return false, err
	}
	for i, v := range view.Neighbors {
		if v == to && view.Labels[i] == label {
			return true, nil
		}
	}
	return false, nil
}
