package query_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/munindb/pkg/csr"
	"github.com/orneryd/munindb/pkg/idmap"
	"github.com/orneryd/munindb/pkg/ingest"
	"github.com/orneryd/munindb/pkg/query"
)

// newEngine imports an edge list and opens a query engine over it.
func newEngine(t *testing.T, lines string) *query.Engine {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "edges.csv")
	require.NoError(t, os.WriteFile(input, []byte(lines), 0644))

	dataDir := filepath.Join(dir, "graph")
	_, err := ingest.Import(input, dataDir, ingest.Options{SortAdjacency: true})
	require.NoError(t, err)

	store, err := csr.Load(dataDir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	n, _, err := csr.ReadMeta(filepath.Join(dataDir, csr.MetaFile))
	require.NoError(t, err)
	ids, err := idmap.Load(dataDir, n)
	require.NoError(t, err)
	t.Cleanup(func() { ids.Close() })

	nodeLabels, err := csr.LoadLabelTable(filepath.Join(dataDir, csr.NodeLabelStrings))
	require.NoError(t, err)
	edgeLabels, err := csr.LoadLabelTable(filepath.Join(dataDir, csr.EdgeLabelStrings))
	require.NoError(t, err)

	return query.New(store, ids, nodeLabels, edgeLabels)
}

const header = "src_id,src_label,dst_id,dst_label,edge_label\n"

const triangle = header +
	"A,Person,B,Person,knows\n" +
	"B,Person,C,Person,knows\n" +
	"C,Person,A,Person,knows\n"

const twoEdges = header +
	"A,Person,B,Person,knows\n" +
	"C,Person,D,Person,knows\n"

const star = header +
	"C,Hub,L1,Leaf,spoke\n" +
	"C,Hub,L2,Leaf,spoke\n" +
	"C,Hub,L3,Leaf,spoke\n" +
	"C,Hub,L4,Leaf,spoke\n"

func TestTriangleScenario(t *testing.T) {
	e := newEngine(t, triangle)
	ctx := context.Background()

	count, err := e.KHop(ctx, "A", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count, "khop(A,1)")

	count, err = e.KHop(ctx, "A", 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count, "khop(A,2)")

	count, err = e.Reachable(ctx, "A", "C")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count, "reachable(A,C)")

	count, err = e.Reachable(ctx, "C", "B")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count, "reachable(C,B)")

	count, err = e.ConnectedComponents(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestTwoDisconnectedEdgesScenario(t *testing.T) {
	e := newEngine(t, twoEdges)
	ctx := context.Background()

	count, err := e.ConnectedComponents(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	count, err = e.Reachable(ctx, "A", "D")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)

	count, err = e.CommonNeighbors(ctx, []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestStarScenario(t *testing.T) {
	e := newEngine(t, star)
	ctx := context.Background()

	count, err := e.KHop(ctx, "C", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), count, "khop(C,1)")

	count, err = e.KHop(ctx, "L1", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count, "khop(L1,1)")

	count, err = e.CommonNeighbors(ctx, []string{"L1", "L2"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count, "the hub is the only common neighbor")
}

func TestKHopZeroAndUnknown(t *testing.T) {
	e := newEngine(t, triangle)
	ctx := context.Background()

	count, err := e.KHop(ctx, "A", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	count, err = e.KHop(ctx, "nope", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)

	count, err = e.KHop(ctx, "nope", 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)

	_, err = e.KHop(ctx, "A", -1)
	assert.Error(t, err)
}

func TestKHopEqualsComponentForLargeK(t *testing.T) {
	e := newEngine(t, twoEdges)
	ctx := context.Background()

	// Past the diameter, the undirected k-hop set is the weak
	// component of the start node.
	count, err := e.KHop(ctx, "A", 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestCommonNeighborsSingleNode(t *testing.T) {
	e := newEngine(t, star)
	ctx := context.Background()

	// A single node's "common" neighborhood is its union neighborhood.
	count, err := e.CommonNeighbors(ctx, []string{"C"})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), count)

	count, err = e.CommonNeighbors(ctx, []string{"C", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)

	count, err = e.CommonNeighbors(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestReachabilityIsDirected(t *testing.T) {
	e := newEngine(t, twoEdges)
	ctx := context.Background()

	count, err := e.Reachable(ctx, "A", "B")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	// The reverse direction has no forward path.
	count, err = e.Reachable(ctx, "B", "A")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)

	count, err = e.Reachable(ctx, "A", "A")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count, "a node reaches itself")

	count, err = e.Reachable(ctx, "ghost", "A")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestConnectedComponentsEmptyGraph(t *testing.T) {
	e := newEngine(t, header)
	count, err := e.ConnectedComponents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestSelfLoopKHop(t *testing.T) {
	e := newEngine(t, header+"A,P,A,P,self\n")
	count, err := e.KHop(context.Background(), "A", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestDegreeSummary(t *testing.T) {
	e := newEngine(t, star)

	maxOut, maxIn, err := e.DegreeSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, maxOut, "the hub fans out to four leaves")
	assert.Equal(t, 1, maxIn)

	assert.Equal(t, 2, e.NodeLabelCount())
	assert.Equal(t, 1, e.EdgeLabelCount())
}

func TestKHopCanceledContext(t *testing.T) {
	e := newEngine(t, triangle)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.KHop(ctx, "A", 2)
	assert.ErrorIs(t, err, context.Canceled)
}
