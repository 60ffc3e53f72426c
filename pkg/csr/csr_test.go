package csr_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/munindb/pkg/csr"
	"github.com/orneryd/munindb/pkg/ingest"
)

// importCSV writes an edge list and imports it into a fresh artifact
// directory.
func importCSV(t *testing.T, lines string) string {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "edges.csv")
	require.NoError(t, os.WriteFile(input, []byte(lines), 0644))

	dataDir := filepath.Join(dir, "graph")
	_, err := ingest.Import(input, dataDir, ingest.Options{})
	require.NoError(t, err)
	return dataDir
}

const triangleCSV = `src_id,src_label,dst_id,dst_label,edge_label
A,Person,B,Person,knows
B,Person,C,Person,knows
C,Person,A,Person,knows
`

func TestLoadTriangle(t *testing.T) {
	store, err := csr.Load(importCSV(t, triangleCSV))
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, uint64(3), store.NumNodes())
	assert.Equal(t, uint64(3), store.NumEdges())

	// Internal ids follow first occurrence: A=0, B=1, C=2.
	out, err := store.OutEdges(0)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, out.Neighbors)
	assert.Equal(t, []uint8{0}, out.Labels)

	in, err := store.InEdges(0)
	require.NoError(t, err)
	assert.Equal(t, []uint32{2}, in.Neighbors)

	assert.Equal(t, 1, store.OutDegree(2))
	assert.Equal(t, 1, store.InDegree(2))
	assert.Equal(t, uint8(0), store.NodeLabel(1))
}

func TestLoadEmptyGraph(t *testing.T) {
	dataDir := importCSV(t, "src_id,src_label,dst_id,dst_label,edge_label\n")

	// Offset files of an empty graph hold the single zero entry.
	for _, name := range []string{csr.OutOffsetsFile, csr.InOffsetsFile} {
		st, err := os.Stat(filepath.Join(dataDir, name))
		require.NoError(t, err)
		assert.Equal(t, int64(4), st.Size(), name)
	}

	store, err := csr.Load(dataDir)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, uint64(0), store.NumNodes())
	assert.Equal(t, uint64(0), store.NumEdges())

	_, err = store.OutEdges(0)
	assert.Error(t, err)
}

func TestOutOfRangeNode(t *testing.T) {
	store, err := csr.Load(importCSV(t, triangleCSV))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.OutEdges(3)
	assert.Error(t, err)
	_, err = store.InEdges(1000)
	assert.Error(t, err)
}

func TestLoadRejectsSizeMismatch(t *testing.T) {
	dataDir := importCSV(t, triangleCSV)

	// Truncate the neighbor file behind the meta record's back.
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, csr.OutNeighborsFile), make([]byte, 4), 0644))

	_, err := csr.Load(dataDir)
	assert.ErrorIs(t, err, csr.ErrCorruptArtifact)
}

func TestLoadRejectsNonMonotoneOffsets(t *testing.T) {
	dataDir := importCSV(t, triangleCSV)

	// offsets [0, 2, 1, 3] violate monotonicity.
	bad := []byte{0, 0, 0, 0, 2, 0, 0, 0, 1, 0, 0, 0, 3, 0, 0, 0}
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, csr.OutOffsetsFile), bad, 0644))

	_, err := csr.Load(dataDir)
	assert.ErrorIs(t, err, csr.ErrCorruptArtifact)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	dataDir := importCSV(t, triangleCSV)
	require.NoError(t, os.Remove(filepath.Join(dataDir, csr.InEdgeLabelsFile)))

	_, err := csr.Load(dataDir)
	assert.Error(t, err)
}

func TestSelfLoopAppearsInBothDirections(t *testing.T) {
	store, err := csr.Load(importCSV(t, "src_id,src_label,dst_id,dst_label,edge_label\nA,Person,A,Person,self\n"))
	require.NoError(t, err)
	defer store.Close()

	out, err := store.OutEdges(0)
	require.NoError(t, err)
	in, err := store.InEdges(0)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0}, out.Neighbors)
	assert.Equal(t, []uint32{0}, in.Neighbors)
}
