package idmap

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderAssignsDenseIDs(t *testing.T) {
	b := NewBuilder()
	assert.Equal(t, uint32(0), b.Add("alpha"))
	assert.Equal(t, uint32(1), b.Add("beta"))
	assert.Equal(t, uint32(0), b.Add("alpha"), "repeated id keeps first assignment")
	assert.Equal(t, uint32(2), b.Add("gamma"))
	assert.Equal(t, 3, b.Len())

	id, ok := b.Get("beta")
	require.True(t, ok)
	assert.Equal(t, uint32(1), id)

	_, ok = b.Get("missing")
	assert.False(t, ok)
}

func TestWriteAndLookupRoundTrip(t *testing.T) {
	dir := t.TempDir()

	b := NewBuilder()
	for i := 0; i < 1000; i++ {
		b.Add(fmt.Sprintf("n%d", i))
	}
	require.NoError(t, b.WriteTo(dir))

	m, err := Load(dir, 1000)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 1000, m.Size())
	for i := 0; i < 1000; i++ {
		id, ok := m.Lookup(fmt.Sprintf("n%d", i))
		require.True(t, ok, "n%d must resolve", i)
		assert.Equal(t, uint32(i), id)
	}

	_, ok := m.Lookup("n1000")
	assert.False(t, ok)
	_, ok = m.Lookup("")
	assert.False(t, ok)
}

func TestLoadEmptyRegistry(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewBuilder().WriteTo(dir))

	m, err := Load(dir, 0)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 0, m.Size())
	_, ok := m.Lookup("anything")
	assert.False(t, ok)
}

func TestLoadRejectsSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder()
	b.Add("a")
	b.Add("b")
	require.NoError(t, b.WriteTo(dir))

	_, err := Load(dir, 3)
	assert.ErrorIs(t, err, ErrCorruptArtifact)
}

func TestLoadRejectsTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder()
	b.Add("a")
	require.NoError(t, b.WriteTo(dir))

	// Chop the hash file mid-element.
	path := filepath.Join(dir, HashesFile)
	require.NoError(t, os.WriteFile(path, make([]byte, 5), 0644))

	_, err := Load(dir, 1)
	assert.ErrorIs(t, err, ErrCorruptArtifact)
}

func TestHashIsStable(t *testing.T) {
	// Build-time and lookup-time hashing must agree on the same bytes.
	assert.Equal(t, HashExternalID("node-42"), HashExternalID("node-42"))
	assert.NotEqual(t, HashExternalID("node-42"), HashExternalID("node-43"))
}
