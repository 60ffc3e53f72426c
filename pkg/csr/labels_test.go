package csr

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelTableInternsInOrder(t *testing.T) {
	tbl := NewLabelTable()

	id, err := tbl.Intern("Person")
	require.NoError(t, err)
	assert.Equal(t, uint8(0), id)

	id, err = tbl.Intern("Company")
	require.NoError(t, err)
	assert.Equal(t, uint8(1), id)

	id, err = tbl.Intern("Person")
	require.NoError(t, err)
	assert.Equal(t, uint8(0), id, "re-interning returns the existing id")

	s, ok := tbl.String(1)
	require.True(t, ok)
	assert.Equal(t, "Company", s)

	_, ok = tbl.String(9)
	assert.False(t, ok)
}

func TestLabelTableOverflow(t *testing.T) {
	tbl := NewLabelTable()
	for i := 0; i < MaxLabels; i++ {
		_, err := tbl.Intern(fmt.Sprintf("label-%d", i))
		require.NoError(t, err)
	}
	_, err := tbl.Intern("one-too-many")
	assert.ErrorIs(t, err, ErrLabelOverflow)

	// Existing labels still resolve after a failed intern.
	id, err := tbl.Intern("label-0")
	require.NoError(t, err)
	assert.Equal(t, uint8(0), id)
}

func TestLabelTableFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")

	tbl := NewLabelTable()
	for _, s := range []string{"knows", "works_at", "owns"} {
		_, err := tbl.Intern(s)
		require.NoError(t, err)
	}
	require.NoError(t, tbl.WriteTo(path))

	loaded, err := LoadLabelTable(path)
	require.NoError(t, err)
	require.Equal(t, 3, loaded.Len())
	for i, want := range []string{"knows", "works_at", "owns"} {
		s, ok := loaded.String(uint8(i))
		require.True(t, ok)
		assert.Equal(t, want, s)
	}
}
