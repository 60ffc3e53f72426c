package blockstore

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeltaVarintRoundTrip(t *testing.T) {
	cases := [][]uint32{
		nil,
		{0},
		{42},
		{1, 2, 3, 4, 5},
		{5, 4, 3, 2, 1}, // descending: negative deltas
		{0, math.MaxUint32, 0, math.MaxUint32},
		{7, 7, 7, 7},
	}
	for _, vals := range cases {
		buf := AppendDeltas(nil, vals)
		got, rest, err := ReadDeltas(buf, len(vals))
		require.NoError(t, err)
		assert.Empty(t, rest)
		if len(vals) == 0 {
			assert.Empty(t, got)
		} else {
			assert.Equal(t, vals, got)
		}
	}
}

func TestReadDeltasRejectsTruncation(t *testing.T) {
	buf := AppendDeltas(nil, []uint32{1, 2, 3})
	_, _, err := ReadDeltas(buf[:len(buf)-1], 3)
	assert.ErrorIs(t, err, ErrCorruptBlock)
}

// buildTestBlock assembles a small block by hand: width 4, a few edges
// in each direction.
func buildTestBlock(t *testing.T) *Block {
	t.Helper()
	buf := &blockBuffer{
		out: []rec{
			{local: 0, other: 1, label: 3},
			{local: 0, other: 9, label: 1},
			{local: 2, other: 0, label: 0},
		},
		in: []rec{
			{local: 1, other: 0, label: 3},
			{local: 3, other: 100, label: 2},
		},
	}
	return buildBlock(7, 4, buf)
}

func TestBlockEncodeDecodeRoundTrip(t *testing.T) {
	b := buildTestBlock(t)

	decoded, err := DecodeBlock(EncodeBlock(b))
	require.NoError(t, err)

	assert.Equal(t, b.ID, decoded.ID)
	assert.Equal(t, b.Width, decoded.Width)
	assert.Equal(t, b.OffsetsOut, decoded.OffsetsOut)
	assert.Equal(t, b.OffsetsIn, decoded.OffsetsIn)
	assert.Equal(t, b.NbrOut, decoded.NbrOut)
	assert.Equal(t, b.LblOut, decoded.LblOut)
	assert.Equal(t, b.NbrIn, decoded.NbrIn)
	assert.Equal(t, b.LblIn, decoded.LblIn)
}

func TestBlockEncodeDecodeEmpty(t *testing.T) {
	b := NewBlock(0, 16)
	decoded, err := DecodeBlock(EncodeBlock(b))
	require.NoError(t, err)
	assert.Empty(t, decoded.NbrOut)
	assert.Empty(t, decoded.NbrIn)
	assert.Equal(t, b.OffsetsOut, decoded.OffsetsOut)
}

func TestDecodeBlockRejectsGarbage(t *testing.T) {
	_, err := DecodeBlock([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCorruptBlock)

	b := buildTestBlock(t)
	data := EncodeBlock(b)
	_, err = DecodeBlock(data[:len(data)-4])
	assert.Error(t, err)
}

func TestBuildBlockSortsSlices(t *testing.T) {
	b := buildTestBlock(t)

	// local node 0 has out-neighbors 1 and 9, sorted ascending.
	view := b.OutView(0)
	assert.Equal(t, []uint32{1, 9}, view.Neighbors)
	assert.Equal(t, []uint8{3, 1}, view.Labels)

	assert.Equal(t, 0, b.OutView(1).Len())
	assert.Equal(t, []uint32{100}, b.InView(3).Neighbors)
}
