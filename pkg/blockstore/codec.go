package blockstore

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"
)

// Encoded block layout:
//
//	header (uncompressed): id, width, nOut, nIn  — 4 x uint32 LE
//	offsets (uncompressed): OffsetsOut, OffsetsIn — 2 x (width+1) x uint32 LE
//	body (snappy): per-slice delta-varint neighbors + raw labels,
//	              forward direction then reverse
//
// The header and offsets stay uncompressed so a reader can locate a
// slice without decoding the body.

const headerSize = 16

// ErrCorruptBlock indicates an encoded block that fails to decode.
var ErrCorruptBlock = fmt.Errorf("blockstore: corrupt block")

// AppendDeltas varint-encodes a neighbor sequence as signed deltas
// (little-endian 7-bit groups) and appends it to buf. The first value
// is a delta from zero.
func AppendDeltas(buf []byte, vals []uint32) []byte {
	var tmp [binary.MaxVarintLen64]byte
	prev := int64(0)
	for _, v := range vals {
		n := binary.PutVarint(tmp[:], int64(v)-prev)
		buf = append(buf, tmp[:n]...)
		prev = int64(v)
	}
	return buf
}

// ReadDeltas decodes n delta-varint values from buf, returning the
// values and the remaining bytes.
func ReadDeltas(buf []byte, n int) ([]uint32, []byte, error) {
	vals := make([]uint32, n)
	prev := int64(0)
	for i := 0; i < n; i++ {
		d, size := binary.Varint(buf)
		if size <= 0 {
			return nil, nil, fmt.Errorf("%w: truncated varint at value %d", ErrCorruptBlock, i)
		}
		prev += d
		if prev < 0 || prev > int64(^uint32(0)) {
			return nil, nil, fmt.Errorf("%w: neighbor %d out of uint32 range", ErrCorruptBlock, prev)
		}
		vals[i] = uint32(prev)
		buf = buf[size:]
	}
	return vals, buf, nil
}

// EncodeBlock serializes a block to its on-disk form.
func EncodeBlock(b *Block) []byte {
	nOut, nIn := len(b.NbrOut), len(b.NbrIn)

	body := make([]byte, 0, nOut+nIn)
	for u := uint32(0); u < b.Width; u++ {
		body = AppendDeltas(body, b.NbrOut[b.OffsetsOut[u]:b.OffsetsOut[u+1]])
	}
	body = append(body, b.LblOut...)
	for u := uint32(0); u < b.Width; u++ {
		body = AppendDeltas(body, b.NbrIn[b.OffsetsIn[u]:b.OffsetsIn[u+1]])
	}
	body = append(body, b.LblIn...)

	offsetsBytes := 4 * (int(b.Width) + 1) * 2
	out := make([]byte, headerSize+offsetsBytes, headerSize+offsetsBytes+snappy.MaxEncodedLen(len(body)))
	binary.LittleEndian.PutUint32(out[0:], b.ID)
	binary.LittleEndian.PutUint32(out[4:], b.Width)
	binary.LittleEndian.PutUint32(out[8:], uint32(nOut))
	binary.LittleEndian.PutUint32(out[12:], uint32(nIn))
	pos := headerSize
	for _, off := range b.OffsetsOut {
		binary.LittleEndian.PutUint32(out[pos:], off)
		pos += 4
	}
	for _, off := range b.OffsetsIn {
		binary.LittleEndian.PutUint32(out[pos:], off)
		pos += 4
	}
	return append(out, snappy.Encode(nil, body)...)
}

// DecodeBlock reconstructs a block from its on-disk form.
func DecodeBlock(data []byte) (*Block, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes, want at least %d", ErrCorruptBlock, len(data), headerSize)
	}
	id := binary.LittleEndian.Uint32(data[0:])
	width := binary.LittleEndian.Uint32(data[4:])
	nOut := int(binary.LittleEndian.Uint32(data[8:]))
	nIn := int(binary.LittleEndian.Uint32(data[12:]))

	offsetsBytes := 4 * (int(width) + 1) * 2
	if len(data) < headerSize+offsetsBytes {
		return nil, fmt.Errorf("%w: missing offset arrays", ErrCorruptBlock)
	}

	b := &Block{
		ID:         id,
		Width:      width,
		OffsetsOut: make([]uint32, width+1),
		OffsetsIn:  make([]uint32, width+1),
	}
	pos := headerSize
	for i := range b.OffsetsOut {
		b.OffsetsOut[i] = binary.LittleEndian.Uint32(data[pos:])
		pos += 4
	}
	for i := range b.OffsetsIn {
		b.OffsetsIn[i] = binary.LittleEndian.Uint32(data[pos:])
		pos += 4
	}
	if int(b.OffsetsOut[width]) != nOut || int(b.OffsetsIn[width]) != nIn {
		return nil, fmt.Errorf("%w: offsets disagree with edge counts", ErrCorruptBlock)
	}

	body, err := snappy.Decode(nil, data[pos:])
	if err != nil {
		return nil, fmt.Errorf("%w: snappy: %v", ErrCorruptBlock, err)
	}

	b.NbrOut = make([]uint32, 0, nOut)
	for u := uint32(0); u < width; u++ {
		n := int(b.OffsetsOut[u+1] - b.OffsetsOut[u])
		vals, rest, err := ReadDeltas(body, n)
		if err != nil {
			return nil, err
		}
		b.NbrOut = append(b.NbrOut, vals...)
		body = rest
	}
	if len(body) < nOut {
		return nil, fmt.Errorf("%w: truncated forward labels", ErrCorruptBlock)
	}
	b.LblOut = append(make([]uint8, 0, nOut), body[:nOut]...)
	body = body[nOut:]

	b.NbrIn = make([]uint32, 0, nIn)
	for u := uint32(0); u < width; u++ {
		n := int(b.OffsetsIn[u+1] - b.OffsetsIn[u])
		vals, rest, err := ReadDeltas(body, n)
		if err != nil {
			return nil, err
		}
		b.NbrIn = append(b.NbrIn, vals...)
		body = rest
	}
	if len(body) != nIn {
		return nil, fmt.Errorf("%w: truncated reverse labels", ErrCorruptBlock)
	}
	b.LblIn = append(make([]uint8, 0, nIn), body...)

	return b, nil
}
