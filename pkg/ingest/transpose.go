package ingest

// Transpose derives the reverse CSR from a forward CSR. Every edge
// (u, v, l) at a forward position appears exactly once in the result
// with u as the stored neighbor of v.
//
// Runs in O(N + M) with one extra length-N cursor allocation: in-degrees
// are counted, prefix-summed into the reverse offsets, and the count
// array is reused as a per-destination write cursor while scattering.
func Transpose(numNodes int, outOffsets, outNbrs []uint32, outLbls []uint8) (inOffsets, inNbrs []uint32, inLbls []uint8) {
	m := len(outNbrs)

	degree := make([]uint32, numNodes)
	for _, v := range outNbrs {
		degree[v]++
	}

	inOffsets = make([]uint32, numNodes+1)
	for v := 0; v < numNodes; v++ {
		inOffsets[v+1] = inOffsets[v] + degree[v]
	}

	// Reuse degree as the scatter cursor.
	cursor := degree
	for v := range cursor {
		cursor[v] = 0
	}

	inNbrs = make([]uint32, m)
	inLbls = make([]uint8, m)
	for u := 0; u+1 < len(outOffsets); u++ {
		for i := outOffsets[u]; i < outOffsets[u+1]; i++ {
			v := outNbrs[i]
			pos := inOffsets[v] + cursor[v]
			inNbrs[pos] = uint32(u)
			inLbls[pos] = outLbls[i]
			cursor[v]++
		}
	}
	return inOffsets, inNbrs, inLbls
}
