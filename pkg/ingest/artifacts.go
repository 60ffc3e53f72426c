package ingest

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/orneryd/munindb/pkg/csr"
)

// writeArtifacts lays the staged artifact directory out. The adjacency
// files are omitted when a sink owns edge storage.
func (imp *importer) writeArtifacts(stage string) error {
	n := uint64(imp.ids.Len())

	if err := csr.WriteMeta(filepath.Join(stage, csr.MetaFile), n, imp.numEdges); err != nil {
		return err
	}
	if err := imp.ids.WriteTo(stage); err != nil {
		return err
	}
	if err := imp.nodeLabels.WriteTo(filepath.Join(stage, csr.NodeLabelStrings)); err != nil {
		return err
	}
	if err := imp.edgeLabels.WriteTo(filepath.Join(stage, csr.EdgeLabelStrings)); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(stage, csr.NodeLabelsFile), imp.nodeLabelIDs, 0644); err != nil {
		return fmt.Errorf("writing node labels: %w", err)
	}

	if imp.sink != nil {
		return nil
	}

	inOffsets, inNbrs, inLbls := Transpose(imp.ids.Len(), imp.outOffsets, imp.outNbrs, imp.outLbls)

	files := []struct {
		name string
		data []byte
	}{
		{csr.OutOffsetsFile, uint32Bytes(imp.outOffsets)},
		{csr.OutNeighborsFile, uint32Bytes(imp.outNbrs)},
		{csr.OutEdgeLabelsFile, imp.outLbls},
		{csr.InOffsetsFile, uint32Bytes(inOffsets)},
		{csr.InNeighborsFile, uint32Bytes(inNbrs)},
		{csr.InEdgeLabelsFile, inLbls},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(stage, f.name), f.data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", f.name, err)
		}
	}
	return nil
}

// uint32Bytes serializes a uint32 slice little-endian.
func uint32Bytes(vals []uint32) []byte {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[4*i:], v)
	}
	return buf
}
