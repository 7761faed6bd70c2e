package bvals

import (
	"github.com/notargets/halo/comm"
	"github.com/notargets/halo/types"
)

// BoundaryBuffer holds one direction slot for every block of a pack. Data is
// laid out (block, variable, cell) with cells flattened i fastest over Index.
type BoundaryBuffer struct {
	Index     BufferIndices
	Nmb, Nvar int
	Nsize     int // Cells in Index
	Data      []float64
	BcommStat []types.BoundaryCommStatus // Per block, same rank transfers
	CommReq   []comm.Request             // Per block, cross rank transfers
}

func (bb *BoundaryBuffer) InitIndices(nmb, nvar int, index BufferIndices) {
	bb.Index = index
	bb.Nmb, bb.Nvar = nmb, nvar
	bb.Nsize = index.Size()
	bb.Data = make([]float64, nmb*nvar*bb.Nsize)
	bb.BcommStat = make([]types.BoundaryCommStatus, nmb)
	bb.CommReq = make([]comm.Request, nmb)
}

// BlockData is the payload of block m, all variables. It is what travels in a
// single transfer.
func (bb *BoundaryBuffer) BlockData(m int) []float64 {
	size := bb.Nvar * bb.Nsize
	return bb.Data[m*size : (m+1)*size]
}

// VarData is the payload of block m, variable v
func (bb *BoundaryBuffer) VarData(m, v int) []float64 {
	off := bb.Nsize * (v + bb.Nvar*m)
	return bb.Data[off : off+bb.Nsize]
}
