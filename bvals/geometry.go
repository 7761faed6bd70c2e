package bvals

import (
	"fmt"

	"github.com/notargets/halo/mesh"
)

// BufferIndices are the inclusive loop bounds il, iu, jl, ju, kl, ku of the
// box a buffer slot packs from or unpacks into, in the block's local frame
type BufferIndices [6]int

func (bi BufferIndices) Ni() int { return bi[1] - bi[0] + 1 }
func (bi BufferIndices) Nj() int { return bi[3] - bi[2] + 1 }
func (bi BufferIndices) Nk() int { return bi[5] - bi[4] + 1 }

// Size is the number of cells in the box
func (bi BufferIndices) Size() int { return bi.Ni() * bi.Nj() * bi.Nk() }

func (bi BufferIndices) String() string {
	return fmt.Sprintf("[%d:%d, %d:%d, %d:%d]", bi[0], bi[1], bi[2], bi[3], bi[4], bi[5])
}

// axisBounds picks the bound pair along one axis. Send boxes are the Ng
// outermost interior cells on the side the neighbor sits, receive boxes are
// the Ng ghost cells just beyond them. A zero offset spans the interior.
func axisBounds(s, e, ng, offset int, send bool) (lo, hi int) {
	switch {
	case offset < 0 && send:
		return s, s + ng - 1
	case offset < 0:
		return s - ng, s - 1
	case offset > 0 && send:
		return e - ng + 1, e
	case offset > 0:
		return e + 1, e + ng
	}
	return s, e
}

func boxFor(indcs mesh.RegionIndcs, n int, send bool) (bi BufferIndices) {
	d := mesh.Directions[n]
	bi[0], bi[1] = axisBounds(indcs.Is, indcs.Ie, indcs.Ng, d[0], send)
	bi[2], bi[3] = axisBounds(indcs.Js, indcs.Je, indcs.Ng, d[1], send)
	bi[4], bi[5] = axisBounds(indcs.Ks, indcs.Ke, indcs.Ng, d[2], send)
	return
}

// SendIndices is the interior box packed for slot n
func SendIndices(indcs mesh.RegionIndcs, n int) BufferIndices { return boxFor(indcs, n, true) }

// RecvIndices is the ghost box unpacked for slot n
func RecvIndices(indcs mesh.RegionIndcs, n int) BufferIndices { return boxFor(indcs, n, false) }

// BufferIndexGeometry returns the send and receive boxes of every active slot,
// in slot order. Edge and corner boxes fall out of the per axis bounds of the
// faces they touch.
func BufferIndexGeometry(indcs mesh.RegionIndcs) (send, recv []BufferIndices, err error) {
	if err = indcs.Check(); err != nil {
		return
	}
	send = make([]BufferIndices, indcs.Nnghbr)
	recv = make([]BufferIndices, indcs.Nnghbr)
	for n := 0; n < indcs.Nnghbr; n++ {
		send[n] = SendIndices(indcs, n)
		recv[n] = RecvIndices(indcs, n)
	}
	return
}
