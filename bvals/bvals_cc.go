// Package bvals fills the ghost cells of cell centered variables from the
// interiors of neighboring mesh blocks
package bvals

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/notargets/halo/comm"
	"github.com/notargets/halo/mesh"
	"github.com/notargets/halo/types"
	"github.com/notargets/halo/utils"
)

/*
BoundaryValuesCC exchanges the halos of one group of cell centered variables
for every block in a pack. The exchange for one channel key runs as:

	InitRecv -> SendBuffers -> RecvBuffers (polled until complete) -> ClearSend, ClearRecv

Neighbors on the same rank are packed straight into the receiving block's
buffer. Neighbors on other ranks get one non-blocking transfer per
(block, slot). Only one exchange may be in flight per BoundaryValuesCC.
*/
type BoundaryValuesCC struct {
	pack           *mesh.MeshBlockPack
	Nvar           int
	ParallelDegree int
	SendBuf        []BoundaryBuffer // Indexed by slot, ordered as mesh.Directions
	RecvBuf        []BoundaryBuffer
	pm             *utils.PartitionMap // Splits (block, slot, variable) work items
}

// NewBoundaryValuesCC allocates buffers for nvar variables. ProcLimit caps the
// goroutines used for packing, 0 means one per CPU.
func NewBoundaryValuesCC(pack *mesh.MeshBlockPack, nvar, ProcLimit int) (bv *BoundaryValuesCC, err error) {
	if err = pack.Check(); err != nil {
		return nil, fmt.Errorf("rank %d topology: %w", pack.Rank, err)
	}
	if nvar < 1 {
		return nil, fmt.Errorf("need at least one variable to exchange, have %d", nvar)
	}
	bv = &BoundaryValuesCC{pack: pack}
	if err = bv.AllocateBuffers(nvar, ProcLimit); err != nil {
		return nil, err
	}
	log.Debug().Int("rank", pack.Rank).Int("nmb", pack.Nmb).Int("nnghbr", pack.Indcs.Nnghbr).
		Int("nvar", nvar).Int("parallel", bv.ParallelDegree).Msg("allocated boundary buffers")
	return
}

// AllocateBuffers sizes every slot from the buffer index geometry. The slot
// order must match the neighbor lists of the pack.
func (bv *BoundaryValuesCC) AllocateBuffers(nvar, ProcLimit int) (err error) {
	var (
		indcs      = bv.pack.Indcs
		nmb        = bv.pack.Nmb
		send, recv []BufferIndices
	)
	if send, recv, err = BufferIndexGeometry(indcs); err != nil {
		return
	}
	bv.Nvar = nvar
	bv.SendBuf = make([]BoundaryBuffer, indcs.Nnghbr)
	bv.RecvBuf = make([]BoundaryBuffer, indcs.Nnghbr)
	for n := 0; n < indcs.Nnghbr; n++ {
		bv.SendBuf[n].InitIndices(nmb, nvar, send[n])
		bv.RecvBuf[n].InitIndices(nmb, nvar, recv[n])
		dn := mesh.Opposite(n)
		if send[n].Ni() != recv[dn].Ni() || send[n].Nj() != recv[dn].Nj() || send[n].Nk() != recv[dn].Nk() {
			return fmt.Errorf("slot %d send box %v does not match slot %d receive box %v",
				n, send[n], dn, recv[dn])
		}
	}
	nmnv := nmb * indcs.Nnghbr * nvar
	bv.ParallelDegree = utils.ParallelDegree(ProcLimit, nmnv)
	bv.pm = utils.NewPartitionMap(bv.ParallelDegree, nmnv)
	return
}

func (bv *BoundaryValuesCC) check(c comm.Communicator, a *utils.Array5D) error {
	if c.Rank() != bv.pack.Rank {
		return fmt.Errorf("communicator rank %d does not own pack of rank %d", c.Rank(), bv.pack.Rank)
	}
	if a == nil {
		return nil
	}
	nc3, nc2, nc1 := bv.pack.Indcs.Cells()
	if a.Nmb != bv.pack.Nmb || a.Nvar != bv.Nvar || a.Nx3 != nc3 || a.Nx2 != nc2 || a.Nx1 != nc1 {
		return fmt.Errorf("array (%d,%d,%d,%d,%d) does not match pack buffers (%d,%d,%d,%d,%d)",
			a.Nmb, a.Nvar, a.Nx3, a.Nx2, a.Nx1, bv.pack.Nmb, bv.Nvar, nc3, nc2, nc1)
	}
	return nil
}

// workItem decodes an outer loop index into (block, slot, variable)
func (bv *BoundaryValuesCC) workItem(idx int) (m, n, v int) {
	var (
		nnghbr = bv.pack.Indcs.Nnghbr
		nvar   = bv.Nvar
	)
	m = idx / (nnghbr * nvar)
	n = (idx - m*nnghbr*nvar) / nvar
	v = idx - m*nnghbr*nvar - n*nvar
	return
}

// InitRecv resets every receive slot to waiting and posts the cross rank
// receives for channel key
func (bv *BoundaryValuesCC) InitRecv(c comm.Communicator, key int) (types.TaskStatus, error) {
	if err := bv.check(c, nil); err != nil {
		return types.TaskIncomplete, err
	}
	var (
		pack = bv.pack
		rbuf = bv.RecvBuf
	)
	// Nothing is reset or posted while any receive of the last exchange is
	// still open
	for m := 0; m < pack.Nmb; m++ {
		for n := range pack.Nghbr[m] {
			if req := rbuf[n].CommReq[m]; req != nil {
				if done, _ := req.Test(); !done {
					return types.TaskIncomplete, fmt.Errorf("block %d slot %d still has a receive outstanding",
						pack.Gids+m, n)
				}
			}
		}
	}
	for m := 0; m < pack.Nmb; m++ {
		for n, nb := range pack.Nghbr[m] {
			if !nb.Exists() {
				continue
			}
			rbuf[n].BcommStat[m] = types.BoundaryWaiting
			if nb.Rank == pack.Rank {
				continue
			}
			req, err := c.Irecv(rbuf[n].BlockData(m), nb.Rank, types.NewMPITag(m, n, key))
			if err != nil {
				return types.TaskIncomplete, fmt.Errorf("block %d slot %d post receive: %w", pack.Gids+m, n, err)
			}
			rbuf[n].CommReq[m] = req
		}
	}
	return types.TaskComplete, nil
}

// SendBuffers packs every slot of every block and starts the transfers. It
// never waits on the network, so it always completes unless a transfer could
// not be started.
func (bv *BoundaryValuesCC) SendBuffers(c comm.Communicator, a *utils.Array5D, key int) (types.TaskStatus, error) {
	if err := bv.check(c, a); err != nil {
		return types.TaskIncomplete, err
	}
	var (
		pack = bv.pack
		sbuf = bv.SendBuf
		rbuf = bv.RecvBuf
	)
	// Outer loop over (# of blocks)*(# of slots)*(# of variables), each work
	// item writes a region no other item touches
	bv.pm.ParallelRange(func(_, kMin, kMax int) {
		for idx := kMin; idx < kMax; idx++ {
			m, n, v := bv.workItem(idx)
			nb := pack.Nghbr[m][n]
			if !nb.Exists() {
				continue
			}
			var dst []float64
			if nb.Rank == pack.Rank {
				// Same rank: copy straight into the receiving block's buffer
				dst = rbuf[nb.Destn].VarData(nb.Gid-pack.Gids, v)
			} else {
				dst = sbuf[n].VarData(m, v)
			}
			packBox(a, m, v, sbuf[n].Index, dst)
		}
	})

	for m := 0; m < pack.Nmb; m++ {
		for n, nb := range pack.Nghbr[m] {
			if !nb.Exists() {
				continue
			}
			if nb.Rank == pack.Rank {
				rbuf[nb.Destn].BcommStat[nb.Gid-pack.Gids] = types.BoundaryReceived
				continue
			}
			// Tag is built from the local id and slot of the *receiving* block
			tag := types.NewMPITag(pack.RemoteLocalID(nb), nb.Destn, key)
			req, err := c.Isend(sbuf[n].BlockData(m), nb.Rank, tag)
			if err != nil {
				return types.TaskIncomplete, fmt.Errorf("block %d slot %d send to rank %d: %w",
					pack.Gids+m, n, nb.Rank, err)
			}
			sbuf[n].CommReq[m] = req
		}
	}
	return types.TaskComplete, nil
}

// RecvBuffers reports incomplete until every expected transfer has landed and
// leaves the array untouched until then. Once all have landed it unpacks every
// slot into the ghost cells. Calling it again after completion unpacks the same
// data again.
func (bv *BoundaryValuesCC) RecvBuffers(c comm.Communicator, a *utils.Array5D) (types.TaskStatus, error) {
	if err := bv.check(c, a); err != nil {
		return types.TaskIncomplete, err
	}
	var (
		pack  = bv.pack
		rbuf  = bv.RecvBuf
		bflag bool
	)
	for m := 0; m < pack.Nmb; m++ {
		for n, nb := range pack.Nghbr[m] {
			if !nb.Exists() || rbuf[n].BcommStat[m] == types.BoundaryReceived {
				continue
			}
			if nb.Rank == pack.Rank {
				// The neighbor's send has not run yet
				bflag = true
				continue
			}
			req := rbuf[n].CommReq[m]
			if req == nil {
				return types.TaskIncomplete, fmt.Errorf("block %d slot %d has no receive posted from rank %d",
					pack.Gids+m, n, nb.Rank)
			}
			done, err := req.Test()
			if err != nil {
				return types.TaskIncomplete, fmt.Errorf("block %d slot %d receive from rank %d: %w",
					pack.Gids+m, n, nb.Rank, err)
			}
			if done {
				rbuf[n].BcommStat[m] = types.BoundaryReceived
			} else {
				bflag = true
			}
		}
	}
	if bflag {
		return types.TaskIncomplete, nil
	}

	bv.pm.ParallelRange(func(_, kMin, kMax int) {
		for idx := kMin; idx < kMax; idx++ {
			m, n, v := bv.workItem(idx)
			if !pack.Nghbr[m][n].Exists() {
				continue
			}
			unpackBox(a, m, v, rbuf[n].Index, rbuf[n].VarData(m, v))
		}
	})
	return types.TaskComplete, nil
}

// ClearSend polls the cross rank sends of the last exchange. The send buffers
// may be repacked only after it completes.
func (bv *BoundaryValuesCC) ClearSend(c comm.Communicator) (types.TaskStatus, error) {
	if err := bv.check(c, nil); err != nil {
		return types.TaskIncomplete, err
	}
	var (
		sbuf  = bv.SendBuf
		bflag bool
	)
	for n := range sbuf {
		for m, req := range sbuf[n].CommReq {
			if req == nil {
				continue
			}
			done, err := req.Test()
			if err != nil {
				return types.TaskIncomplete, fmt.Errorf("block %d slot %d send: %w", bv.pack.Gids+m, n, err)
			}
			if !done {
				bflag = true
				continue
			}
			sbuf[n].CommReq[m] = nil
		}
	}
	if bflag {
		return types.TaskIncomplete, nil
	}
	return types.TaskComplete, nil
}

// ClearRecv returns every receive slot to waiting once its transfer is done,
// ready for the next exchange
func (bv *BoundaryValuesCC) ClearRecv(c comm.Communicator) (types.TaskStatus, error) {
	if err := bv.check(c, nil); err != nil {
		return types.TaskIncomplete, err
	}
	var (
		rbuf  = bv.RecvBuf
		bflag bool
	)
	for n := range rbuf {
		for m := range rbuf[n].BcommStat {
			if req := rbuf[n].CommReq[m]; req != nil {
				done, err := req.Test()
				if err != nil {
					return types.TaskIncomplete, fmt.Errorf("block %d slot %d receive: %w", bv.pack.Gids+m, n, err)
				}
				if !done {
					bflag = true
					continue
				}
				rbuf[n].CommReq[m] = nil
			}
			rbuf[n].BcommStat[m] = types.BoundaryWaiting
		}
	}
	if bflag {
		return types.TaskIncomplete, nil
	}
	return types.TaskComplete, nil
}

// GetStats counts the slots of the pack by what sits across them, and the
// values one exchange puts on the network
func (bv *BoundaryValuesCC) GetStats() map[string]int {
	var (
		pack  = bv.pack
		ranks = make(map[int]bool)
		stats = map[string]int{
			"slots":          pack.Nmb * pack.Indcs.Nnghbr,
			"boundary_slots": 0,
			"local_slots":    0,
			"remote_slots":   0,
			"remote_ranks":   0,
			"remote_values":  0,
		}
	)
	for m := 0; m < pack.Nmb; m++ {
		for n, nb := range pack.Nghbr[m] {
			switch {
			case !nb.Exists():
				stats["boundary_slots"]++
			case nb.Rank == pack.Rank:
				stats["local_slots"]++
			default:
				stats["remote_slots"]++
				stats["remote_values"] += bv.Nvar * bv.SendBuf[n].Nsize
				ranks[nb.Rank] = true
			}
		}
	}
	stats["remote_ranks"] = len(ranks)
	return stats
}

// packBox copies the cells of box bi at (m, v) into dst, one i row at a time
func packBox(a *utils.Array5D, m, v int, bi BufferIndices, dst []float64) {
	var (
		ni  = bi.Ni()
		off int
	)
	for k := bi[4]; k <= bi[5]; k++ {
		for j := bi[2]; j <= bi[3]; j++ {
			row := a.Row(m, v, k, j)
			copy(dst[off:off+ni], row[bi[0]:bi[1]+1])
			off += ni
		}
	}
}

func unpackBox(a *utils.Array5D, m, v int, bi BufferIndices, src []float64) {
	var (
		ni  = bi.Ni()
		off int
	)
	for k := bi[4]; k <= bi[5]; k++ {
		for j := bi[2]; j <= bi[3]; j++ {
			row := a.Row(m, v, k, j)
			copy(row[bi[0]:bi[1]+1], src[off:off+ni])
			off += ni
		}
	}
}
