package mesh

import (
	"fmt"

	"github.com/notargets/halo/utils"
)

// MeshBlockPack is the set of blocks owned by one rank. Global ids in a pack
// are contiguous, so the local id of a block is its gid minus Gids.
type MeshBlockPack struct {
	Rank       int
	Gids, Gide int // First and last global id in this pack
	Nmb        int
	Indcs      RegionIndcs
	Loc        []LogicalLocation
	Nghbr      [][]NeighborBlock // Indexed [block][slot]
	Gidslist   []int             // First global id on every rank
	Nmblist    []int             // Block count on every rank
}

// NewArray5D allocates a ghost inclusive state array for this pack
func (pack *MeshBlockPack) NewArray5D(nvar int) *utils.Array5D {
	nc3, nc2, nc1 := pack.Indcs.Cells()
	return utils.NewArray5D(pack.Nmb, nvar, nc3, nc2, nc1)
}

// RemoteLocalID is the local id of a neighbor block on its own rank, the id
// the neighbor uses to build its transfer tags
func (pack *MeshBlockPack) RemoteLocalID(nb NeighborBlock) int {
	return nb.Gid - pack.Gidslist[nb.Rank]
}

// Check verifies the neighbor lists against the buffer slot layout before any
// exchange is allowed to use them
func (pack *MeshBlockPack) Check() (err error) {
	if err = pack.Indcs.Check(); err != nil {
		return
	}
	if len(pack.Nghbr) != pack.Nmb {
		return fmt.Errorf("pack has %d blocks but %d neighbor lists", pack.Nmb, len(pack.Nghbr))
	}
	for m, nbs := range pack.Nghbr {
		if len(nbs) != pack.Indcs.Nnghbr {
			return fmt.Errorf("block %d has %d neighbor slots, buffers have %d",
				pack.Gids+m, len(nbs), pack.Indcs.Nnghbr)
		}
	}
	for m, nbs := range pack.Nghbr {
		for n, nb := range nbs {
			if !nb.Exists() {
				continue
			}
			if nb.Destn < 0 || nb.Destn >= pack.Indcs.Nnghbr {
				return fmt.Errorf("block %d slot %d has destination slot %d out of range",
					pack.Gids+m, n, nb.Destn)
			}
			if nb.Rank < 0 || nb.Rank >= len(pack.Gidslist) {
				return fmt.Errorf("block %d slot %d has neighbor rank %d out of range",
					pack.Gids+m, n, nb.Rank)
			}
			lid := pack.RemoteLocalID(nb)
			if lid < 0 || lid >= pack.Nmblist[nb.Rank] {
				return fmt.Errorf("block %d slot %d neighbor gid %d is not owned by rank %d",
					pack.Gids+m, n, nb.Gid, nb.Rank)
			}
			if nb.Rank != pack.Rank {
				continue
			}
			if nb.Gid < pack.Gids || nb.Gid > pack.Gide {
				return fmt.Errorf("block %d slot %d neighbor gid %d is outside this pack",
					pack.Gids+m, n, nb.Gid)
			}
			// A same rank copy lands in the neighbor's slot Destn, which must
			// lead straight back here
			if back := pack.Nghbr[nb.Gid-pack.Gids][nb.Destn]; back.Gid != pack.Gids+m || back.Destn != n {
				return fmt.Errorf("block %d slot %d reaches block %d slot %d, which leads to block %d slot %d",
					pack.Gids+m, n, nb.Gid, nb.Destn, back.Gid, back.Destn)
			}
		}
	}
	return
}
