package bvals

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/notargets/halo/comm"
	"github.com/notargets/halo/mesh"
	"github.com/notargets/halo/types"
	"github.com/notargets/halo/utils"
)

const sentinel = -1.

func allBCs(bc types.BCFLAG) [6]types.BCFLAG {
	return [6]types.BCFLAG{bc, bc, bc, bc, bc, bc}
}

// cellValue is unique per (variable, global cell) for meshes under 100 cells
// per axis
func cellValue(v, gk, gj, gi int) float64 {
	return float64(1000000*v+10000*gk+100*gj+gi) + 0.5
}

// expectedValue is what cell (k, j, i) of a block at loc holds after a halo
// exchange of a seeded mesh
func expectedValue(msh *mesh.Mesh, loc mesh.LogicalLocation, v, k, j, i int) float64 {
	g, ok := msh.GlobalCell(loc, k, j, i)
	if !ok {
		return sentinel
	}
	return cellValue(v, g[2], g[1], g[0])
}

func seed(msh *mesh.Mesh, pack *mesh.MeshBlockPack, a *utils.Array5D) {
	indcs := pack.Indcs
	a.Fill(sentinel)
	for m := 0; m < pack.Nmb; m++ {
		for v := 0; v < a.Nvar; v++ {
			for k := indcs.Ks; k <= indcs.Ke; k++ {
				for j := indcs.Js; j <= indcs.Je; j++ {
					for i := indcs.Is; i <= indcs.Ie; i++ {
						a.Set(m, v, k, j, i, expectedValue(msh, pack.Loc[m], v, k, j, i))
					}
				}
			}
		}
	}
}

func inBox(bi BufferIndices, k, j, i int) bool {
	return i >= bi[0] && i <= bi[1] && j >= bi[2] && j <= bi[3] && k >= bi[4] && k <= bi[5]
}

func requireExchanged(t *testing.T, msh *mesh.Mesh, pack *mesh.MeshBlockPack, a *utils.Array5D) {
	t.Helper()
	for m := 0; m < a.Nmb; m++ {
		for v := 0; v < a.Nvar; v++ {
			for k := 0; k < a.Nx3; k++ {
				for j := 0; j < a.Nx2; j++ {
					for i := 0; i < a.Nx1; i++ {
						require.Equal(t, expectedValue(msh, pack.Loc[m], v, k, j, i), a.At(m, v, k, j, i),
							"rank %d gid %d var %d cell (%d,%d,%d)", pack.Rank, pack.Gids+m, v, k, j, i)
					}
				}
			}
		}
	}
}

type exchangeFixture struct {
	msh    *mesh.Mesh
	net    *comm.LocalNetwork
	packs  []*mesh.MeshBlockPack
	bvs    []*BoundaryValuesCC
	comms  []comm.Communicator
	arrays []*utils.Array5D
}

func newExchangeFixture(t *testing.T, cfg mesh.Config, nvar int) (f *exchangeFixture) {
	t.Helper()
	msh, err := mesh.NewMesh(cfg)
	require.NoError(t, err)
	f = &exchangeFixture{msh: msh, net: comm.NewLocalNetwork(msh.NRanks())}
	for rank := 0; rank < msh.NRanks(); rank++ {
		pack := msh.NewMeshBlockPack(rank)
		bv, err := NewBoundaryValuesCC(pack, nvar, 0)
		require.NoError(t, err)
		a := pack.NewArray5D(nvar)
		seed(msh, pack, a)
		f.packs = append(f.packs, pack)
		f.bvs = append(f.bvs, bv)
		f.comms = append(f.comms, f.net.Comm(rank))
		f.arrays = append(f.arrays, a)
	}
	return
}

func requireComplete(t *testing.T, status types.TaskStatus, err error) {
	t.Helper()
	require.NoError(t, err)
	require.Equal(t, types.TaskComplete, status)
}

// exchange runs one full exchange on every rank, phase by phase
func (f *exchangeFixture) exchange(t *testing.T, key int) {
	t.Helper()
	for r, bv := range f.bvs {
		status, err := bv.InitRecv(f.comms[r], key)
		requireComplete(t, status, err)
	}
	for r, bv := range f.bvs {
		status, err := bv.SendBuffers(f.comms[r], f.arrays[r], key)
		requireComplete(t, status, err)
	}
	for r, bv := range f.bvs {
		status, err := bv.RecvBuffers(f.comms[r], f.arrays[r])
		requireComplete(t, status, err)
	}
	for r, bv := range f.bvs {
		status, err := bv.ClearSend(f.comms[r])
		requireComplete(t, status, err)
		status, err = bv.ClearRecv(f.comms[r])
		requireComplete(t, status, err)
	}
}

// byGid collects block data across ranks, keyed by global id
func (f *exchangeFixture) byGid() map[int][]float64 {
	blocks := make(map[int][]float64)
	for r, pack := range f.packs {
		for m := 0; m < pack.Nmb; m++ {
			blocks[pack.Gids+m] = append([]float64(nil), f.arrays[r].Block(m)...)
		}
	}
	return blocks
}

type sendRecord struct {
	dest int
	tag  types.MPITag
	size int
}

// recordingComm notes every send before passing it on
type recordingComm struct {
	comm.Communicator
	sends []sendRecord
}

func (rc *recordingComm) Isend(data []float64, dest int, tag types.MPITag) (comm.Request, error) {
	rc.sends = append(rc.sends, sendRecord{dest: dest, tag: tag, size: len(data)})
	return rc.Communicator.Isend(data, dest, tag)
}
