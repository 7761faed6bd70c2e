package driver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/halo/bvals"
	"github.com/notargets/halo/comm"
	"github.com/notargets/halo/mesh"
	"github.com/notargets/halo/types"
)

func periodic() [6]types.BCFLAG {
	return [6]types.BCFLAG{
		types.BC_Periodic, types.BC_Periodic,
		types.BC_Periodic, types.BC_Periodic,
		types.BC_Periodic, types.BC_Periodic,
	}
}

func TestFields(t *testing.T) {
	bcs := periodic()
	bcs[0], bcs[1] = types.BC_Outflow, types.BC_Outflow
	msh, err := mesh.NewMesh(mesh.Config{
		Nx: [3]int{8, 1, 1}, BlockNx: [3]int{4, 1, 1}, NGhost: 2, BCs: bcs, NRanks: 1,
	})
	require.NoError(t, err)
	var (
		pack = msh.NewMeshBlockPack(0)
		a    = pack.NewArray5D(2)
	)
	a.Fill(Unset)
	SeedInterior(msh, pack, a, 3)
	assert.Equal(t, FieldValue(msh, 3, 1, 0, 0, 5), a.At(1, 1, 0, 0, 3))
	assert.NotEqual(t, FieldValue(msh, 3, 0, 0, 0, 5), FieldValue(msh, 4, 0, 0, 0, 5))
	assert.NotEqual(t, FieldValue(msh, 3, 0, 0, 0, 5), FieldValue(msh, 3, 1, 0, 0, 5))

	// Ghosts on the outflow faces stay unset
	assert.Equal(t, Unset, ExpectedValue(msh, pack.Loc[0], 3, 0, 0, 0, 1))
	assert.Equal(t, Unset, ExpectedValue(msh, pack.Loc[1], 3, 0, 0, 0, 7))
	// Block 1's left ghosts hold the last interior cells of block 0
	assert.Equal(t, FieldValue(msh, 3, 0, 0, 0, 2), ExpectedValue(msh, pack.Loc[1], 3, 0, 0, 0, 0))

	// Before the exchange only the ghosts between the blocks are wrong, two
	// cells per block and variable
	nbad, errMax := CheckHalo(msh, pack, a, 3)
	assert.Equal(t, 2*2*2, nbad)
	assert.Greater(t, errMax, 0.)

	// A periodic mesh wraps instead
	msh, err = mesh.NewMesh(mesh.Config{
		Nx: [3]int{8, 1, 1}, BlockNx: [3]int{4, 1, 1}, NGhost: 2, BCs: periodic(), NRanks: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, FieldValue(msh, 3, 0, 0, 0, 1), ExpectedValue(msh, pack.Loc[1], 3, 0, 0, 0, 7))
}

func TestExchangeTasks(t *testing.T) {
	msh, err := mesh.NewMesh(mesh.Config{
		Nx: [3]int{8, 8, 1}, BlockNx: [3]int{4, 4, 1}, NGhost: 2, BCs: periodic(), NRanks: 1,
	})
	require.NoError(t, err)
	var (
		pack = msh.NewMeshBlockPack(0)
		c    = comm.NewLocalNetwork(1).Comm(0)
		a    = pack.NewArray5D(1)
	)
	bv, err := bvals.NewBoundaryValuesCC(pack, 1, 2)
	require.NoError(t, err)
	a.Fill(Unset)
	for cycle := 0; cycle < 3; cycle++ {
		SeedInterior(msh, pack, a, cycle)
		tl := NewExchangeTasks(bv, c, a, cycle)
		assert.Len(t, tl.Tasks, 5)
		require.NoError(t, tl.Execute(context.Background()))
		// Everything is on one rank, so a single sweep finishes the list
		assert.Equal(t, 1, tl.Sweeps)
		nbad, _ := CheckHalo(msh, pack, a, cycle)
		assert.Equal(t, 0, nbad, "cycle %d", cycle)
	}
}

func TestRun(t *testing.T) {
	mixed := periodic()
	mixed[2], mixed[3] = types.BC_Reflect, types.BC_Reflect
	cases := []mesh.Config{
		{Nx: [3]int{24, 1, 1}, BlockNx: [3]int{4, 1, 1}, NGhost: 2, BCs: periodic()},
		{Nx: [3]int{12, 12, 1}, BlockNx: [3]int{4, 4, 1}, NGhost: 2, BCs: mixed},
		{Nx: [3]int{8, 8, 8}, BlockNx: [3]int{4, 4, 4}, NGhost: 2, BCs: periodic()},
	}
	for _, mc := range cases {
		var checksum float64
		for _, nranks := range []int{1, 3} {
			for _, tr := range []Transport{TransportLocal, TransportTCP} {
				cfg := Config{Mesh: mc, Nvar: 2, Cycles: 4, ProcLimit: 2, Transport: tr, Timeout: 20 * time.Second}
				cfg.Mesh.NRanks = nranks
				r, err := Run(context.Background(), cfg)
				require.NoError(t, err, "%v ranks %d %s", mc.Nx, nranks, tr)
				require.Len(t, r.Ranks, nranks)
				assert.Equal(t, 0, r.BadCells())
				var nmb, remote int
				for _, rr := range r.Ranks {
					nmb += rr.Nmb
					remote += rr.Stats["remote_slots"]
					assert.Len(t, rr.BlockNorms, rr.Nmb)
					assert.GreaterOrEqual(t, rr.Sweeps, cfg.Cycles)
				}
				assert.Equal(t, mc.Nx[0]*mc.Nx[1]*mc.Nx[2]/(mc.BlockNx[0]*mc.BlockNx[1]*mc.BlockNx[2]), nmb)
				assert.Equal(t, r.EdgeCut, remote)
				if nranks == 1 {
					assert.Equal(t, 0, r.EdgeCut)
				}
				// The final state does not depend on how blocks are spread
				if checksum == 0 {
					checksum = r.Checksum()
				} else {
					assert.InDelta(t, checksum, r.Checksum(), 1e-9*checksum)
				}
			}
		}
	}
}

func TestRun_Errors(t *testing.T) {
	_, err := Run(context.Background(), Config{Mesh: mesh.Config{
		Nx: [3]int{10, 1, 1}, BlockNx: [3]int{4, 1, 1}, NGhost: 2, BCs: periodic(),
	}})
	assert.Error(t, err)
	_, err = Run(context.Background(), Config{Mesh: mesh.Config{
		Nx: [3]int{8, 1, 1}, BlockNx: [3]int{4, 1, 1}, NGhost: 2, BCs: periodic(), NRanks: 3,
	}})
	assert.Error(t, err)
	// x1 wraps on one side only
	oneSided := periodic()
	oneSided[1] = types.BC_Outflow
	_, err = Run(context.Background(), Config{Mesh: mesh.Config{
		Nx: [3]int{8, 1, 1}, BlockNx: [3]int{4, 1, 1}, NGhost: 2, BCs: oneSided,
	}})
	assert.Error(t, err)
	_, err = Run(context.Background(), Config{Transport: Transport(9), Mesh: mesh.Config{
		Nx: [3]int{8, 1, 1}, BlockNx: [3]int{4, 1, 1}, NGhost: 2, BCs: periodic(),
	}})
	assert.Error(t, err)

	tr, err := NewTransport("tcp")
	require.NoError(t, err)
	assert.Equal(t, TransportTCP, tr)
	assert.Equal(t, "tcp", tr.String())
	_, err = NewTransport("carrier pigeon")
	assert.Error(t, err)
}
