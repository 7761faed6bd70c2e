package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/halo/types"
)

func periodic() [6]types.BCFLAG {
	return [6]types.BCFLAG{
		types.BC_Periodic, types.BC_Periodic,
		types.BC_Periodic, types.BC_Periodic,
		types.BC_Periodic, types.BC_Periodic,
	}
}

func TestDirections(t *testing.T) {
	assert.Equal(t, 2, NumNeighbors(1))
	assert.Equal(t, 8, NumNeighbors(2))
	assert.Equal(t, 26, NumNeighbors(3))
	assert.Panics(t, func() { NumNeighbors(4) })

	seen := make(map[Direction]bool)
	for n, d := range Directions {
		assert.False(t, seen[d], "duplicate direction %v", d)
		seen[d] = true
		assert.Equal(t, n, Opposite(Opposite(n)))
		o := Directions[Opposite(n)]
		assert.Equal(t, Direction{-d[0], -d[1], -d[2]}, o)
	}
	// The lower dimensional subsets are closed under Opposite and use no
	// offsets along the inactive axes
	for n := 0; n < 8; n++ {
		assert.True(t, Opposite(n) < 8)
		assert.Equal(t, 0, Directions[n][2])
		if n < 2 {
			assert.True(t, Opposite(n) < 2)
			assert.Equal(t, 0, Directions[n][1])
		}
	}
}

func TestRegionIndcs(t *testing.T) {
	indcs := NewRegionIndcs(4, 1, 1, 2)
	assert.Equal(t, 1, indcs.Ndim)
	assert.Equal(t, 2, indcs.Nnghbr)
	assert.Equal(t, [6]int{2, 5, 0, 0, 0, 0},
		[6]int{indcs.Is, indcs.Ie, indcs.Js, indcs.Je, indcs.Ks, indcs.Ke})
	nc3, nc2, nc1 := indcs.Cells()
	assert.Equal(t, [3]int{1, 1, 8}, [3]int{nc3, nc2, nc1})
	assert.NoError(t, indcs.Check())

	indcs = NewRegionIndcs(8, 6, 4, 2)
	assert.Equal(t, 3, indcs.Ndim)
	assert.Equal(t, 26, indcs.Nnghbr)
	assert.Equal(t, [6]int{2, 9, 2, 7, 2, 5},
		[6]int{indcs.Is, indcs.Ie, indcs.Js, indcs.Je, indcs.Ks, indcs.Ke})
	assert.NoError(t, indcs.Check())

	// Halo as wide as the interior is a setup error
	assert.Error(t, NewRegionIndcs(2, 1, 1, 2).Check())
	assert.Error(t, NewRegionIndcs(8, 2, 1, 2).Check())
	assert.Error(t, NewRegionIndcs(8, 1, 1, 0).Check())
	bad := NewRegionIndcs(8, 8, 1, 2)
	bad.Nnghbr = 26
	assert.Error(t, bad.Check())
}

func TestMesh(t *testing.T) {
	{ // 1D chain of 3 blocks, periodic
		m, err := NewMesh(Config{
			Nx: [3]int{12, 1, 1}, BlockNx: [3]int{4, 1, 1},
			NGhost: 2, BCs: periodic(), NRanks: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, 3, m.NmbTotal)
		assert.Equal(t, [3]int{3, 1, 1}, m.Nbx)
		assert.Equal(t, NeighborBlock{Gid: 2, Rank: 0, Destn: 1}, m.Neighbor(0, 0))
		assert.Equal(t, NeighborBlock{Gid: 1, Rank: 0, Destn: 0}, m.Neighbor(0, 1))
		assert.Equal(t, NeighborBlock{Gid: 0, Rank: 0, Destn: 0}, m.Neighbor(2, 1))
		assert.NoError(t, m.ValidateTopology())
		// Ghosts left of block 0 wrap to the end of the mesh
		g, ok := m.GlobalCell(m.Location(0), 0, 0, 0)
		assert.True(t, ok)
		assert.Equal(t, [3]int{10, 0, 0}, g)
		g, ok = m.GlobalCell(m.Location(1), 0, 0, 2)
		assert.True(t, ok)
		assert.Equal(t, [3]int{4, 0, 0}, g)
		assert.Equal(t, 0, m.EdgeCut())
	}
	{ // Outflow ends have no neighbor
		bcs := periodic()
		bcs[0], bcs[1] = types.BC_Outflow, types.BC_Reflect
		m, err := NewMesh(Config{
			Nx: [3]int{12, 1, 1}, BlockNx: [3]int{4, 1, 1},
			NGhost: 2, BCs: bcs, NRanks: 3,
		})
		require.NoError(t, err)
		assert.False(t, m.Neighbor(0, 0).Exists())
		assert.False(t, m.Neighbor(2, 1).Exists())
		assert.Equal(t, NeighborBlock{Gid: 1, Rank: 1, Destn: 0}, m.Neighbor(0, 1))
		assert.Equal(t, []int{0, 1, 2}, m.Ranklist)
		assert.Equal(t, 2, m.GlobalID(2, 0))
		assert.NoError(t, m.ValidateTopology())
		_, ok := m.GlobalCell(m.Location(0), 0, 0, 1)
		assert.False(t, ok)
		_, ok = m.GlobalCell(m.Location(2), 0, 0, 6)
		assert.False(t, ok)
		// Each rank owns one block, and only the inner pairs talk
		assert.Equal(t, 4, m.EdgeCut())
	}
	{ // 3D, uneven rank split
		m, err := NewMesh(Config{
			Nx: [3]int{16, 8, 8}, BlockNx: [3]int{4, 4, 4},
			NGhost: 2, BCs: periodic(), NRanks: 3,
		})
		require.NoError(t, err)
		assert.Equal(t, 16, m.NmbTotal)
		assert.Equal(t, []int{0, 6, 11}, m.Gidslist)
		assert.Equal(t, []int{6, 5, 5}, m.Nmblist)
		for gid := 0; gid < m.NmbTotal; gid++ {
			assert.Equal(t, gid, m.Gid(m.Location(gid)))
			rank := m.Ranklist[gid]
			assert.Equal(t, gid, m.GlobalID(rank, gid-m.Gidslist[rank]))
		}
		assert.Equal(t, LogicalLocation{3, 1, 1}, m.Location(15))
		assert.NoError(t, m.ValidateTopology())
		// Every block has 26 neighbors, so each row of the adjacency sums to 26
		C := m.Connectivity()
		for gid := 0; gid < m.NmbTotal; gid++ {
			var sum float64
			for h := 0; h < m.NmbTotal; h++ {
				sum += C.At(gid, h)
			}
			assert.Equal(t, 26., sum)
		}
		// Traffic between ranks is symmetric and every slot is counted once
		T := m.RankTraffic()
		assert.True(t, mat.Equal(T, T.T()))
		var cut int
		for rank := 0; rank < 3; rank++ {
			assert.Equal(t, float64(26*m.Nmblist[rank]), mat.Sum(T.RowView(rank)))
			cut += int(mat.Sum(T.RowView(rank)) - T.At(rank, rank))
		}
		assert.Equal(t, cut, m.EdgeCut())
		assert.Greater(t, cut, 0)
		for rank := 0; rank < 3; rank++ {
			pack := m.NewMeshBlockPack(rank)
			assert.NoError(t, pack.Check())
			assert.Equal(t, m.Nmblist[rank], pack.Nmb)
			a := pack.NewArray5D(5)
			assert.Equal(t, [5]int{pack.Nmb, 5, 8, 8, 8}, [5]int{a.Nmb, a.Nvar, a.Nx3, a.Nx2, a.Nx1})
		}
	}
	{ // Setup errors
		_, err := NewMesh(Config{Nx: [3]int{10, 1, 1}, BlockNx: [3]int{4, 1, 1}, NGhost: 2})
		assert.Error(t, err)
		_, err = NewMesh(Config{Nx: [3]int{8, 1, 1}, BlockNx: [3]int{4, 1, 1}, NGhost: 2, NRanks: 3})
		assert.Error(t, err)
		_, err = NewMesh(Config{Nx: [3]int{8, 1, 1}, BlockNx: [3]int{2, 1, 1}, NGhost: 2})
		assert.Error(t, err)
		_, err = NewMesh(Config{Nx: [3]int{8, 8, 1}, BlockNx: [3]int{8, 1, 1}, NGhost: 2})
		assert.Error(t, err)
	}
	{ // A face that wraps without its opposite face is rejected
		bcs := periodic()
		bcs[5] = types.BC_Inflow
		_, err := NewMesh(Config{Nx: [3]int{6, 4, 4}, BlockNx: [3]int{3, 2, 2}, NGhost: 1, BCs: bcs, NRanks: 5})
		assert.Error(t, err)
		bcs = periodic()
		bcs[0] = types.BC_Outflow
		_, err = NewMesh(Config{Nx: [3]int{8, 1, 1}, BlockNx: [3]int{4, 1, 1}, NGhost: 1, BCs: bcs})
		assert.Error(t, err)
		// Faces of an inactive axis never have neighbors
		bcs = periodic()
		bcs[4] = types.BC_Inflow
		_, err = NewMesh(Config{Nx: [3]int{8, 8, 1}, BlockNx: [3]int{4, 4, 1}, NGhost: 1, BCs: bcs})
		assert.NoError(t, err)
	}
}

func TestMeshBlockPack_Check(t *testing.T) {
	m, err := NewMesh(Config{
		Nx: [3]int{8, 8, 1}, BlockNx: [3]int{4, 4, 1},
		NGhost: 1, BCs: periodic(), NRanks: 2,
	})
	require.NoError(t, err)
	pack := m.NewMeshBlockPack(1)
	require.NoError(t, pack.Check())
	assert.Equal(t, 2, pack.Gids)
	assert.Equal(t, 3, pack.Gide)

	pack.Nghbr[0] = pack.Nghbr[0][:7]
	assert.Error(t, pack.Check())

	pack = m.NewMeshBlockPack(1)
	pack.Nghbr[1][3].Destn = 30
	assert.Error(t, pack.Check())

	// Block 2's right neighbor is block 3 on the same rank, whose slot 4 leads
	// elsewhere
	pack = m.NewMeshBlockPack(1)
	pack.Nghbr[0][1].Destn = 4
	assert.Error(t, pack.Check())

	pack = m.NewMeshBlockPack(1)
	pack.Nghbr[1][3].Rank = 1
	pack.Nghbr[1][3].Gid = 0
	assert.Error(t, pack.Check())
	assert.Panics(t, func() { m.NewMeshBlockPack(2) })
}
