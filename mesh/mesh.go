package mesh

import (
	"fmt"

	"github.com/notargets/halo/types"
	"github.com/notargets/halo/utils"
)

// Config describes a uniform (no refinement) decomposition of a rectangular
// domain into equally sized blocks
type Config struct {
	Nx      [3]int // Mesh cells along x1, x2, x3
	BlockNx [3]int // Block interior cells along x1, x2, x3
	NGhost  int
	// Boundary flags, ordered inner x1, outer x1, inner x2, outer x2, inner x3, outer x3
	BCs    [6]types.BCFLAG
	NRanks int
}

// LogicalLocation is the integer position of a block in the block lattice
type LogicalLocation struct {
	Lx1, Lx2, Lx3 int
}

// NeighborBlock describes what sits in one direction slot of a block.
// Gid is -1 on a physical boundary. Destn is the slot in the *neighbor's*
// buffers that this block's data lands in.
type NeighborBlock struct {
	Gid, Rank, Destn int
}

func (nb NeighborBlock) Exists() bool { return nb.Gid >= 0 }

type Mesh struct {
	Config   Config
	Indcs    RegionIndcs
	Nbx      [3]int // Blocks along each axis
	NmbTotal int
	Ranklist []int // Owning rank of each global block id
	Gidslist []int // First global block id of each rank
	Nmblist  []int // Number of blocks on each rank
	pm       *utils.PartitionMap
}

// NewMesh lays out blocks in x1 fastest order and assigns contiguous runs of
// global ids to ranks, with at most one block of imbalance
func NewMesh(cfg Config) (m *Mesh, err error) {
	if cfg.NRanks < 1 {
		cfg.NRanks = 1
	}
	m = &Mesh{Config: cfg}
	m.Indcs = NewRegionIndcs(cfg.BlockNx[0], cfg.BlockNx[1], cfg.BlockNx[2], cfg.NGhost)
	if err = m.Indcs.Check(); err != nil {
		return nil, err
	}
	m.NmbTotal = 1
	for axis := 0; axis < 3; axis++ {
		if cfg.Nx[axis] < 1 || cfg.BlockNx[axis] < 1 {
			return nil, fmt.Errorf("mesh and block extents along x%d must be positive, have %d and %d",
				axis+1, cfg.Nx[axis], cfg.BlockNx[axis])
		}
		if cfg.Nx[axis]%cfg.BlockNx[axis] != 0 {
			return nil, fmt.Errorf("mesh extent %d along x%d is not a multiple of block extent %d",
				cfg.Nx[axis], axis+1, cfg.BlockNx[axis])
		}
		m.Nbx[axis] = cfg.Nx[axis] / cfg.BlockNx[axis]
		m.NmbTotal *= m.Nbx[axis]
	}
	for axis := m.Indcs.Ndim; axis < 3; axis++ {
		if m.Nbx[axis] != 1 {
			return nil, fmt.Errorf("%dD mesh cannot have %d blocks along x%d",
				m.Indcs.Ndim, m.Nbx[axis], axis+1)
		}
	}
	// A face that wraps needs its opposite face to wrap back, or a block
	// waits on a neighbor that never sends to it
	for axis := 0; axis < m.Indcs.Ndim; axis++ {
		lo, hi := cfg.BCs[2*axis], cfg.BCs[2*axis+1]
		if (lo == types.BC_Periodic) != (hi == types.BC_Periodic) {
			return nil, fmt.Errorf("x%d faces must both be periodic or both not, have %s and %s",
				axis+1, lo, hi)
		}
	}
	if cfg.NRanks > m.NmbTotal {
		return nil, fmt.Errorf("%d ranks requested for only %d mesh blocks",
			cfg.NRanks, m.NmbTotal)
	}
	m.pm = utils.NewPartitionMap(cfg.NRanks, m.NmbTotal)
	m.Ranklist = make([]int, m.NmbTotal)
	m.Gidslist = make([]int, cfg.NRanks)
	m.Nmblist = make([]int, cfg.NRanks)
	for rank := 0; rank < cfg.NRanks; rank++ {
		m.Gidslist[rank] = m.pm.GetGlobalK(0, rank)
		m.Nmblist[rank] = m.pm.GetBucketDimension(rank)
		for lid := 0; lid < m.Nmblist[rank]; lid++ {
			m.Ranklist[m.GlobalID(rank, lid)] = rank
		}
	}
	if err = m.ValidateTopology(); err != nil {
		return nil, err
	}
	return
}

func (m *Mesh) Ndim() int { return m.Indcs.Ndim }

func (m *Mesh) NRanks() int { return m.Config.NRanks }

func (m *Mesh) Location(gid int) (loc LogicalLocation) {
	loc.Lx1 = gid % m.Nbx[0]
	loc.Lx2 = (gid / m.Nbx[0]) % m.Nbx[1]
	loc.Lx3 = gid / (m.Nbx[0] * m.Nbx[1])
	return
}

func (m *Mesh) Gid(loc LogicalLocation) int {
	return loc.Lx1 + m.Nbx[0]*(loc.Lx2+m.Nbx[1]*loc.Lx3)
}

// GlobalID is the global id of the lid'th block owned by rank
func (m *Mesh) GlobalID(rank, lid int) int {
	return m.pm.GetGlobalK(lid, rank)
}

// GlobalCell maps cell (k, j, i) of the block at loc to global mesh indices
// (gi, gj, gk), wrapping across periodic faces. Inactive axes map to 0. ok is
// false for ghost cells beyond any other face.
func (m *Mesh) GlobalCell(loc LogicalLocation, k, j, i int) (g [3]int, ok bool) {
	var (
		indcs = m.Indcs
		l     = [3]int{loc.Lx1, loc.Lx2, loc.Lx3}
		idx   = [3]int{i, j, k}
		s     = [3]int{indcs.Is, indcs.Js, indcs.Ks}
		nx    = [3]int{indcs.Nx1, indcs.Nx2, indcs.Nx3}
	)
	for axis := 0; axis < m.Ndim(); axis++ {
		n := m.Config.Nx[axis]
		g[axis] = l[axis]*nx[axis] + idx[axis] - s[axis]
		if g[axis] >= 0 && g[axis] < n {
			continue
		}
		face := 2 * axis
		if g[axis] >= n {
			face++
		}
		if m.Config.BCs[face] != types.BC_Periodic {
			return g, false
		}
		g[axis] = (g[axis] + n) % n
	}
	return g, true
}

// Neighbor resolves slot n of block gid, wrapping periodic faces and
// returning Gid == -1 across physical ones
func (m *Mesh) Neighbor(gid, n int) (nb NeighborBlock) {
	var (
		loc = m.Location(gid)
		l   = [3]int{loc.Lx1, loc.Lx2, loc.Lx3}
		d   = Directions[n]
	)
	nb = NeighborBlock{Gid: -1, Rank: -1, Destn: Opposite(n)}
	for axis := 0; axis < 3; axis++ {
		l[axis] += d[axis]
		if l[axis] >= 0 && l[axis] < m.Nbx[axis] {
			continue
		}
		face := 2 * axis
		if l[axis] >= m.Nbx[axis] {
			face++
		}
		if m.Config.BCs[face] != types.BC_Periodic {
			return
		}
		l[axis] = (l[axis] + m.Nbx[axis]) % m.Nbx[axis]
	}
	nb.Gid = m.Gid(LogicalLocation{l[0], l[1], l[2]})
	nb.Rank = m.Ranklist[nb.Gid]
	return
}

// NewMeshBlockPack builds the pack of blocks owned by rank, with neighbor
// descriptors for every slot
func (m *Mesh) NewMeshBlockPack(rank int) (pack *MeshBlockPack) {
	if rank < 0 || rank >= m.NRanks() {
		panic(fmt.Errorf("rank %d out of range [0,%d)", rank, m.NRanks()))
	}
	pack = &MeshBlockPack{
		Rank:     rank,
		Gids:     m.Gidslist[rank],
		Nmb:      m.Nmblist[rank],
		Indcs:    m.Indcs,
		Gidslist: m.Gidslist,
		Nmblist:  m.Nmblist,
	}
	pack.Gide = pack.Gids + pack.Nmb - 1
	pack.Nghbr = make([][]NeighborBlock, pack.Nmb)
	pack.Loc = make([]LogicalLocation, pack.Nmb)
	for mb := 0; mb < pack.Nmb; mb++ {
		gid := m.GlobalID(rank, mb)
		pack.Loc[mb] = m.Location(gid)
		pack.Nghbr[mb] = make([]NeighborBlock, m.Indcs.Nnghbr)
		for n := 0; n < m.Indcs.Nnghbr; n++ {
			pack.Nghbr[mb][n] = m.Neighbor(gid, n)
		}
	}
	return
}
