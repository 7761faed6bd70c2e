package mesh

import "fmt"

// RegionIndcs holds the cell counts and interior bounds of one mesh block.
// Bounds are inclusive and in the block's local frame, which includes Ng ghost
// cells on either side of every active axis. Inactive axes have Nx == 1 and
// s == e == 0.
type RegionIndcs struct {
	Ng            int
	Nx1, Nx2, Nx3 int
	Is, Ie        int
	Js, Je        int
	Ks, Ke        int
	Ndim, Nnghbr  int
}

func NewRegionIndcs(nx1, nx2, nx3, ng int) (indcs RegionIndcs) {
	indcs = RegionIndcs{Ng: ng, Nx1: nx1, Nx2: nx2, Nx3: nx3}
	indcs.Ndim = 1
	if nx2 > 1 {
		indcs.Ndim = 2
	}
	if nx3 > 1 {
		indcs.Ndim = 3
	}
	indcs.Is, indcs.Ie = ng, ng+nx1-1
	if indcs.Ndim > 1 {
		indcs.Js, indcs.Je = ng, ng+nx2-1
	}
	if indcs.Ndim > 2 {
		indcs.Ks, indcs.Ke = ng, ng+nx3-1
	}
	indcs.Nnghbr = NumNeighbors(indcs.Ndim)
	return
}

// Cells returns the ghost inclusive extent of a block along each axis
func (indcs RegionIndcs) Cells() (ncells3, ncells2, ncells1 int) {
	ncells1 = indcs.Nx1 + 2*indcs.Ng
	ncells2, ncells3 = 1, 1
	if indcs.Ndim > 1 {
		ncells2 = indcs.Nx2 + 2*indcs.Ng
	}
	if indcs.Ndim > 2 {
		ncells3 = indcs.Nx3 + 2*indcs.Ng
	}
	return
}

// Check rejects block shapes the fixed halo geometry cannot express: a halo
// as wide as the interior would make the face boxes of opposite sides overlap.
func (indcs RegionIndcs) Check() (err error) {
	if indcs.Ng < 1 {
		return fmt.Errorf("ghost width must be at least 1, have %d", indcs.Ng)
	}
	nx := [3]int{indcs.Nx1, indcs.Nx2, indcs.Nx3}
	for axis := 0; axis < 3; axis++ {
		if nx[axis] < 1 {
			return fmt.Errorf("block extent along x%d must be positive, have %d",
				axis+1, nx[axis])
		}
		if axis < indcs.Ndim && indcs.Ng >= nx[axis] {
			return fmt.Errorf("ghost width %d must be smaller than block extent %d along x%d",
				indcs.Ng, nx[axis], axis+1)
		}
	}
	if indcs.Ndim == 2 && indcs.Nx3 != 1 || indcs.Ndim == 1 && (indcs.Nx2 != 1 || indcs.Nx3 != 1) {
		return fmt.Errorf("block extents (%d,%d,%d) do not match %dD",
			indcs.Nx1, indcs.Nx2, indcs.Nx3, indcs.Ndim)
	}
	if indcs.Nnghbr != NumNeighbors(indcs.Ndim) {
		return fmt.Errorf("%dD blocks need %d neighbor slots, have %d",
			indcs.Ndim, NumNeighbors(indcs.Ndim), indcs.Nnghbr)
	}
	return
}
