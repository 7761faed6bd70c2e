package driver

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/halo/mesh"
	"github.com/notargets/halo/utils"
)

// Unset marks cells nothing has written, ghosts across a physical boundary
// keep it forever
const Unset = -1.

// FieldValue is unique per (variable, global cell) within a cycle and differs
// from the previous cycle's value, so a misplaced or stale ghost shows up in
// the comparison
func FieldValue(msh *mesh.Mesh, cycle, v, gk, gj, gi int) float64 {
	nx := msh.Config.Nx
	idx := gi + nx[0]*(gj+nx[1]*(gk+nx[2]*v))
	return float64(idx) + float64(cycle%1024)/1024
}

// ExpectedValue is the content of cell (k, j, i) of the block at loc after the
// exchange of cycle. Cells beyond a periodic face wrap, cells beyond any other
// face are Unset.
func ExpectedValue(msh *mesh.Mesh, loc mesh.LogicalLocation, cycle, v, k, j, i int) float64 {
	g, ok := msh.GlobalCell(loc, k, j, i)
	if !ok {
		return Unset
	}
	return FieldValue(msh, cycle, v, g[2], g[1], g[0])
}

// SeedInterior writes the interior of every block for cycle and leaves the
// ghosts alone
func SeedInterior(msh *mesh.Mesh, pack *mesh.MeshBlockPack, a *utils.Array5D, cycle int) {
	indcs := pack.Indcs
	for m := 0; m < pack.Nmb; m++ {
		loc := pack.Loc[m]
		for v := 0; v < a.Nvar; v++ {
			for k := indcs.Ks; k <= indcs.Ke; k++ {
				for j := indcs.Js; j <= indcs.Je; j++ {
					row := a.Row(m, v, k, j)
					for i := indcs.Is; i <= indcs.Ie; i++ {
						g, _ := msh.GlobalCell(loc, k, j, i)
						row[i] = FieldValue(msh, cycle, v, g[2], g[1], g[0])
					}
				}
			}
		}
	}
}

// CheckHalo compares every cell of the pack against ExpectedValue. It returns
// the number of mismatched cells and the max norm of the difference.
func CheckHalo(msh *mesh.Mesh, pack *mesh.MeshBlockPack, a *utils.Array5D, cycle int) (nbad int, errMax float64) {
	var (
		got  = make([]float64, 0, a.Nx1)
		want = make([]float64, a.Nx1)
	)
	for m := 0; m < a.Nmb; m++ {
		for v := 0; v < a.Nvar; v++ {
			for k := 0; k < a.Nx3; k++ {
				for j := 0; j < a.Nx2; j++ {
					row := a.Row(m, v, k, j)
					for i := range want {
						want[i] = ExpectedValue(msh, pack.Loc[m], cycle, v, k, j, i)
					}
					if floats.Equal(row, want) {
						continue
					}
					got = append(got[:0], row...)
					floats.Sub(got, want)
					errMax = math.Max(errMax, floats.Norm(got, math.Inf(1)))
					for i := range got {
						if got[i] != 0 {
							nbad++
						}
					}
				}
			}
		}
	}
	return
}
