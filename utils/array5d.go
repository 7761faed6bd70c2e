package utils

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Array5D is the cell centered state of every block in a pack, stored flat and
// indexed (m, v, k, j, i) with i fastest. Nmb and Nvar are read from the array
// itself, so nothing downstream assumes a variable count.
type Array5D struct {
	Nmb, Nvar, Nx3, Nx2, Nx1 int
	Data                     []float64
}

func NewArray5D(nmb, nvar, nx3, nx2, nx1 int) (a *Array5D) {
	if nmb < 0 || nvar < 1 || nx3 < 1 || nx2 < 1 || nx1 < 1 {
		panic(fmt.Errorf("invalid array dimensions (%d,%d,%d,%d,%d)",
			nmb, nvar, nx3, nx2, nx1))
	}
	a = &Array5D{
		Nmb:  nmb,
		Nvar: nvar,
		Nx3:  nx3,
		Nx2:  nx2,
		Nx1:  nx1,
		Data: make([]float64, nmb*nvar*nx3*nx2*nx1),
	}
	return
}

func (a *Array5D) Dims() (nmb, nvar, nx3, nx2, nx1 int) {
	return a.Nmb, a.Nvar, a.Nx3, a.Nx2, a.Nx1
}

func (a *Array5D) Index(m, v, k, j, i int) int {
	return i + a.Nx1*(j+a.Nx2*(k+a.Nx3*(v+a.Nvar*m)))
}

func (a *Array5D) At(m, v, k, j, i int) float64 {
	return a.Data[a.Index(m, v, k, j, i)]
}

func (a *Array5D) Set(m, v, k, j, i int, val float64) {
	a.Data[a.Index(m, v, k, j, i)] = val
}

// Block returns the storage of block m, all variables, as a sub slice
func (a *Array5D) Block(m int) []float64 {
	size := a.Nvar * a.Nx3 * a.Nx2 * a.Nx1
	return a.Data[m*size : (m+1)*size]
}

// Row returns the i-contiguous row at (m, v, k, j)
func (a *Array5D) Row(m, v, k, j int) []float64 {
	ind := a.Index(m, v, k, j, 0)
	return a.Data[ind : ind+a.Nx1]
}

func (a *Array5D) Fill(val float64) {
	for i := range a.Data {
		a.Data[i] = val
	}
}

func (a *Array5D) Copy() (b *Array5D) {
	b = NewArray5D(a.Dims())
	copy(b.Data, a.Data)
	return
}

func (a *Array5D) SameShape(b *Array5D) bool {
	return a.Nmb == b.Nmb && a.Nvar == b.Nvar &&
		a.Nx3 == b.Nx3 && a.Nx2 == b.Nx2 && a.Nx1 == b.Nx1
}

// Equal is a bit exact comparison
func (a *Array5D) Equal(b *Array5D) bool {
	return a.SameShape(b) && floats.Equal(a.Data, b.Data)
}

// BlockNorm is the L2 norm of block m over all variables and cells
func (a *Array5D) BlockNorm(m int) float64 {
	return floats.Norm(a.Block(m), 2)
}
