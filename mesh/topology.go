package mesh

import (
	"fmt"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// Connectivity returns the block adjacency matrix of the mesh: entry (g, h)
// counts the slots of block g whose neighbor is block h
func (m *Mesh) Connectivity() (C *sparse.CSR) {
	dok := sparse.NewDOK(m.NmbTotal, m.NmbTotal)
	for gid := 0; gid < m.NmbTotal; gid++ {
		for n := 0; n < m.Indcs.Nnghbr; n++ {
			nb := m.Neighbor(gid, n)
			if !nb.Exists() {
				continue
			}
			dok.Set(gid, nb.Gid, dok.At(gid, nb.Gid)+1)
		}
	}
	return dok.ToCSR()
}

// RankTraffic returns the rank by rank matrix whose entry (r, s) counts the
// slots of blocks on rank r whose neighbor lives on rank s. Off diagonal
// entries are the transfers one exchange puts on the network.
func (m *Mesh) RankTraffic() *mat.Dense {
	var (
		nr  = m.NRanks()
		own = sparse.NewDOK(m.NmbTotal, nr)
	)
	for gid, rank := range m.Ranklist {
		own.Set(gid, rank, 1)
	}
	P := own.ToCSR()
	CP := sparse.NewCSR(m.NmbTotal, nr, nil, nil, nil)
	CP.Mul(m.Connectivity(), P)
	T := sparse.NewCSR(nr, nr, nil, nil, nil)
	T.Mul(P.T(), CP)
	return mat.DenseCopyOf(T)
}

// EdgeCut is the number of cross rank transfers in one exchange
func (m *Mesh) EdgeCut() (cut int) {
	T := m.RankTraffic()
	nr, _ := T.Dims()
	for r := 0; r < nr; r++ {
		cut += int(mat.Sum(T.RowView(r)) - T.At(r, r))
	}
	return
}

// ValidateTopology checks that every neighbor relation is reciprocal: each
// slot's destination must point straight back at the sender, so every
// transfer is matched by exactly one receive.
func (m *Mesh) ValidateTopology() (err error) {
	for gid := 0; gid < m.NmbTotal; gid++ {
		for n := 0; n < m.Indcs.Nnghbr; n++ {
			nb := m.Neighbor(gid, n)
			if !nb.Exists() {
				continue
			}
			back := m.Neighbor(nb.Gid, nb.Destn)
			if back.Gid != gid || back.Destn != n {
				return fmt.Errorf("block %d slot %d reaches block %d, whose slot %d leads to block %d slot %d",
					gid, n, nb.Gid, nb.Destn, back.Gid, back.Destn)
			}
		}
	}
	return
}
