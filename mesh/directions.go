package mesh

import "fmt"

// Direction is the logical offset (ox1, ox2, ox3) from a block to one of its
// neighbors, each component in {-1, 0, 1}
type Direction [3]int

/*
Directions is the fixed ordering of neighbor slots. Buffers, neighbor lists and
transfer tags all address slots by position in this table, so the order can
never be permuted:

	 0- 1  x1 faces
	 2- 3  x2 faces
	 4- 7  x1x2 edges
	 8- 9  x3 faces
	10-13  x3x1 edges
	14-17  x2x3 edges
	18-25  corners, x1 fastest

1D uses the first 2 slots, 2D the first 8 and 3D all 26.
*/
var Directions = [26]Direction{
	{-1, 0, 0}, {1, 0, 0},
	{0, -1, 0}, {0, 1, 0},
	{-1, -1, 0}, {1, -1, 0}, {-1, 1, 0}, {1, 1, 0},
	{0, 0, -1}, {0, 0, 1},
	{-1, 0, -1}, {1, 0, -1}, {-1, 0, 1}, {1, 0, 1},
	{0, -1, -1}, {0, 1, -1}, {0, -1, 1}, {0, 1, 1},
	{-1, -1, -1}, {1, -1, -1}, {-1, 1, -1}, {1, 1, -1},
	{-1, -1, 1}, {1, -1, 1}, {-1, 1, 1}, {1, 1, 1},
}

var opposite [26]int

func init() {
	for n, d := range Directions {
		opposite[n] = -1
		for nn, dd := range Directions {
			if dd[0] == -d[0] && dd[1] == -d[1] && dd[2] == -d[2] {
				opposite[n] = nn
				break
			}
		}
		if opposite[n] < 0 {
			panic(fmt.Errorf("direction %d has no opposite", n))
		}
	}
}

// Opposite is the slot that points back at the sender from the receiver's side
func Opposite(n int) int {
	return opposite[n]
}

func NumNeighbors(ndim int) int {
	switch ndim {
	case 1:
		return 2
	case 2:
		return 8
	case 3:
		return 26
	}
	panic(fmt.Errorf("unsupported dimensionality %d", ndim))
}
