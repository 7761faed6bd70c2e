package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypes(t *testing.T) {
	{ // Test packed tag for transfer labeling
		tag := NewMPITag(0, 0, 0)
		assert.Equal(t, MPITag(0), tag)

		tag = NewMPITag(1, 0, 0)
		assert.Equal(t, MPITag(1<<11), tag)

		tag = NewMPITag(0, 1, 0)
		assert.Equal(t, MPITag(1<<5), tag)

		tag = NewMPITag(3, 25, 7)
		assert.Equal(t, MPITag(3<<11|25<<5|7), tag)
		lid, bufid, key := tag.GetFields()
		assert.Equal(t, [3]int{3, 25, 7}, [3]int{lid, bufid, key})

		// Test maximum indices
		tag = NewMPITag(MaxTagLID, MaxTagBufID, MaxTagKey)
		lid, bufid, key = tag.GetFields()
		assert.Equal(t, [3]int{MaxTagLID, MaxTagBufID, MaxTagKey}, [3]int{lid, bufid, key})
		assert.True(t, tag > 0)

		assert.Panics(t, func() { NewMPITag(-1, 0, 0) })
		assert.Panics(t, func() { NewMPITag(0, 64, 0) })
		assert.Panics(t, func() { NewMPITag(0, 0, 32) })
		assert.Panics(t, func() { NewMPITag(MaxTagLID+1, 0, 0) })
	}
	{ // Tags are unique over every (lid, slot, key) in use
		seen := make(map[MPITag]bool)
		for lid := 0; lid < 64; lid++ {
			for bufid := 0; bufid < 26; bufid++ {
				for key := 0; key < 4; key++ {
					tag := NewMPITag(lid, bufid, key)
					assert.False(t, seen[tag])
					seen[tag] = true
				}
			}
		}
	}
	{ // Boundary flags
		assert.Equal(t, BC_Periodic, NewBCFLAG("Periodic"))
		assert.Equal(t, BC_Outflow, NewBCFLAG(" out "))
		assert.Equal(t, BC_None, NewBCFLAG("bogus"))
		assert.Equal(t, "outflow", BC_Outflow.String())
	}
	{ // Status strings
		assert.Equal(t, "complete", TaskComplete.String())
		assert.Equal(t, "incomplete", TaskIncomplete.String())
		assert.Equal(t, "waiting", BoundaryWaiting.String())
		assert.Equal(t, "received", BoundaryReceived.String())
	}
}
