package types

import "fmt"

const (
	TagKeyBits   = 5
	TagBufIDBits = 6
	TagLIDBits   = 20

	MaxTagKey   = 1<<TagKeyBits - 1
	MaxTagBufID = 1<<TagBufIDBits - 1
	MaxTagLID   = 1<<TagLIDBits - 1
)

/*
MPITag identifies one point to point transfer. Both ends compute it on their
own from the *receiving* block, so the packing below must never change:

	tag = lid<<11 | bufid<<5 | key

lid is the receiver's local block id, bufid is the receiver's buffer slot and
key is the logical channel. The result stays below 2^31.
*/
type MPITag int32

func NewMPITag(lid, bufid, key int) (tag MPITag) {
	if lid < 0 || lid > MaxTagLID {
		panic(fmt.Errorf("local id %d does not fit in %d tag bits", lid, TagLIDBits))
	}
	if bufid < 0 || bufid > MaxTagBufID {
		panic(fmt.Errorf("buffer id %d does not fit in %d tag bits", bufid, TagBufIDBits))
	}
	if key < 0 || key > MaxTagKey {
		panic(fmt.Errorf("channel key %d does not fit in %d tag bits", key, TagKeyBits))
	}
	tag = MPITag(lid<<(TagBufIDBits+TagKeyBits) | bufid<<TagKeyBits | key)
	return
}

func (tag MPITag) GetFields() (lid, bufid, key int) {
	t := int(tag)
	key = t & MaxTagKey
	bufid = (t >> TagKeyBits) & MaxTagBufID
	lid = t >> (TagBufIDBits + TagKeyBits)
	return
}
