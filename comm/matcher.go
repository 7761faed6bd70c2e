package comm

import (
	"fmt"
	"sync"

	"github.com/eapache/queue"

	"github.com/notargets/halo/types"
)

type msgKey struct {
	source int
	tag    types.MPITag
}

type postedRecv struct {
	buf []float64
	req *request
}

// matcher pairs arriving messages with posted receives. Messages that arrive
// before their receive is posted wait in a FIFO per (source, tag), as do
// receives posted before their message arrives.
type matcher struct {
	mu         sync.Mutex
	posted     map[msgKey]*queue.Queue // of *postedRecv
	unexpected map[msgKey]*queue.Queue // of []float64
}

func newMatcher() *matcher {
	return &matcher{
		posted:     make(map[msgKey]*queue.Queue),
		unexpected: make(map[msgKey]*queue.Queue),
	}
}

func pop(qs map[msgKey]*queue.Queue, key msgKey) (val interface{}, ok bool) {
	q, exists := qs[key]
	if !exists || q.Length() == 0 {
		return nil, false
	}
	val = q.Remove()
	if q.Length() == 0 {
		delete(qs, key)
	}
	return val, true
}

func push(qs map[msgKey]*queue.Queue, key msgKey, val interface{}) {
	q, exists := qs[key]
	if !exists {
		q = queue.New()
		qs[key] = q
	}
	q.Add(val)
}

// deliver hands a message to the matcher, which takes ownership of data
func (mt *matcher) deliver(source int, tag types.MPITag, data []float64) {
	key := msgKey{source, tag}
	mt.mu.Lock()
	val, ok := pop(mt.posted, key)
	if !ok {
		push(mt.unexpected, key, data)
		mt.mu.Unlock()
		return
	}
	mt.mu.Unlock()
	pr := val.(*postedRecv)
	pr.req.complete(fill(pr.buf, data, source, tag))
}

func (mt *matcher) post(buf []float64, source int, tag types.MPITag) (req *request) {
	key := msgKey{source, tag}
	req = newRequest()
	mt.mu.Lock()
	val, ok := pop(mt.unexpected, key)
	if !ok {
		push(mt.posted, key, &postedRecv{buf: buf, req: req})
		mt.mu.Unlock()
		return
	}
	mt.mu.Unlock()
	req.complete(fill(buf, val.([]float64), source, tag))
	return
}

// pending reports the number of posted receives and unmatched messages
func (mt *matcher) pending() (posted, unexpected int) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	for _, q := range mt.posted {
		posted += q.Length()
	}
	for _, q := range mt.unexpected {
		unexpected += q.Length()
	}
	return
}

func fill(buf, data []float64, source int, tag types.MPITag) error {
	if len(buf) != len(data) {
		lid, bufid, key := tag.GetFields()
		return fmt.Errorf("message of %d values from rank %d (lid %d, slot %d, key %d) does not fit a receive of %d",
			len(data), source, lid, bufid, key, len(buf))
	}
	copy(buf, data)
	return nil
}
