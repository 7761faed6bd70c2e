package comm

import (
	"fmt"
	"sync"

	"github.com/eapache/queue"

	"github.com/notargets/halo/types"
)

// LocalNetwork connects Size ranks living in one process, one goroutine per
// rank. It stands in for a message passing layer when several ranks are
// simulated in a single process.
//
// In deferred mode sends stay in flight until Flush is called, which makes the
// partially complete states of an exchange reproducible.
type LocalNetwork struct {
	size     int
	matchers []*matcher

	mu       sync.Mutex
	deferred bool
	inFlight *queue.Queue // of *localMsg
}

type localMsg struct {
	source, dest int
	tag          types.MPITag
	data         []float64
	req          *request
}

func NewLocalNetwork(size int) (ln *LocalNetwork) {
	if size < 1 {
		panic(fmt.Errorf("network size must be positive, have %d", size))
	}
	ln = &LocalNetwork{
		size:     size,
		matchers: make([]*matcher, size),
		inFlight: queue.New(),
	}
	for r := 0; r < size; r++ {
		ln.matchers[r] = newMatcher()
	}
	return
}

func (ln *LocalNetwork) Size() int { return ln.size }

// Comm returns the communicator of one rank
func (ln *LocalNetwork) Comm(rank int) Communicator {
	if rank < 0 || rank >= ln.size {
		panic(fmt.Errorf("rank %d out of range [0,%d)", rank, ln.size))
	}
	return &localComm{net: ln, rank: rank}
}

func (ln *LocalNetwork) SetDeferred(deferred bool) {
	ln.mu.Lock()
	ln.deferred = deferred
	ln.mu.Unlock()
	if !deferred {
		ln.Flush()
	}
}

// Flush delivers every message held in deferred mode, in send order
func (ln *LocalNetwork) Flush() (n int) {
	ln.mu.Lock()
	var msgs []*localMsg
	for ln.inFlight.Length() > 0 {
		msg := ln.inFlight.Remove().(*localMsg)
		ln.matchers[msg.dest].deliver(msg.source, msg.tag, msg.data)
		msgs = append(msgs, msg)
	}
	ln.mu.Unlock()
	for _, msg := range msgs {
		msg.req.complete(nil)
	}
	return len(msgs)
}

// InFlight is the number of sends held back in deferred mode
func (ln *LocalNetwork) InFlight() int {
	ln.mu.Lock()
	defer ln.mu.Unlock()
	return ln.inFlight.Length()
}

// Pending reports posted receives and unmatched messages on one rank
func (ln *LocalNetwork) Pending(rank int) (posted, unexpected int) {
	return ln.matchers[rank].pending()
}

type localComm struct {
	net  *LocalNetwork
	rank int
}

func (lc *localComm) Rank() int { return lc.rank }

func (lc *localComm) Size() int { return lc.net.size }

func (lc *localComm) Isend(data []float64, dest int, tag types.MPITag) (Request, error) {
	if dest < 0 || dest >= lc.net.size {
		return nil, fmt.Errorf("rank %d cannot send to rank %d, network size is %d",
			lc.rank, dest, lc.net.size)
	}
	msg := &localMsg{
		source: lc.rank,
		dest:   dest,
		tag:    tag,
		data:   make([]float64, len(data)),
		req:    newRequest(),
	}
	copy(msg.data, data)
	// Delivery happens under the network lock so a Flush can never be
	// overtaken by a later send
	lc.net.mu.Lock()
	if lc.net.deferred || lc.net.inFlight.Length() > 0 {
		lc.net.inFlight.Add(msg)
		lc.net.mu.Unlock()
		return msg.req, nil
	}
	lc.net.matchers[dest].deliver(lc.rank, tag, msg.data)
	lc.net.mu.Unlock()
	msg.req.complete(nil)
	return msg.req, nil
}

func (lc *localComm) Irecv(buf []float64, source int, tag types.MPITag) (Request, error) {
	if source < 0 || source >= lc.net.size {
		return nil, fmt.Errorf("rank %d cannot receive from rank %d, network size is %d",
			lc.rank, source, lc.net.size)
	}
	return lc.net.matchers[lc.rank].post(buf, source, tag), nil
}
