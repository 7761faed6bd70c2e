// Package comm moves halo buffers between ranks with non-blocking point to
// point transfers. Every transfer is identified by (source rank, tag), and
// transfers with the same (source, tag) are matched to receives in the order
// they were issued.
package comm

import (
	"context"
	"sync"

	"github.com/notargets/halo/types"
)

// Communicator is one rank's view of the network. It is the execution context
// handed to every exchange call in place of any global rank state.
type Communicator interface {
	Rank() int
	Size() int
	// Isend starts a transfer of data to dest. data must not be modified until
	// the returned request completes.
	Isend(data []float64, dest int, tag types.MPITag) (Request, error)
	// Irecv posts a receive into buf of a transfer from source. buf must hold
	// exactly the number of values sent.
	Irecv(buf []float64, source int, tag types.MPITag) (Request, error)
}

// Request is a handle on one outstanding transfer
type Request interface {
	// Test reports completion without blocking. Once true it stays true.
	Test() (done bool, err error)
	// Wait blocks until completion or until ctx is done
	Wait(ctx context.Context) error
}

type request struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newRequest() *request {
	return &request{done: make(chan struct{})}
}

func (r *request) complete(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

func (r *request) Test() (done bool, err error) {
	select {
	case <-r.done:
		return true, r.err
	default:
		return false, nil
	}
}

func (r *request) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitAll blocks on every non nil request and returns the first error
func WaitAll(ctx context.Context, reqs ...Request) (err error) {
	for _, r := range reqs {
		if r == nil {
			continue
		}
		if e := r.Wait(ctx); e != nil && err == nil {
			err = e
		}
	}
	return
}
