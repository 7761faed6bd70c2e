package comm

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/rs/zerolog/log"

	"github.com/notargets/halo/types"
)

const (
	frameHeaderBytes = 12
	// MaxFrameValues bounds the payload of one frame, larger headers are
	// treated as a corrupt stream
	MaxFrameValues = 1 << 24
	dialRetryLimit = 100
	dialRetryDelay = 50 * time.Millisecond
)

/*
TCPNetwork is a Communicator that carries each transfer as one frame on a TCP
connection:

	source int32 | tag int32 | count uint32 | count x float64

all little endian. Each peer gets one outbound connection drained by a single
writer goroutine, so frames to a peer leave in the order they were sent. The
outbound queue is unbounded, so Isend never waits on a dial or a slow peer.
Inbound connections are read by one goroutine each and handed to the matcher.
*/
type TCPNetwork struct {
	rank  int
	addrs []string
	ln    net.Listener
	m     *matcher

	mu      sync.Mutex
	sendMu  sync.RWMutex // Held for write only while closing the outbound queues
	peers   map[int]*tcpPeer
	inbound []net.Conn
	closed  bool
	writers sync.WaitGroup
	readers sync.WaitGroup
}

type outFrame struct {
	tag  types.MPITag
	data []float64
	req  *request
}

type tcpPeer struct {
	rank   int
	mu     sync.Mutex
	out    *queue.Queue // of *outFrame
	ready  chan struct{}
	closed bool
}

func newTCPPeer(rank int) *tcpPeer {
	return &tcpPeer{rank: rank, out: queue.New(), ready: make(chan struct{}, 1)}
}

func (p *tcpPeer) signal() {
	select {
	case p.ready <- struct{}{}:
	default:
	}
}

func (p *tcpPeer) push(f *outFrame) {
	p.mu.Lock()
	p.out.Add(f)
	p.mu.Unlock()
	p.signal()
}

func (p *tcpPeer) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.signal()
}

// next blocks until a frame is queued. It returns false once the peer is
// closed and every queued frame has been handed out.
func (p *tcpPeer) next() (f *outFrame, ok bool) {
	for {
		p.mu.Lock()
		if p.out.Length() > 0 {
			f = p.out.Remove().(*outFrame)
			p.mu.Unlock()
			return f, true
		}
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return nil, false
		}
		<-p.ready
	}
}

// ListenTCP binds the listener for rank. Peers are attached with Connect once
// every rank's address is known.
func ListenTCP(rank int, addr string) (tn *TCPNetwork, err error) {
	var ln net.Listener
	if ln, err = net.Listen("tcp", addr); err != nil {
		return nil, fmt.Errorf("rank %d listen on %s: %w", rank, addr, err)
	}
	tn = &TCPNetwork{
		rank:  rank,
		ln:    ln,
		m:     newMatcher(),
		peers: make(map[int]*tcpPeer),
	}
	tn.readers.Add(1)
	go tn.accept()
	return
}

func (tn *TCPNetwork) Addr() string { return tn.ln.Addr().String() }

// Connect records the address of every rank, indexed by rank. Connections are
// dialed on first use.
func (tn *TCPNetwork) Connect(addrs []string) error {
	if tn.rank >= len(addrs) {
		return fmt.Errorf("rank %d missing from %d addresses", tn.rank, len(addrs))
	}
	tn.mu.Lock()
	tn.addrs = append([]string(nil), addrs...)
	tn.mu.Unlock()
	return nil
}

func (tn *TCPNetwork) Rank() int { return tn.rank }

func (tn *TCPNetwork) Size() int {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	return len(tn.addrs)
}

func (tn *TCPNetwork) Isend(data []float64, dest int, tag types.MPITag) (Request, error) {
	size := tn.Size()
	if dest < 0 || dest >= size {
		return nil, fmt.Errorf("rank %d cannot send to rank %d, network size is %d",
			tn.rank, dest, size)
	}
	if len(data) > MaxFrameValues {
		return nil, fmt.Errorf("message of %d values is too large for one frame, limit is %d",
			len(data), MaxFrameValues)
	}
	payload := make([]float64, len(data))
	copy(payload, data)
	req := newRequest()
	if dest == tn.rank {
		tn.m.deliver(tn.rank, tag, payload)
		req.complete(nil)
		return req, nil
	}
	tn.sendMu.RLock()
	defer tn.sendMu.RUnlock()
	peer, err := tn.peer(dest)
	if err != nil {
		return nil, err
	}
	peer.push(&outFrame{tag: tag, data: payload, req: req})
	return req, nil
}

func (tn *TCPNetwork) Irecv(buf []float64, source int, tag types.MPITag) (Request, error) {
	size := tn.Size()
	if source < 0 || source >= size {
		return nil, fmt.Errorf("rank %d cannot receive from rank %d, network size is %d",
			tn.rank, source, size)
	}
	return tn.m.post(buf, source, tag), nil
}

// Close drains the outbound queues, stops accepting and closes every
// connection
func (tn *TCPNetwork) Close() (err error) {
	tn.sendMu.Lock()
	tn.mu.Lock()
	if tn.closed {
		tn.mu.Unlock()
		tn.sendMu.Unlock()
		return nil
	}
	tn.closed = true
	for _, p := range tn.peers {
		p.close()
	}
	tn.mu.Unlock()
	tn.sendMu.Unlock()
	tn.writers.Wait()
	err = tn.ln.Close()
	tn.mu.Lock()
	for _, c := range tn.inbound {
		_ = c.Close()
	}
	tn.mu.Unlock()
	tn.readers.Wait()
	return
}

func (tn *TCPNetwork) peer(dest int) (p *tcpPeer, err error) {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	if tn.closed {
		return nil, fmt.Errorf("rank %d network is closed", tn.rank)
	}
	var ok bool
	if p, ok = tn.peers[dest]; ok {
		return
	}
	p = newTCPPeer(dest)
	tn.peers[dest] = p
	tn.writers.Add(1)
	go tn.write(p, tn.addrs[dest])
	return
}

func (tn *TCPNetwork) dial(addr string) (conn net.Conn, err error) {
	for try := 0; try < dialRetryLimit; try++ {
		if conn, err = net.Dial("tcp", addr); err == nil {
			return
		}
		time.Sleep(dialRetryDelay)
	}
	return nil, fmt.Errorf("rank %d dial %s: %w", tn.rank, addr, err)
}

func (tn *TCPNetwork) write(p *tcpPeer, addr string) {
	defer tn.writers.Done()
	conn, err := tn.dial(addr)
	if err != nil {
		log.Error().Err(err).Int("rank", tn.rank).Int("peer", p.rank).Msg("peer unreachable")
		for f, ok := p.next(); ok; f, ok = p.next() {
			f.req.complete(err)
		}
		return
	}
	w := bufio.NewWriter(conn)
	for f, ok := p.next(); ok; f, ok = p.next() {
		if err == nil {
			if err = writeFrame(w, tn.rank, f.tag, f.data); err == nil {
				err = w.Flush()
			}
			if err != nil {
				err = fmt.Errorf("rank %d send to rank %d: %w", tn.rank, p.rank, err)
			}
		}
		f.req.complete(err)
	}
	_ = conn.Close()
}

func (tn *TCPNetwork) accept() {
	defer tn.readers.Done()
	for {
		conn, err := tn.ln.Accept()
		if err != nil {
			return
		}
		tn.mu.Lock()
		tn.inbound = append(tn.inbound, conn)
		tn.mu.Unlock()
		tn.readers.Add(1)
		go tn.read(conn)
	}
}

func (tn *TCPNetwork) read(conn net.Conn) {
	defer tn.readers.Done()
	r := bufio.NewReader(conn)
	for {
		source, tag, data, err := readFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warn().Err(err).Int("rank", tn.rank).Msg("dropping inbound connection")
			}
			return
		}
		tn.m.deliver(source, tag, data)
	}
}

func writeFrame(w io.Writer, source int, tag types.MPITag, data []float64) (err error) {
	buf := make([]byte, frameHeaderBytes+8*len(data))
	binary.LittleEndian.PutUint32(buf[0:], uint32(int32(source)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(tag))
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(data)))
	for i, v := range data {
		binary.LittleEndian.PutUint64(buf[frameHeaderBytes+8*i:], math.Float64bits(v))
	}
	_, err = w.Write(buf)
	return
}

func readFrame(r io.Reader) (source int, tag types.MPITag, data []float64, err error) {
	var hdr [frameHeaderBytes]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return
	}
	source = int(int32(binary.LittleEndian.Uint32(hdr[0:])))
	tag = types.MPITag(int32(binary.LittleEndian.Uint32(hdr[4:])))
	count := binary.LittleEndian.Uint32(hdr[8:])
	if count > MaxFrameValues {
		err = fmt.Errorf("frame from rank %d claims %d values, limit is %d", source, count, MaxFrameValues)
		return
	}
	payload := make([]byte, 8*int(count))
	if _, err = io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return
	}
	data = make([]float64, count)
	for i := range data {
		data[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[8*i:]))
	}
	return
}
