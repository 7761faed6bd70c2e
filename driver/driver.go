// Package driver runs halo exchanges on every rank of a mesh and checks the
// ghost cells they produce
package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/halo/bvals"
	"github.com/notargets/halo/comm"
	"github.com/notargets/halo/mesh"
	"github.com/notargets/halo/tasklist"
	"github.com/notargets/halo/types"
	"github.com/notargets/halo/utils"
)

type Transport uint8

const (
	TransportLocal Transport = iota
	TransportTCP
)

var TransportNameMap = map[string]Transport{
	"local": TransportLocal,
	"tcp":   TransportTCP,
}

func NewTransport(label string) (t Transport, err error) {
	var ok bool
	if t, ok = TransportNameMap[label]; !ok {
		err = fmt.Errorf("unknown transport %q, use local or tcp", label)
	}
	return
}

func (t Transport) String() string {
	for name, tt := range TransportNameMap {
		if tt == t {
			return name
		}
	}
	return fmt.Sprintf("Transport(%d)", uint8(t))
}

type Config struct {
	Mesh      mesh.Config
	Nvar      int
	Cycles    int
	ProcLimit int // Goroutines per rank for packing, 0 is one per CPU
	Transport Transport
	Host      string // Listen host for the tcp transport
	Timeout   time.Duration
}

type RankReport struct {
	Rank       int
	Nmb        int
	Sweeps     int // Task list sweeps over all cycles
	BadCells   int
	ErrMax     float64
	BlockNorms []float64 // L2 norm of each block after the last cycle
	Stats      map[string]int
	Elapsed    time.Duration
}

type Report struct {
	Config  Config
	Ranks   []RankReport
	EdgeCut int // Cross rank transfers per exchange
	Elapsed time.Duration
}

func (r *Report) BadCells() (n int) {
	for _, rr := range r.Ranks {
		n += rr.BadCells
	}
	return
}

// Checksum sums the block norms of every rank, it depends only on the mesh
// and cycle count and never on the rank layout
func (r *Report) Checksum() (sum float64) {
	for _, rr := range r.Ranks {
		sum += floats.Sum(rr.BlockNorms)
	}
	return
}

func (r *Report) Print() {
	cfg := r.Config
	fmt.Printf("%v\t\t= Mesh cells\n", cfg.Mesh.Nx)
	fmt.Printf("%v\t\t= Block cells\n", cfg.Mesh.BlockNx)
	fmt.Printf("[%d]\t\t\t= Ghost cells\n", cfg.Mesh.NGhost)
	fmt.Printf("[%d]\t\t\t= Ranks\n", cfg.Mesh.NRanks)
	fmt.Printf("[%s]\t\t\t= Transport\n", cfg.Transport)
	fmt.Printf("[%d]\t\t\t= Cycles\n", cfg.Cycles)
	fmt.Printf("[%d]\t\t\t= Cross rank transfers per exchange\n", r.EdgeCut)
	for _, rr := range r.Ranks {
		fmt.Printf("rank %4d: %4d blocks, %6d sweeps, %d bad cells, max error %8.5g, %v\n",
			rr.Rank, rr.Nmb, rr.Sweeps, rr.BadCells, rr.ErrMax, rr.Elapsed)
	}
	fmt.Printf("%16.8e\t= Checksum\n", r.Checksum())
	fmt.Printf("%v\t= Elapsed\n", r.Elapsed)
}

// Run builds the mesh, attaches one communicator per rank and runs every rank
// in its own goroutine. The first rank to fail cancels the rest.
func Run(ctx context.Context, cfg Config) (r *Report, err error) {
	var (
		msh     *mesh.Mesh
		comms   []comm.Communicator
		closeFn func() error
		start   = time.Now()
	)
	if cfg.Nvar < 1 {
		cfg.Nvar = 1
	}
	if cfg.Cycles < 1 {
		cfg.Cycles = 1
	}
	if msh, err = mesh.NewMesh(cfg.Mesh); err != nil {
		return
	}
	cfg.Mesh = msh.Config
	if comms, closeFn, err = connect(cfg, msh.NRanks()); err != nil {
		return
	}
	defer func() {
		if cerr := closeFn(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	cut := msh.EdgeCut()
	log.Info().Ints("nx", cfg.Mesh.Nx[:]).Ints("block", cfg.Mesh.BlockNx[:]).
		Int("nmb", msh.NmbTotal).Int("ranks", msh.NRanks()).Str("transport", cfg.Transport.String()).
		Int("edgecut", cut).Msg("starting halo exchange")

	r = &Report{Config: cfg, Ranks: make([]RankReport, msh.NRanks()), EdgeCut: cut}
	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < msh.NRanks(); rank++ {
		rank := rank
		g.Go(func() error {
			return runRank(gctx, cfg, msh, comms[rank], &r.Ranks[rank])
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}
	r.Elapsed = time.Since(start)
	if nbad := r.BadCells(); nbad > 0 {
		return r, fmt.Errorf("%d ghost cells hold the wrong value", nbad)
	}
	return
}

func connect(cfg Config, nranks int) (comms []comm.Communicator, closeFn func() error, err error) {
	comms = make([]comm.Communicator, nranks)
	switch cfg.Transport {
	case TransportLocal:
		ln := comm.NewLocalNetwork(nranks)
		for rank := range comms {
			comms[rank] = ln.Comm(rank)
		}
		closeFn = func() error { return nil }
	case TransportTCP:
		var (
			host  = cfg.Host
			nets  = make([]*comm.TCPNetwork, 0, nranks)
			addrs = make([]string, nranks)
		)
		if host == "" {
			host = "127.0.0.1"
		}
		closeFn = func() (err error) {
			for _, tn := range nets {
				if cerr := tn.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}
			return
		}
		for rank := 0; rank < nranks; rank++ {
			var tn *comm.TCPNetwork
			if tn, err = comm.ListenTCP(rank, host+":0"); err != nil {
				_ = closeFn()
				return nil, nil, err
			}
			nets = append(nets, tn)
			addrs[rank] = tn.Addr()
			comms[rank] = tn
		}
		for _, tn := range nets {
			if err = tn.Connect(addrs); err != nil {
				_ = closeFn()
				return nil, nil, err
			}
		}
	default:
		return nil, nil, fmt.Errorf("unsupported transport %v", cfg.Transport)
	}
	return
}

// NewExchangeTasks builds the task list of one exchange on channel key:
// post receives, send, receive, then release both sides
func NewExchangeTasks(bv *bvals.BoundaryValuesCC, c comm.Communicator, a *utils.Array5D, key int) (tl *tasklist.TaskList) {
	tl = tasklist.NewTaskList()
	initRecv := tl.AddTask("init_recv", func(ctx context.Context) (types.TaskStatus, error) {
		return bv.InitRecv(c, key)
	})
	send := tl.AddTask("send_bvals", func(ctx context.Context) (types.TaskStatus, error) {
		return bv.SendBuffers(c, a, key)
	}, initRecv)
	recv := tl.AddTask("recv_bvals", func(ctx context.Context) (types.TaskStatus, error) {
		return bv.RecvBuffers(c, a)
	}, send)
	tl.AddTask("clear_send", func(ctx context.Context) (types.TaskStatus, error) {
		return bv.ClearSend(c)
	}, send)
	tl.AddTask("clear_recv", func(ctx context.Context) (types.TaskStatus, error) {
		return bv.ClearRecv(c)
	}, recv)
	return
}

func runRank(ctx context.Context, cfg Config, msh *mesh.Mesh, c comm.Communicator, rr *RankReport) (err error) {
	var (
		start = time.Now()
		pack  = msh.NewMeshBlockPack(c.Rank())
		bv    *bvals.BoundaryValuesCC
		a     = pack.NewArray5D(cfg.Nvar)
	)
	if bv, err = bvals.NewBoundaryValuesCC(pack, cfg.Nvar, cfg.ProcLimit); err != nil {
		return
	}
	rr.Rank, rr.Nmb = pack.Rank, pack.Nmb
	rr.Stats = bv.GetStats()
	log.Debug().Int("rank", pack.Rank).Interface("slots", rr.Stats).Str("mem", utils.GetMemUsage()).
		Msg("boundary buffers ready")
	a.Fill(Unset)
	for cycle := 0; cycle < cfg.Cycles; cycle++ {
		key := cycle % (types.MaxTagKey + 1)
		SeedInterior(msh, pack, a, cycle)
		tl := NewExchangeTasks(bv, c, a, key)
		if err = tl.Execute(ctx); err != nil {
			return fmt.Errorf("rank %d cycle %d: %w", pack.Rank, cycle, err)
		}
		rr.Sweeps += tl.Sweeps
		nbad, errMax := CheckHalo(msh, pack, a, cycle)
		rr.BadCells += nbad
		rr.ErrMax = max(rr.ErrMax, errMax)
		if nbad > 0 {
			log.Error().Int("rank", pack.Rank).Int("cycle", cycle).Int("bad", nbad).
				Float64("errmax", errMax).Msg("halo mismatch")
		}
		log.Debug().Int("rank", pack.Rank).Int("cycle", cycle).Int("sweeps", tl.Sweeps).Msg("exchange complete")
	}
	rr.BlockNorms = make([]float64, pack.Nmb)
	for m := range rr.BlockNorms {
		rr.BlockNorms[m] = a.BlockNorm(m)
	}
	rr.Elapsed = time.Since(start)
	log.Info().Int("rank", pack.Rank).Int("nmb", pack.Nmb).Int("sweeps", rr.Sweeps).
		Dur("elapsed", rr.Elapsed).Msg("rank done")
	return
}
