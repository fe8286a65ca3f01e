package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Env is the top-level engine handle: it owns the unit arena, the
// transport binding every rank together, and the world size every
// Placement is resolved against. One Env corresponds to one distributed
// run, grounded on the teacher's mapreduce.MapReduce{mapFn, reduceFn,
// mapperCount, reducerCount, storage} but generalized from a fixed
// two-stage pipeline to an arbitrary unit graph shared by every Flow
// Handle built against it.
type Env struct {
	graph     *graph
	transport transport
	world     int

	mu           sync.Mutex
	partitioners map[int]*partitioner
	aborted      bool
	abortCode    int
	cancel       context.CancelFunc

	opts options
}

type options struct {
	logger              *slog.Logger
	abortOnConstruction bool
	abortCode           int
}

// Option configures an Env at construction time.
type Option func(*options)

// WithLogger overrides the slog.Logger the engine logs scheduler
// lifecycle events through. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithAbortOnConstruction pre-arms the Env in an already-aborted state
// with exitCode, per spec.md §6's "an Env is constructed with
// process-group arguments and an abort-on-construction flag" — a caller
// that decides at setup time (a bad process-group argument, a failed
// transport dial) that the run must not proceed can still hand back a
// valid Env whose Run fails fast with the chosen code instead of a
// separate construction-error return.
func WithAbortOnConstruction(exitCode int) Option {
	return func(o *options) { o.abortOnConstruction = true; o.abortCode = exitCode }
}

// NewEnv creates an Env hosting worldSize ranks, each simulated as a
// goroutine over a localTransport (see transport.go's note on this
// Open Question: flowmesh runs ranks in-process rather than as separate
// OS processes/MPI ranks).
func NewEnv(worldSize int, opts ...Option) *Env {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Env{
		graph:        newGraph(),
		transport:    newLocalTransport(worldSize),
		world:        worldSize,
		partitioners: make(map[int]*partitioner),
		opts:         o,
	}
	if o.abortOnConstruction {
		e.aborted = true
		e.abortCode = o.abortCode
	}
	return e
}

// WorldSize reports the number of ranks this Env was built with.
func (e *Env) WorldSize() int { return e.world }

func (e *Env) partitionerFor(unitID int) *partitioner {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.partitioners[unitID]
	if !ok {
		p = &partitioner{}
		e.partitioners[unitID] = p
	}
	return p
}

func (e *Env) riseNodesOnRank(rank int) []int {
	var out []int
	for id, n := range e.graph.nodes {
		if n.kind() != KindRise {
			continue
		}
		if containsRank(n.placement().Ranks, rank) {
			out = append(out, id)
		}
	}
	return out
}

func (e *Env) hostedNodes(rank int) []int {
	var out []int
	for id, n := range e.graph.nodes {
		if containsRank(n.placement().Ranks, rank) {
			out = append(out, id)
		}
	}
	return out
}

func containsRank(ranks []int, rank int) bool {
	for _, r := range ranks {
		if r == rank {
			return true
		}
	}
	return false
}

// Run drives every rank's scheduler to completion, collectively: a run
// only ends once every rank has independently confirmed quiescence
// (flow/scheduler.go's two-phase barrier) and flushed its hosted reduce
// units. The first rank to return a kernel or transport failure cancels
// every other rank's context, per the engine's fail-fast error contract
// (spec.md §7): every rank's rendezvous call selects on that same
// context, so a peer parked in a barrier/allreduce for the failing
// rank's epoch unblocks with ctx.Err() instead of waiting forever for an
// epoch that will never complete.
func (e *Env) Run(ctx context.Context) error {
	for id, n := range e.graph.nodes {
		if len(n.placement().Ranks) == 0 {
			return fmt.Errorf("%w: unit %d has an empty placement", ErrMisconfigured, id)
		}
	}

	e.mu.Lock()
	if e.aborted {
		code := e.abortCode
		e.mu.Unlock()
		return fmt.Errorf("%w: exit code %d", ErrAborted, code)
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)

	for rank := 0; rank < e.world; rank++ {
		rank := rank
		sc := newScheduler(e, rank)
		g.Go(func() error {
			return sc.run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		e.opts.logger.Error("flow: run aborted", "err", err)
		return err
	}

	e.opts.logger.Info("flow: run complete", "stats", GlobalStats.String())
	return nil
}

// Abort implements spec.md §6/§7's `env.abort(code)`: it records exitCode
// as the reason this Env's group is being torn down and, if a Run is
// currently in flight, cancels every rank's context so Run returns
// promptly instead of running to natural completion. The engine already
// calls this path internally on a kernel/transport failure (via
// errgroup's derived context); Abort is the externally-callable version
// spec.md §7 expects a caller's top-level catch to invoke after
// observing Run's error, so the chosen exit code is recorded even when
// the failure was one Run already reported on its own.
func (e *Env) Abort(code int) {
	e.mu.Lock()
	e.aborted = true
	e.abortCode = code
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Aborted reports whether Abort has been called (directly or via
// WithAbortOnConstruction) and the exit code it was called with.
func (e *Env) Aborted() (bool, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aborted, e.abortCode
}

// Reset clears every unit's per-run state and the partitioner round-robin
// counters, so the same Env (and the Flow Handles built against it) can
// be Run again.
func (e *Env) Reset() {
	e.graph.reset()
	e.mu.Lock()
	e.partitioners = make(map[int]*partitioner)
	e.mu.Unlock()
}
