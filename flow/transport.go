package flow

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	otrace "go.opentelemetry.io/otel/trace"

	"github.com/tymbaca/flowmesh/pkg/caller"
	"github.com/tymbaca/flowmesh/pkg/tracer"
)

// envelope is one row in flight between ranks, addressed to a specific
// unit on its destination rank.
type envelope struct {
	unit int
	row  any
}

// transport is the abstract point-to-point and collective interface
// spec.md §4.2 describes. The engine itself never depends on a concrete
// wire protocol (MPI is one implementation); localTransport below is the
// in-process one flowmesh ships, modeling ranks as goroutines instead of
// OS processes.
type transport interface {
	// send is a non-blocking enqueue onto dstRank's inbox for unit tag.
	send(ctx context.Context, dstRank, tag int, row any)
	// recvAny is a non-blocking poll of rank's inbox; ok is false if
	// nothing is currently queued.
	recvAny(ctx context.Context, rank int) (tag int, row any, ok bool)
	// barrier blocks the calling rank until every rank in the world group
	// has called barrier for the current epoch, or ctx is done — a peer
	// rank's kernel/transport failure cancels ctx for everyone via
	// Env.Run's errgroup, which is what lets barrier return an error
	// here instead of blocking forever on an epoch that will never
	// complete.
	barrier(ctx context.Context, rank int) error
	// allreduce sums value across every rank and returns the total to all
	// callers, once every rank has contributed for the current epoch, or
	// returns ctx's error if it's done first.
	allreduce(ctx context.Context, rank int, value [2]uint64) ([2]uint64, error)
	worldSize() int
}

// localTransport is the in-process implementation, grounded on the
// teacher's mapreduce/transport.go chanTransport[T]: a per-destination
// inbox (a mutex-guarded slice) plus span-wrapped Send/Recv. Generalized from the
// teacher's fixed two-phase mapper/reducer wiring to an arbitrary
// rank-addressed send/recv_any surface, and extended with barrier/
// allreduce collectives for termination detection.
type localTransport struct {
	world int

	mu      sync.Mutex
	inboxes []*inbox

	rendezvous *rendezvous
}

type inbox struct {
	mu    sync.Mutex
	items []envelope
}

func newLocalTransport(world int) *localTransport {
	t := &localTransport{
		world:      world,
		inboxes:    make([]*inbox, world),
		rendezvous: newRendezvous(world),
	}
	for i := range t.inboxes {
		t.inboxes[i] = &inbox{}
	}
	return t
}

func (t *localTransport) worldSize() int { return t.world }

func (t *localTransport) send(ctx context.Context, dstRank, tag int, row any) {
	_, span := tracer.Start(ctx, caller.Name(), otrace.WithAttributes(attribute.Int("dst_rank", dstRank), attribute.Int("tag", tag)))
	defer span.End()

	box := t.inboxes[dstRank]
	box.mu.Lock()
	box.items = append(box.items, envelope{unit: tag, row: row})
	box.mu.Unlock()
}

func (t *localTransport) recvAny(ctx context.Context, rank int) (int, any, bool) {
	_, span := tracer.Start(ctx, caller.Name(), otrace.WithAttributes(attribute.Int("rank", rank)))
	defer span.End()

	box := t.inboxes[rank]
	box.mu.Lock()
	defer box.mu.Unlock()

	if len(box.items) == 0 {
		return 0, nil, false
	}

	e := box.items[0]
	box.items = box.items[1:]
	return e.unit, e.row, true
}

func (t *localTransport) barrier(ctx context.Context, rank int) error {
	_, span := tracer.Start(ctx, caller.Name())
	defer span.End()

	_, err := t.rendezvous.arrive(ctx, rank, [2]uint64{})
	return err
}

func (t *localTransport) allreduce(ctx context.Context, rank int, value [2]uint64) ([2]uint64, error) {
	_, span := tracer.Start(ctx, caller.Name())
	defer span.End()

	return t.rendezvous.arrive(ctx, rank, value)
}

// rendezvous implements the barrier/allreduce collectives: every rank
// blocks in arrive until all ranks have called it for the current epoch,
// at which point every caller observes the same summed value and the
// epoch advances. Waiting is done on a per-epoch channel rather than
// sync.Cond so a waiter can select on ctx.Done() alongside it: without
// that, a rank that never arrives again (it returned a kernel/transport
// failure instead) would leave every other rank blocked here forever,
// since arrived would never reach world.
type rendezvous struct {
	world int

	mu      sync.Mutex
	arrived int
	sum     [2]uint64
	result  [2]uint64
	epochCh chan struct{}
}

func newRendezvous(world int) *rendezvous {
	return &rendezvous{world: world, epochCh: make(chan struct{})}
}

func (r *rendezvous) arrive(ctx context.Context, rank int, value [2]uint64) ([2]uint64, error) {
	r.mu.Lock()
	r.sum[0] += value[0]
	r.sum[1] += value[1]
	r.arrived++

	if r.arrived == r.world {
		r.result = r.sum
		r.sum = [2]uint64{}
		r.arrived = 0
		result := r.result
		done := r.epochCh
		r.epochCh = make(chan struct{})
		r.mu.Unlock()
		close(done)
		return result, nil
	}

	done := r.epochCh
	r.mu.Unlock()

	select {
	case <-done:
		r.mu.Lock()
		result := r.result
		r.mu.Unlock()
		return result, nil
	case <-ctx.Done():
		return [2]uint64{}, ctx.Err()
	}
}
