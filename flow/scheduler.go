package flow

import (
	"context"
	"log/slog"
)

// scheduler drives one rank's event loop: pull rise input, deliver queued
// rows to their unit, route produced rows to destinations, and detect
// collective quiescence. Grounded on the teacher's mapper/reducer run
// loops (mapreduce/workers.go) generalized from a fixed two-phase
// map-then-reduce pipeline to an arbitrary unit graph.
type scheduler struct {
	env  *Env
	rank int

	queue []queuedRow
	stats Stats
}

type queuedRow struct {
	unit int
	row  any
}

func newScheduler(env *Env, rank int) *scheduler {
	return &scheduler{env: env, rank: rank}
}

// emit routes one row produced by producerID to every downstream edge,
// resolving each consumer's Placement into concrete destination ranks via
// the partitioner. Rows destined for this same rank are queued locally;
// everything else goes through the transport.
func (sc *scheduler) emit(ctx context.Context, producerID int, row any) {
	for _, consumerID := range sc.env.graph.destinationsOf(producerID) {
		consumer := sc.env.graph.nodes[consumerID]
		pl := consumer.placement()
		part := sc.env.partitionerFor(consumerID)

		for _, destRank := range part.destinations(pl, row) {
			sc.stats.RowsSent.Add(1)
			GlobalStats.RowsSent.Add(1)

			if destRank == sc.rank {
				sc.queue = append(sc.queue, queuedRow{unit: consumerID, row: row})
				continue
			}
			sc.env.transport.send(ctx, destRank, consumerID, row)
		}
	}
}

// drainOnce processes everything immediately available: the local queue,
// this rank's transport inbox, and one pull from every rise unit hosted
// here. It reports whether any row was processed or produced, so the
// caller knows whether to loop again before attempting a quiescence
// check.
func (sc *scheduler) drainOnce(ctx context.Context) (bool, error) {
	progressed := false

	for len(sc.queue) > 0 {
		item := sc.queue[0]
		sc.queue = sc.queue[1:]

		n := sc.env.graph.nodes[item.unit]
		if err := n.deliver(ctx, sc, item.row); err != nil {
			return false, err
		}
		sc.stats.RowsReceived.Add(1)
		GlobalStats.RowsReceived.Add(1)
		progressed = true
	}

	for {
		tag, row, ok := sc.env.transport.recvAny(ctx, sc.rank)
		if !ok {
			break
		}
		n := sc.env.graph.nodes[tag]
		if err := n.deliver(ctx, sc, row); err != nil {
			return false, err
		}
		sc.stats.RowsReceived.Add(1)
		GlobalStats.RowsReceived.Add(1)
		progressed = true
	}

	for _, id := range sc.env.riseNodesOnRank(sc.rank) {
		rn := sc.env.graph.nodes[id].rise()
		rows, more := rn.next(ctx)
		if len(rows) > 0 {
			progressed = true
		}
		for _, row := range rows {
			sc.emit(ctx, id, row)
		}
		if more {
			progressed = true
		}
	}

	return progressed, nil
}

// quiesce runs drainOnce until this rank has no local work, then sums
// RowsSent and RowsReceived across the world (via transport.allreduce)
// and returns once those global totals are unchanged between two
// consecutive allreduce rounds. It does not compare the sent total with
// the received total. A single round isn't sufficient: a peer rank may enqueue a row into
// this rank's inbox in the gap between this rank's last drain and the
// barrier call, so the two global counters only settle once two
// consecutive rounds report the same totals with no draining in
// between.
func (sc *scheduler) quiesce(ctx context.Context) ([2]uint64, error) {
	var prev [2]uint64
	havePrev := false

	for {
		progressed, err := sc.drainOnce(ctx)
		if err != nil {
			return [2]uint64{}, err
		}
		if progressed {
			havePrev = false
			continue
		}

		snap, err := sc.env.transport.allreduce(ctx, sc.rank, [2]uint64{sc.stats.RowsSent.Load(), sc.stats.RowsReceived.Load()})
		if err != nil {
			return [2]uint64{}, err
		}
		if havePrev && snap == prev {
			return snap, nil
		}
		prev = snap
		havePrev = true
	}
}

// run is the full per-rank lifecycle: drain to first quiescence, then
// alternate flushing every reduce/reduceAll unit hosted here with a
// confirming quiesce, until a round produces no further rows. One flush
// round isn't always enough: a reduce chained downstream of another
// reduce only receives its upstream's flushed rows during the quiesce
// that follows that flush, so its own flush call in the same round still
// sees an empty accumulator and its output only appears the round after.
// Every rank observes the identical globally-agreed (sent, received)
// snapshot from quiesce, so all ranks decide to stop looping in lockstep
// and the barrier calls stay matched.
func (sc *scheduler) run(ctx context.Context) error {
	ctx = withRank(ctx, sc.rank)

	slog.Info("scheduler: running to first quiescence", "rank", sc.rank)
	if _, err := sc.quiesce(ctx); err != nil {
		return err
	}
	if err := sc.env.transport.barrier(ctx, sc.rank); err != nil {
		return err
	}

	var last [2]uint64
	first := true
	for {
		slog.Info("scheduler: flushing hosted units", "rank", sc.rank)
		for _, id := range sc.env.hostedNodes(sc.rank) {
			if err := sc.env.graph.nodes[id].flush(ctx, sc); err != nil {
				return err
			}
		}

		slog.Info("scheduler: confirming quiescence after flush", "rank", sc.rank)
		snap, err := sc.quiesce(ctx)
		if err != nil {
			return err
		}
		if err := sc.env.transport.barrier(ctx, sc.rank); err != nil {
			return err
		}

		if !first && snap == last {
			return nil
		}
		last, first = snap, false
	}
}
