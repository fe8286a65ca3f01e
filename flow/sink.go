package flow

import (
	"context"
	"sync"
)

// SinkFunc is a terminal unit's callback, invoked once per row that
// reaches it. It never produces output, so a sink cannot itself be used
// as a Source.
type SinkFunc[T any] func(ctx context.Context, row T)

type sinkNodeImpl[T any] struct {
	base
	fn SinkFunc[T]
}

func newSinkNode[T any](id int, env *Env, pl Placement, fn SinkFunc[T]) *sinkNodeImpl[T] {
	return &sinkNodeImpl[T]{base: base{nodeID: id, env: env, pl: pl}, fn: fn}
}

func (n *sinkNodeImpl[T]) kind() Kind { return KindSink }

func (n *sinkNodeImpl[T]) deliver(ctx context.Context, sc *scheduler, row any) error {
	in, _ := row.(T)
	_, err := callKernel(ctx, sc, n.nodeID, func() (struct{}, error) {
		n.fn(ctx, in)
		return struct{}{}, nil
	})
	return err
}

func (n *sinkNodeImpl[T]) reset() {}

// Sink attaches fn as a terminal consumer of every row f produces,
// placed per pl. The adapters package's Dump/ToFile are built on top of
// this: they return a SinkFunc closed over an io.Writer rather than
// implementing Dest directly.
func Sink[T any](f Flow[T], pl Placement, fn SinkFunc[T]) {
	env := f.e
	n := env.graph.add(func(id int) node { return newSinkNode[T](id, env, pl, fn) })
	Link[T](unitDest[T]{e: env, unitID: n.id()}, f)
}

// Collector is a mutex-guarded row accumulator for tests and small demos
// — attach it to a Flow Handle with Attach and inspect Rows() once
// Env.Run returns.
type Collector[T any] struct {
	mu   sync.Mutex
	rows []T
}

func (c *Collector[T]) add(row T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append(c.rows, row)
}

// Rows returns a copy of every row the collector has received so far.
func (c *Collector[T]) Rows() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.rows))
	copy(out, c.rows)
	return out
}

// Attach wires c as a Sink on f, placed per pl.
func Attach[T any](f Flow[T], pl Placement, c *Collector[T]) {
	Sink[T](f, pl, func(_ context.Context, row T) { c.add(row) })
}
