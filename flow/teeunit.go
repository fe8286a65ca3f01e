package flow

import "context"

// teeNodeImpl forwards every row unchanged. Tee's actual row duplication
// to more than one downstream Dest needs no special-cased logic: the
// scheduler already fans a producer's emitted rows out to every edge in
// destinations() (spec.md §4.5's Flow Handle composition gives diamond
// wiring for free, see graph.go). Tee exists as its own Kind so a Flow
// Handle can name the branch point and keep both the main continuation
// and the side Dest attached to the same producer id.
type teeNodeImpl[T any] struct {
	base
}

func newTeeNode[T any](id int, env *Env, pl Placement) *teeNodeImpl[T] {
	return &teeNodeImpl[T]{base: base{nodeID: id, env: env, pl: pl}}
}

func (n *teeNodeImpl[T]) kind() Kind { return KindTee }

func (n *teeNodeImpl[T]) deliver(ctx context.Context, sc *scheduler, row any) error {
	in, _ := row.(T)
	sc.emit(ctx, n.nodeID, in)
	return nil
}

func (n *teeNodeImpl[T]) reset() {}
