package flow

import "context"

type filterNodeImpl[T any] struct {
	base
	pred PredFunc[T]
}

func newFilterNode[T any](id int, env *Env, pl Placement, pred PredFunc[T]) *filterNodeImpl[T] {
	return &filterNodeImpl[T]{
		base: base{nodeID: id, env: env, pl: pl},
		pred: pred,
	}
}

func (n *filterNodeImpl[T]) kind() Kind { return KindFilter }

func (n *filterNodeImpl[T]) deliver(ctx context.Context, sc *scheduler, row any) error {
	in, _ := row.(T)

	keep, err := callKernel(ctx, sc, n.nodeID, func() (bool, error) {
		return n.pred(ctx, in), nil
	})
	if err != nil {
		return err
	}

	if keep {
		// the entire input row is forwarded unchanged, per spec.md §4.4's
		// Filter unit (column selection only reshapes what's forwarded,
		// never the predicate's view, so forwarding the untouched input
		// satisfies both).
		sc.emit(ctx, n.nodeID, in)
	}
	return nil
}

func (n *filterNodeImpl[T]) reset() {}
