package flow

import (
	"context"
	"fmt"
)

type mapNodeImpl[TIn, TOut any] struct {
	base
	kernel MapFunc[TIn, TOut]
}

func newMapNode[TIn, TOut any](id int, env *Env, pl Placement, kernel MapFunc[TIn, TOut]) *mapNodeImpl[TIn, TOut] {
	return &mapNodeImpl[TIn, TOut]{
		base:   base{nodeID: id, env: env, pl: pl},
		kernel: kernel,
	}
}

func (n *mapNodeImpl[TIn, TOut]) kind() Kind { return KindMap }

func (n *mapNodeImpl[TIn, TOut]) deliver(ctx context.Context, sc *scheduler, row any) error {
	in, _ := row.(TIn)

	out, err := callKernel(ctx, sc, n.nodeID, func() (Rows[TOut], error) {
		return n.kernel(ctx, in), nil
	})
	if err != nil {
		return err
	}

	for _, o := range out {
		sc.emit(ctx, n.nodeID, o)
	}
	return nil
}

func (n *mapNodeImpl[TIn, TOut]) reset() {}

// callKernel runs fn, converting a panic into a kernel-failure RunError
// per spec.md §7's kernel-failure contract — any exception-like signal
// from a user kernel aborts the run on that rank.
func callKernel[T any](ctx context.Context, sc *scheduler, unitID int, fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &RunError{Rank: sc.rank, Unit: unitID, Err: &kernelPanic{r}}
		}
	}()
	return fn()
}

type kernelPanic struct{ v any }

func (p *kernelPanic) Error() string { return ErrKernelFailure.Error() + ": " + errString(p.v) }
func (p *kernelPanic) Unwrap() error { return ErrKernelFailure }

func errString(v any) string {
	if e, ok := v.(error); ok {
		return e.Error()
	}
	return fmt.Sprintf("%v", v)
}
