package flow

import "context"

// Assembly is MapCols' column-assembly mode, spec.md §4.4's Map unit
// modes made explicit now that a caller can select a proper subset of
// the input row's columns to hand the kernel.
type Assembly int

const (
	// AssemblyAppend is the default: kernel sees idx's columns (or the
	// whole row when idx is empty) and its result columns are appended
	// after the untouched input row.
	AssemblyAppend Assembly = iota
	// AssemblyColsResult: output row is exactly the kernel's result
	// columns, discarding everything else from the input.
	AssemblyColsResult
	// AssemblyColsTransform: non-selected input columns are preserved in
	// their relative order and precede the kernel's result columns, which
	// take the selection's place.
	AssemblyColsTransform
)

// mapColsNodeImpl is Map generalized with spec.md §4.1's column-selection
// algebra: the kernel is invoked on a dynamic tuple of idx's columns
// (Select) rather than the full typed row, and its result is assembled
// back into TOut per mode (colsResult/colsTransform/append), mirroring
// the teacher's absence of this feature and instead grounded on
// _examples/original_source/examples/demoMapFilter.cpp's
// `.map<1,2>(...)`/`.colsTransform()`/`.colsResult()` chain.
type mapColsNodeImpl[TIn, TOut any] struct {
	base
	idx    []int
	mode   Assembly
	kernel func(ctx context.Context, sel []any) Rows[[]any]
}

func newMapColsNode[TIn, TOut any](id int, env *Env, pl Placement, idx []int, mode Assembly, kernel func(ctx context.Context, sel []any) Rows[[]any]) *mapColsNodeImpl[TIn, TOut] {
	return &mapColsNodeImpl[TIn, TOut]{
		base:   base{nodeID: id, env: env, pl: pl},
		idx:    idx,
		mode:   mode,
		kernel: kernel,
	}
}

func (n *mapColsNodeImpl[TIn, TOut]) kind() Kind { return KindMap }

func (n *mapColsNodeImpl[TIn, TOut]) deliver(ctx context.Context, sc *scheduler, row any) error {
	in, _ := row.(TIn)
	sel := selectOrAll(in, n.idx)

	results, err := callKernel(ctx, sc, n.nodeID, func() (Rows[[]any], error) {
		return n.kernel(ctx, sel), nil
	})
	if err != nil {
		return err
	}

	for _, cols := range results {
		sc.emit(ctx, n.nodeID, n.assemble(in, cols))
	}
	return nil
}

func (n *mapColsNodeImpl[TIn, TOut]) assemble(in TIn, result []any) TOut {
	switch n.mode {
	case AssemblyColsResult:
		return Assemble[TOut](result)
	case AssemblyColsTransform:
		return Assemble[TOut](append(Drop(in, n.idx...), result...))
	default: // AssemblyAppend
		return Assemble[TOut](append(Append(in), result...))
	}
}

func (n *mapColsNodeImpl[TIn, TOut]) reset() {}

// selectOrAll returns row's idx columns, or every column of row (in field
// order) when idx is empty — the "kernel sees the whole row" default a
// caller gets by not naming a selection.
func selectOrAll[T any](row T, idx []int) []any {
	if len(idx) == 0 {
		return Append(row)
	}
	return Select(row, idx...)
}

// MapCols is Map driven by an explicit column selection and assembly
// mode instead of the whole typed row, for kernels grounded on
// spec.md §4.1's select/drop/append/colsTransform algebra (`.map<1,2>(fn)
// .colsTransform()` in the original). Plain Map remains the ergonomic
// path when a kernel wants the whole typed row; MapCols is for kernels
// authored against a column tuple.
func MapCols[TIn, TOut any](f Flow[TIn], pl Placement, idx []int, mode Assembly, kernel func(ctx context.Context, sel []any) Rows[[]any]) Flow[TOut] {
	schemaOf[TIn]().validate(idx)
	env := f.e
	n := env.graph.add(func(id int) node {
		return newMapColsNode[TIn, TOut](id, env, pl, idx, mode, kernel)
	})
	Link[TIn](unitDest[TIn]{e: env, unitID: n.id()}, f)
	return Flow[TOut]{e: env, unitID: n.id()}
}

// ForwardMode is FilterCols' row-reshape mode for a kept row, spec.md
// §4.4's `cols<…>`/`dropCols<…>` Filter modifiers: they reshape what
// continues downstream, never the predicate's view.
type ForwardMode int

const (
	// ForwardAll forwards the entire input row unchanged, the only mode
	// available to plain Filter (TIn == TOut).
	ForwardAll ForwardMode = iota
	// ForwardCols forwards only forwardIdx's columns (`cols<…>`).
	ForwardCols
	// ForwardDrop forwards every column except forwardIdx's (`dropCols<…>`).
	ForwardDrop
)

// filterColsNodeImpl is Filter generalized with a column-selected
// predicate view and an independent forwarding reshape, so TOut can
// differ from TIn — plain filterNodeImpl stays the TIn==TOut fast path
// for predicates that want the whole row and forward it whole.
type filterColsNodeImpl[TIn, TOut any] struct {
	base
	predIdx    []int
	pred       func(ctx context.Context, sel []any) bool
	forward    ForwardMode
	forwardIdx []int
}

func newFilterColsNode[TIn, TOut any](id int, env *Env, pl Placement, predIdx []int, pred func(ctx context.Context, sel []any) bool, forward ForwardMode, forwardIdx []int) *filterColsNodeImpl[TIn, TOut] {
	return &filterColsNodeImpl[TIn, TOut]{
		base:       base{nodeID: id, env: env, pl: pl},
		predIdx:    predIdx,
		pred:       pred,
		forward:    forward,
		forwardIdx: forwardIdx,
	}
}

func (n *filterColsNodeImpl[TIn, TOut]) kind() Kind { return KindFilter }

func (n *filterColsNodeImpl[TIn, TOut]) deliver(ctx context.Context, sc *scheduler, row any) error {
	in, _ := row.(TIn)
	sel := selectOrAll(in, n.predIdx)

	keep, err := callKernel(ctx, sc, n.nodeID, func() (bool, error) {
		return n.pred(ctx, sel), nil
	})
	if err != nil {
		return err
	}
	if !keep {
		return nil
	}

	var out TOut
	switch n.forward {
	case ForwardCols:
		out = Assemble[TOut](Select(in, n.forwardIdx...))
	case ForwardDrop:
		out = Assemble[TOut](Drop(in, n.forwardIdx...))
	default: // ForwardAll
		out = Assemble[TOut](Append(in))
	}
	sc.emit(ctx, n.nodeID, out)
	return nil
}

func (n *filterColsNodeImpl[TIn, TOut]) reset() {}

// FilterCols is Filter driven by a column-selected predicate view
// (predIdx, or the whole row when empty) with an independent forwarding
// reshape (forward/forwardIdx), for the `cols<…>`/`dropCols<…>` modifiers
// of spec.md §4.4. Plain Filter remains the TIn==TOut fast path.
func FilterCols[TIn, TOut any](f Flow[TIn], pl Placement, predIdx []int, pred func(ctx context.Context, sel []any) bool, forward ForwardMode, forwardIdx []int) Flow[TOut] {
	schemaOf[TIn]().validate(predIdx)
	schemaOf[TIn]().validate(forwardIdx)
	env := f.e
	n := env.graph.add(func(id int) node {
		return newFilterColsNode[TIn, TOut](id, env, pl, predIdx, pred, forward, forwardIdx)
	})
	Link[TIn](unitDest[TIn]{e: env, unitID: n.id()}, f)
	return Flow[TOut]{e: env, unitID: n.id()}
}
