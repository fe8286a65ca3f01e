package flow

import (
	"github.com/tymbaca/flowmesh/storage"
	"github.com/tymbaca/flowmesh/storage/inmemory"
)

// Source is the compile-time producer contract a Link target consumes
// from. srcRowType carries no meaning beyond anchoring T: without a
// method that mentions T, an interface built only from id()/env() would
// be satisfied by a Source[T] AND a Source[U] alike for any two
// structurally compatible T/U, silently defeating invariant 1 (a unit
// may only be linked to a producer/consumer of its own row type). Adding
// a method whose signature names T directly closes that hole.
type Source[T any] interface {
	srcRowType() T
	id() int
	env() *Env
}

// Dest is the compile-time consumer contract; see Source for why
// dstRowType exists.
type Dest[T any] interface {
	dstRowType() T
	id() int
	env() *Env
}

// Flow is a Flow Handle: the current tail of a unit chain built against
// a shared Env, and itself a valid Source for further composition. It
// carries no buffered rows of its own — it is a typed reference to an
// arena node, per spec.md §4.5.
type Flow[T any] struct {
	e      *Env
	unitID int
}

func (f Flow[T]) id() int       { return f.unitID }
func (f Flow[T]) env() *Env     { return f.e }
func (f Flow[T]) srcRowType() T { var z T; return z }

// Env returns the Env this Flow Handle was built against.
func (f Flow[T]) Env() *Env { return f.e }

// ID returns the arena index of this handle's tail unit.
func (f Flow[T]) ID() int { return f.unitID }

// Unlink detaches f's tail unit from every peer it currently has edges
// with, in either direction (spec.md §3 invariant 4). A later Run no
// longer routes rows across any edge that was incident to it — matching
// the teacher/original's risefl->unlink() (_examples/original_source
// /examples/demoFlow.cpp), used there to detach a rise from stale
// downstream flows before wiring it into a new pipeline. Unlink does not
// remove the unit itself, only its edges: f remains a valid handle and
// can be relinked afterward.
func (f Flow[T]) Unlink() { f.e.graph.unlink(f.unitID) }

// unitDest is the Dest[T] view of an arena node, used internally by every
// combinator to link its new unit's input edge.
type unitDest[T any] struct {
	e      *Env
	unitID int
}

func (d unitDest[T]) id() int       { return d.unitID }
func (d unitDest[T]) env() *Env     { return d.e }
func (d unitDest[T]) dstRowType() T { var z T; return z }

// DestOf returns the Dest[T] view of f's own tail unit, letting a later
// stage Pipe its output back into an earlier unit's input to close a
// cycle (spec.md §4.5's cyclic composition).
func DestOf[T any](f Flow[T]) Dest[T] { return unitDest[T]{e: f.e, unitID: f.unitID} }

// Link attaches dst as a consumer of src's output, generalizing the "+"
// composition operator spec.md §4.5 describes: the shared graph already
// supports a producer with several consumers (diamond/tee) and a
// consumer reachable from more than one producer (merge/cycle), so one
// Link call per edge is all composition ever needs. Linking the same
// pair twice is a no-op (invariant 3).
func Link[T any](dst Dest[T], src Source[T]) Dest[T] {
	src.env().graph.link(src.id(), dst.id())
	return dst
}

// Pipe is Link under a name that reads naturally for a cycle's back-edge
// — "pipe this flow's output back into dst" — rather than a second
// forward composition.
func Pipe[T any](dst Dest[T], src Source[T]) Dest[T] { return Link[T](dst, src) }

// Rise creates a leaf unit pulling from src and places it per pl. It is
// always the first unit of a chain — spec.md §4.4's Rise unit has no
// upstream Dest.
func Rise[T any](env *Env, pl Placement, src RiseSource[T]) Flow[T] {
	n := env.graph.add(func(id int) node { return newRiseNode[T](id, env, pl, src) })
	return Flow[T]{e: env, unitID: n.id()}
}

// Map applies kernel to every row of f, placed per pl.
func Map[TIn, TOut any](f Flow[TIn], pl Placement, kernel MapFunc[TIn, TOut]) Flow[TOut] {
	env := f.e
	n := env.graph.add(func(id int) node { return newMapNode[TIn, TOut](id, env, pl, kernel) })
	Link[TIn](unitDest[TIn]{e: env, unitID: n.id()}, f)
	return Flow[TOut]{e: env, unitID: n.id()}
}

// Filter keeps only the rows of f for which pred returns true, placed
// per pl.
func Filter[T any](f Flow[T], pl Placement, pred PredFunc[T]) Flow[T] {
	env := f.e
	n := env.graph.add(func(id int) node { return newFilterNode[T](id, env, pl, pred) })
	Link[T](unitDest[T]{e: env, unitID: n.id()}, f)
	return Flow[T]{e: env, unitID: n.id()}
}

// Reduce folds f's rows into a per-key accumulator and emits per cfg's
// ordered/scan mode, placed per pl (typically Hash(ranks, keyIdx...) so
// rows of the same key land on the same rank).
func Reduce[TIn, TAcc, TOut any](f Flow[TIn], pl Placement, keyFn KeyFunc[TIn], initAcc func() TAcc, fold ReduceFunc[TIn, TAcc], emitFn EmitFunc[TAcc, TOut], cfg ReduceConfig) Flow[TOut] {
	env := f.e
	n := env.graph.add(func(id int) node {
		return newReduceNode[TIn, TAcc, TOut](id, env, pl, keyFn, initAcc, fold, emitFn, cfg)
	})
	Link[TIn](unitDest[TIn]{e: env, unitID: n.id()}, f)
	return Flow[TOut]{e: env, unitID: n.id()}
}

// ReduceAll materializes every row of a key before running kernel once
// per key. store holds the buffered rows until flush; pass nil to default
// to storage/inmemory, or pass a storage/bbolt.Storage to keep them in a
// file that outlives the process. Either way, each key's full row group
// is loaded into memory when the kernel runs.
func ReduceAll[TIn, TOut any](f Flow[TIn], pl Placement, keyFn KeyFunc[TIn], kernel ReduceAllFunc[TIn, TOut], store storage.Storage) Flow[TOut] {
	if store == nil {
		store = inmemory.New()
	}
	env := f.e
	n := env.graph.add(func(id int) node {
		return newReduceAllNode[TIn, TOut](id, env, pl, keyFn, kernel, store)
	})
	Link[TIn](unitDest[TIn]{e: env, unitID: n.id()}, f)
	return Flow[TOut]{e: env, unitID: n.id()}
}

// Zip pairs up rows from a and b in arrival order, emitting merge(a, b)
// for each pair; whichever side still has buffered rows once the run
// quiesces has its remainder dropped (spec.md §4.4).
func Zip[TA, TB, TOut any](a Flow[TA], b Flow[TB], pl Placement, merge func(TA, TB) TOut) Flow[TOut] {
	env := a.e

	var core *zipNodeImpl[TA, TB, TOut]
	env.graph.add(func(id int) node {
		core = newZipNode[TA, TB, TOut](id, env, pl, merge)
		return core
	})
	portA := env.graph.add(func(id int) node {
		return &zipPort[TA, TB, TOut]{base: base{nodeID: id, env: env, pl: pl}, core: core, isB: false}
	})
	portB := env.graph.add(func(id int) node {
		return &zipPort[TA, TB, TOut]{base: base{nodeID: id, env: env, pl: pl}, core: core, isB: true}
	})

	Link[TA](unitDest[TA]{e: env, unitID: portA.id()}, a)
	Link[TB](unitDest[TB]{e: env, unitID: portB.id()}, b)

	return Flow[TOut]{e: env, unitID: core.id()}
}

// Tee links f into a named branch node: branch receives every row f
// produces, while the returned Flow carries the same rows on for the
// chain's natural continuation. Functionally this is one producer with
// two consumers (already supported by a bare Link from f to any second
// Dest), but Tee names the branch point explicitly rather than relying
// on the caller remembering a Flow Handle can be linked more than once.
func Tee[T any](f Flow[T], pl Placement, branch Dest[T]) Flow[T] {
	env := f.e
	n := env.graph.add(func(id int) node { return newTeeNode[T](id, env, pl) })
	Link[T](unitDest[T]{e: env, unitID: n.id()}, f)

	tail := Flow[T]{e: env, unitID: n.id()}
	Link[T](branch, tail)
	return tail
}
