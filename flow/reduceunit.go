package flow

import (
	"context"
	"fmt"

	"github.com/tymbaca/flowmesh/storage"
)

// ReduceConfig carries Reduce's mode flags: Ordered asserts the input is
// key-contiguous and flushes the moment a new key is seen; Scan emits a
// snapshot after every input row instead of once at end-of-input.
// InProcess asserts that pl performs no cross-rank hash shuffle for this
// unit — each rank is expected to fold only whatever already reached it
// locally, with no reshuffling by key. It is a caller-declared invariant
// on Placement, not a routing mode of its own; newReduceNode checks it
// against pl and rejects the combination as a misconfiguration rather
// than silently reshuffling.
type ReduceConfig struct {
	Ordered   bool
	Scan      bool
	InProcess bool
}

type accEntry[TAcc any] struct {
	key any
	val TAcc
}

type reduceRankState[TAcc any] struct {
	acc        map[string]*accEntry[TAcc]
	lastKeyStr string
	hasLast    bool
}

type reduceNodeImpl[TIn, TAcc, TOut any] struct {
	base
	keyFn   KeyFunc[TIn]
	initAcc func() TAcc
	fold    ReduceFunc[TIn, TAcc]
	emitFn  EmitFunc[TAcc, TOut]
	cfg     ReduceConfig

	perRank rankState[reduceRankState[TAcc]]
}

func newReduceNode[TIn, TAcc, TOut any](id int, env *Env, pl Placement, keyFn KeyFunc[TIn], initAcc func() TAcc, fold ReduceFunc[TIn, TAcc], emitFn EmitFunc[TAcc, TOut], cfg ReduceConfig) *reduceNodeImpl[TIn, TAcc, TOut] {
	if cfg.Ordered && cfg.Scan {
		panic(fmt.Errorf("%w: reduce cannot combine ordered and scan", ErrMisconfigured))
	}
	if cfg.InProcess && pl.Mode.has(ModeHash) {
		panic(fmt.Errorf("%w: reduce declared InProcess but placement hashes rows across ranks", ErrMisconfigured))
	}
	return &reduceNodeImpl[TIn, TAcc, TOut]{
		base:    base{nodeID: id, env: env, pl: pl},
		keyFn:   keyFn,
		initAcc: initAcc,
		fold:    fold,
		emitFn:  emitFn,
		cfg:     cfg,
	}
}

func (n *reduceNodeImpl[TIn, TAcc, TOut]) kind() Kind { return KindReduce }

func (n *reduceNodeImpl[TIn, TAcc, TOut]) rankSt(rank int) *reduceRankState[TAcc] {
	return n.perRank.get(rank, func() *reduceRankState[TAcc] {
		return &reduceRankState[TAcc]{acc: make(map[string]*accEntry[TAcc])}
	})
}

func (n *reduceNodeImpl[TIn, TAcc, TOut]) deliver(ctx context.Context, sc *scheduler, row any) error {
	in, _ := row.(TIn)
	key := n.keyFn(in)
	ks := fmt.Sprint(key)
	st := n.rankSt(sc.rank)

	// invariant 6: once a new key appears, the previous key's accumulator
	// flushes and is discarded before processing the new key.
	if n.cfg.Ordered && st.hasLast && st.lastKeyStr != ks {
		n.flushKey(ctx, sc, st, st.lastKeyStr)
	}

	e, ok := st.acc[ks]
	if !ok {
		e = &accEntry[TAcc]{key: key, val: n.initAcc()}
		st.acc[ks] = e
	}

	newVal, err := callKernel(ctx, sc, n.nodeID, func() (TAcc, error) {
		return n.fold(ctx, e.val, in), nil
	})
	if err != nil {
		return err
	}
	e.val = newVal
	st.lastKeyStr = ks
	st.hasLast = true

	if n.cfg.Scan {
		sc.emit(ctx, n.nodeID, n.emitFn(e.key, e.val))
	}

	return nil
}

func (n *reduceNodeImpl[TIn, TAcc, TOut]) flushKey(ctx context.Context, sc *scheduler, st *reduceRankState[TAcc], ks string) {
	e, ok := st.acc[ks]
	if !ok {
		return
	}
	delete(st.acc, ks)
	sc.emit(ctx, n.nodeID, n.emitFn(e.key, e.val))
}

// flush is the scheduler's end-of-input call: non-scan reduces emit one
// row per remaining key (invariant 5); scan reduces already emitted
// per-row and only need their state cleared.
func (n *reduceNodeImpl[TIn, TAcc, TOut]) flush(ctx context.Context, sc *scheduler) error {
	st := n.rankSt(sc.rank)
	if n.cfg.Scan {
		st.acc = make(map[string]*accEntry[TAcc])
		return nil
	}
	for ks := range st.acc {
		n.flushKey(ctx, sc, st, ks)
	}
	return nil
}

func (n *reduceNodeImpl[TIn, TAcc, TOut]) reset() { n.perRank.reset() }

// ReduceAll buffers each key's full value sequence and runs its kernel
// once the sequence is materialized. It cannot be scan (spec.md §4.4).
// The value sequence always lives behind the storage.Storage interface
// (storage/inmemory by default, see ReduceAll in flowhandle.go) rather
// than a raw in-process slice, so a caller can swap in storage/bbolt to
// keep buffered rows on disk without changing this unit. flush still
// loads each key's full group into memory before calling the kernel.
type reduceAllRankState struct {
	keys map[string]any
}

// resettable backends (storage/inmemory) clear themselves between runs;
// durable backends (storage/bbolt) intentionally don't, since surviving
// across runs is the point of choosing one.
type resettable interface{ Reset() }

type reduceAllNodeImpl[TIn, TOut any] struct {
	base
	keyFn   KeyFunc[TIn]
	kernel  ReduceAllFunc[TIn, TOut]
	storage storage.Storage

	perRank rankState[reduceAllRankState]
}

func newReduceAllNode[TIn, TOut any](id int, env *Env, pl Placement, keyFn KeyFunc[TIn], kernel ReduceAllFunc[TIn, TOut], store storage.Storage) *reduceAllNodeImpl[TIn, TOut] {
	return &reduceAllNodeImpl[TIn, TOut]{
		base:    base{nodeID: id, env: env, pl: pl},
		keyFn:   keyFn,
		kernel:  kernel,
		storage: store,
	}
}

func (n *reduceAllNodeImpl[TIn, TOut]) kind() Kind { return KindReduceAll }

func (n *reduceAllNodeImpl[TIn, TOut]) rankSt(rank int) *reduceAllRankState {
	return n.perRank.get(rank, func() *reduceAllRankState {
		return &reduceAllRankState{keys: make(map[string]any)}
	})
}

func (n *reduceAllNodeImpl[TIn, TOut]) deliver(ctx context.Context, sc *scheduler, row any) error {
	in, _ := row.(TIn)
	key := n.keyFn(in)
	ks := fmt.Sprint(key)
	st := n.rankSt(sc.rank)

	st.keys[ks] = key
	n.storage.Append(ctx, bucketFor(n.nodeID, sc.rank), ks, []string{marshalValue(in)})
	return nil
}

func (n *reduceAllNodeImpl[TIn, TOut]) flush(ctx context.Context, sc *scheduler) error {
	st := n.rankSt(sc.rank)
	for ks, key := range st.keys {
		delete(st.keys, ks) // run's flush loop calls flush repeatedly until quiescent; each key emits once

		raw := n.storage.Get(ctx, bucketFor(n.nodeID, sc.rank), ks)
		vals := make([]TIn, 0, len(raw))
		for _, r := range raw {
			vals = append(vals, unmarshalValue[TIn](r))
		}

		out, err := callKernel(ctx, sc, n.nodeID, func() (Rows[TOut], error) {
			return n.kernel(ctx, key, vals), nil
		})
		if err != nil {
			return err
		}
		for _, o := range out {
			sc.emit(ctx, n.nodeID, o)
		}
	}
	return nil
}

func (n *reduceAllNodeImpl[TIn, TOut]) reset() {
	n.perRank.reset()
	if r, ok := n.storage.(resettable); ok {
		r.Reset()
	}
}

func bucketFor(unitID, rank int) string {
	return fmt.Sprintf("%d.%d", unitID, rank)
}
