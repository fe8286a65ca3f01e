package flow

import "context"

// zipRankState holds the two per-source row buffers of spec.md §4.4's
// Zip unit: whenever both are non-empty, one row is dequeued from each
// and the merge is emitted. The buffers are plain slices with no size
// bound. Once the run quiesces, whichever side still
// has a longer buffer simply never drains further — its remainder is
// dropped, per spec.md's end-of-input rule.
type zipRankState[TA, TB any] struct {
	aQueue []TA
	bQueue []TB
}

type zipNodeImpl[TA, TB, TOut any] struct {
	base
	merge func(TA, TB) TOut

	perRank rankState[zipRankState[TA, TB]]
}

func newZipNode[TA, TB, TOut any](id int, env *Env, pl Placement, merge func(TA, TB) TOut) *zipNodeImpl[TA, TB, TOut] {
	return &zipNodeImpl[TA, TB, TOut]{
		base:  base{nodeID: id, env: env, pl: pl},
		merge: merge,
	}
}

func (n *zipNodeImpl[TA, TB, TOut]) kind() Kind { return KindZip }

func (n *zipNodeImpl[TA, TB, TOut]) rankSt(rank int) *zipRankState[TA, TB] {
	return n.perRank.get(rank, func() *zipRankState[TA, TB] {
		return &zipRankState[TA, TB]{}
	})
}

// deliver is never called directly on the zip node; rows arrive tagged
// by side through deliverA/deliverB, invoked by the two zipPort dest
// wrappers in flowhandle.go.
func (n *zipNodeImpl[TA, TB, TOut]) deliver(context.Context, *scheduler, any) error { return nil }

func (n *zipNodeImpl[TA, TB, TOut]) deliverA(ctx context.Context, sc *scheduler, a TA) error {
	st := n.rankSt(sc.rank)
	st.aQueue = append(st.aQueue, a)
	return n.drain(ctx, sc, st)
}

func (n *zipNodeImpl[TA, TB, TOut]) deliverB(ctx context.Context, sc *scheduler, b TB) error {
	st := n.rankSt(sc.rank)
	st.bQueue = append(st.bQueue, b)
	return n.drain(ctx, sc, st)
}

func (n *zipNodeImpl[TA, TB, TOut]) drain(ctx context.Context, sc *scheduler, st *zipRankState[TA, TB]) error {
	for len(st.aQueue) > 0 && len(st.bQueue) > 0 {
		a := st.aQueue[0]
		st.aQueue = st.aQueue[1:]
		b := st.bQueue[0]
		st.bQueue = st.bQueue[1:]

		out, err := callKernel(ctx, sc, n.nodeID, func() (TOut, error) {
			return n.merge(a, b), nil
		})
		if err != nil {
			return err
		}
		sc.emit(ctx, n.nodeID, out)
	}
	return nil
}

func (n *zipNodeImpl[TA, TB, TOut]) reset() { n.perRank.reset() }

// zipPort is a thin routing node registered in the arena for each of
// Zip's two input edges: it exists only so the scheduler's generic
// node.deliver dispatch can tell which side a row arrived on and hand it
// to the shared core's deliverA/deliverB.
type zipPort[TA, TB, TOut any] struct {
	base
	core *zipNodeImpl[TA, TB, TOut]
	isB  bool
}

func (p *zipPort[TA, TB, TOut]) kind() Kind { return KindZip }

func (p *zipPort[TA, TB, TOut]) deliver(ctx context.Context, sc *scheduler, row any) error {
	if p.isB {
		b, _ := row.(TB)
		return p.core.deliverB(ctx, sc, b)
	}
	a, _ := row.(TA)
	return p.core.deliverA(ctx, sc, a)
}

func (p *zipPort[TA, TB, TOut]) reset() {}
