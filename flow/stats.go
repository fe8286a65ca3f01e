package flow

import (
	"fmt"
	"sync/atomic"
)

// Stats is the per-rank row counter pair the scheduler's two-phase
// termination barrier reduces across ranks, generalized from the
// teacher's mapreduce/counter.go Stats{MapIn, MapOut, ReduceIn, ReduceOut}
// into the rows-sent/rows-received counters spec.md §4.6 requires.
type Stats struct {
	RowsSent     atomic.Uint64
	RowsReceived atomic.Uint64
}

func (s *Stats) String() string {
	return fmt.Sprintf("RowsSent: %d, RowsReceived: %d", s.RowsSent.Load(), s.RowsReceived.Load())
}

// GlobalStats aggregates Stats across every rank of every Env run in this
// process; it is never reset. Kept for observability parity with the
// teacher's package-level GlobalStats.
var GlobalStats = &Stats{}
