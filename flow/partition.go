package flow

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/spaolacci/murmur3"
)

// Mode is a unit placement's routing policy. Flags combine, e.g.
// ModeDupe|ModeTask means the sender duplicates its output to every
// target rank group and round-robins within each group.
type Mode uint8

const (
	ModeNone  Mode = 0
	ModeHash  Mode = 1 << 0
	ModeDupe  Mode = 1 << 1
	ModeTask  Mode = 1 << 2
	ModeAll   Mode = 1 << 3
	ModeShard Mode = 1 << 4
)

func (m Mode) has(f Mode) bool { return m&f != 0 }

// Placement is a unit's process-group policy: the ranks that host it, the
// partition mode routing rows to it, and (for ModeHash) the 1-based
// column indices used as the key. Groups is only meaningful when Mode
// combines ModeDupe|ModeTask: each element is one target rank group that
// receives a full duplicate of the stream, round-robined across the
// ranks within that group.
type Placement struct {
	Ranks  []int
	Mode   Mode
	Key    []int
	Groups [][]int
}

// InProcess is the default placement: hosted on rank 0 only, no shuffle.
func InProcess() Placement { return Placement{Ranks: []int{0}, Mode: ModeNone} }

// Hash partitions rows across ranks by murmur3 of the selected key
// columns, grounded on the teacher's mapreduce.New partition function
// (murmur3.Sum64(key) % reducerCount), generalized to route through an
// explicit rank list.
func Hash(ranks []int, keyIdx ...int) Placement {
	return Placement{Ranks: ranks, Mode: ModeHash, Key: keyIdx}
}

// Dupe broadcasts every row to every rank in ranks.
func Dupe(ranks []int) Placement { return Placement{Ranks: ranks, Mode: ModeDupe} }

// Task round-robins rows across ranks without key semantics.
func Task(ranks []int) Placement { return Placement{Ranks: ranks, Mode: ModeTask} }

// DupeTask duplicates every row of the stream to each rank group in
// groups, round-robining across the ranks within a given group — the
// combined dupe|task mode of spec.md §4.3, for fanning the same stream
// out to several independent downstream teams that each want the full
// data exactly once, load-balanced across their own ranks.
func DupeTask(groups [][]int) Placement {
	var ranks []int
	for _, g := range groups {
		ranks = append(ranks, g...)
	}
	return Placement{Ranks: ranks, Mode: ModeDupe | ModeTask, Groups: groups}
}

// Shard places a Rise across ranks so each rank pulls a disjoint,
// statically-assigned slice of the source's rows by index — spec.md
// §4.3's shard mode, driven at the source by RiseSource.Split()/
// RankAwareSource.ForRank rather than by the partitioner (destinations
// only sees Shard when some other unit is, unusually, placed with it as
// a consumer, in which case it behaves like a broadcast to ranks).
func Shard(ranks []int) Placement { return Placement{Ranks: ranks, Mode: ModeShard} }

// All is shorthand for every rank in the world group.
func All(worldSize int) Placement {
	ranks := make([]int, worldSize)
	for i := range ranks {
		ranks[i] = i
	}
	return Placement{Ranks: ranks, Mode: ModeAll}
}

// partitioner resolves a placement + row into destination ranks. counter
// backs the plain task round-robin mode; groupCounters backs the
// combined dupe|task mode, one independent round-robin cursor per rank
// group so groups don't perturb each other's rotation.
type partitioner struct {
	counter       atomic.Uint64
	groupMu       sync.Mutex
	groupCounters []uint64
}

func (p *partitioner) nextInGroup(g int) uint64 {
	p.groupMu.Lock()
	defer p.groupMu.Unlock()
	for len(p.groupCounters) <= g {
		p.groupCounters = append(p.groupCounters, 0)
	}
	n := p.groupCounters[g]
	p.groupCounters[g]++
	return n
}

// destinations returns the ranks a row must be routed to for the given
// placement. keyOf extracts the hash key from row when Mode has ModeHash.
// The combined dupe|task case must be checked before the standalone Dupe
// case: a value-less switch picks the first matching case, and dupe|task
// is not "broadcast to every rank" the way plain Dupe is.
func (p *partitioner) destinations(pl Placement, row any) []int {
	if len(pl.Ranks) == 0 {
		return nil
	}

	switch {
	case pl.Mode.has(ModeDupe) && pl.Mode.has(ModeTask):
		out := make([]int, 0, len(pl.Groups))
		for i, group := range pl.Groups {
			if len(group) == 0 {
				continue
			}
			n := p.nextInGroup(i)
			out = append(out, group[n%uint64(len(group))])
		}
		return out
	case pl.Mode.has(ModeAll):
		return pl.Ranks
	case pl.Mode.has(ModeDupe):
		return pl.Ranks
	case pl.Mode.has(ModeHash):
		h := murmur3.Sum64(hashBytes(row, pl.Key))
		return []int{pl.Ranks[int(h%uint64(len(pl.Ranks)))]}
	case pl.Mode.has(ModeTask):
		n := p.counter.Add(1) - 1
		return []int{pl.Ranks[int(n%uint64(len(pl.Ranks)))]}
	case pl.Mode.has(ModeShard):
		return pl.Ranks
	default: // ModeNone: same rank, inprocess
		return []int{pl.Ranks[0]}
	}
}

// hashBytes renders the selected key columns of row into bytes suitable
// for murmur3 hashing.
func hashBytes(row any, keyIdx []int) []byte {
	if len(keyIdx) == 0 {
		return []byte{}
	}

	v := reflect.ValueOf(row)
	var buf []byte
	for _, i := range keyIdx {
		buf = append(buf, []byte(fmt.Sprint(v.Field(i-1).Interface()))...)
		buf = append(buf, 0)
	}
	return buf
}
