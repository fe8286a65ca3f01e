package flow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type keyedRow struct {
	Key string
	Val int
}

func TestPartitionerHashIsDeterministic(t *testing.T) {
	p := &partitioner{}
	pl := Hash([]int{0, 1, 2}, 1)

	row := keyedRow{Key: "alpha", Val: 1}
	first := p.destinations(pl, row)
	second := p.destinations(pl, row)

	require.Equal(t, first, second)
	require.Len(t, first, 1)
}

func TestPartitionerTaskRoundRobins(t *testing.T) {
	p := &partitioner{}
	pl := Task([]int{0, 1, 2})

	var got []int
	for i := 0; i < 6; i++ {
		dest := p.destinations(pl, keyedRow{Key: "x", Val: i})
		got = append(got, dest[0])
	}

	require.Equal(t, []int{0, 1, 2, 0, 1, 2}, got)
}

func TestPartitionerDupeAndAllBroadcast(t *testing.T) {
	p := &partitioner{}
	ranks := []int{0, 1, 2, 3}

	require.ElementsMatch(t, ranks, p.destinations(Dupe(ranks), keyedRow{}))
	require.ElementsMatch(t, ranks, p.destinations(All(4), keyedRow{}))
}

func TestPartitionerInProcessPicksFirstRank(t *testing.T) {
	p := &partitioner{}
	require.Equal(t, []int{0}, p.destinations(InProcess(), keyedRow{}))
}

// TestPartitionerDupeTaskBroadcastsPerGroupAndRoundRobinsWithin exercises
// the combined dupe|task mode: every row goes to every group (dupe), and
// within a group successive rows round-robin across its ranks (task),
// with each group's rotation independent of the others'.
func TestPartitionerDupeTaskBroadcastsPerGroupAndRoundRobinsWithin(t *testing.T) {
	p := &partitioner{}
	pl := DupeTask([][]int{{0, 1}, {2, 3, 4}})

	var got [][]int
	for i := 0; i < 4; i++ {
		got = append(got, p.destinations(pl, keyedRow{Val: i}))
	}

	require.Equal(t, [][]int{
		{0, 2},
		{1, 3},
		{0, 4},
		{1, 2},
	}, got)
}
