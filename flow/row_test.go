package flow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type rowABC struct {
	A int
	B string
	C float64
}

func TestSelect(t *testing.T) {
	row := rowABC{A: 1, B: "x", C: 2.5}

	require.Equal(t, []any{1, 2.5}, Select(row, 1, 3))
	require.Equal(t, []any{"x"}, Select(row, 2))
}

func TestSelectOutOfRangePanics(t *testing.T) {
	row := rowABC{A: 1, B: "x", C: 2.5}
	require.Panics(t, func() { Select(row, 4) })
	require.Panics(t, func() { Select(row, 0) })
}

func TestDrop(t *testing.T) {
	row := rowABC{A: 1, B: "x", C: 2.5}
	require.Equal(t, []any{1, 2.5}, Drop(row, 2))
	require.Equal(t, []any{"x", 2.5}, Drop(row, 1))
}

func TestAppend(t *testing.T) {
	row := rowABC{A: 1, B: "x", C: 2.5}
	require.Equal(t, []any{1, "x", 2.5, true}, Append(row, true))
}

type rowAB struct {
	A int
	B string
}

func TestAssemble(t *testing.T) {
	out := Assemble[rowAB]([]any{7, "seven"})
	require.Equal(t, rowAB{A: 7, B: "seven"}, out)
}

type rowBCD struct {
	B string
	C float64
	D int
}

func TestColsTransform(t *testing.T) {
	row := rowABC{A: 1, B: "x", C: 2.5}

	// selects col A, drops it from the rest (B, C), and appends the
	// transformed result after the untouched columns.
	out := ColsTransform[rowABC, rowBCD](row, []int{1}, func(sel []any) []any {
		return []any{sel[0].(int) * 10}
	})

	require.Equal(t, rowBCD{B: "x", C: 2.5, D: 10}, out)
}

func TestMergeArAndExplode(t *testing.T) {
	arr := MergeAr(1, 2, 3)
	require.Equal(t, []int{1, 2, 3}, arr)

	cols := Explode(arr)
	require.Equal(t, []any{1, 2, 3}, cols)
}
