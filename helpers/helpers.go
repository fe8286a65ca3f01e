// Package helpers collects small kernel factories generalized from the
// teacher's cmd/wordcount countMap/countReduce pair: a handful of the
// same shapes (count occurrences, sum counts, compare a value, number a
// row) show up in almost every pipeline, so they're provided once
// instead of rewritten per caller.
package helpers

import (
	"cmp"
	"context"
	"sync/atomic"

	"github.com/tymbaca/flowmesh/flow"
)

// Number is the set of types Sum folds over.
type Number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

// Sum is a ready flow.ReduceFunc that accumulates a running total,
// generalizing the teacher's countReduce's strconv.Atoi-then-add loop to
// any numeric accumulator type.
func Sum[T Number](_ context.Context, acc T, in T) T { return acc + in }

// Count is a ready flow.ReduceFunc that counts rows regardless of their
// value, the fold half of the teacher's countMap word-occurrence tally.
func Count[T any](_ context.Context, acc int, _ T) int { return acc + 1 }

// Gt, Lt and Eq are value predicate factories meant to be combined with
// flow.ColsTransform or a caller's own PredFunc over a selected column.
func Gt[T cmp.Ordered](threshold T) func(T) bool { return func(v T) bool { return v > threshold } }
func Lt[T cmp.Ordered](threshold T) func(T) bool { return func(v T) bool { return v < threshold } }
func Eq[T comparable](target T) func(T) bool      { return func(v T) bool { return v == target } }

// Tautology always keeps the row; useful as a Filter placeholder or a
// no-op branch condition in a Tee.
func Tautology[T any](T) bool { return true }

// SerialNumber hands out a monotonic counter, safe for concurrent use;
// each SerialNumber value counts independently. For kernels
// that need to number rows as they pass through (e.g. assigning a
// synthetic row id before a Reduce that needs one).
type SerialNumber struct {
	n atomic.Int64
}

// Next returns the next serial number, starting at 1.
func (s *SerialNumber) Next() int64 { return s.n.Add(1) }

// MergeAr and ExplodeAr are thin re-exports of flow's array-column
// algebra, kept here so callers writing kernels don't need a second
// import for the common case of merging/splitting a fixed-width array
// column.
func MergeAr[A any](cols ...A) []A   { return flow.MergeAr(cols...) }
func ExplodeAr[A any](arr []A) []any { return flow.Explode(arr) }

// WrapBiFnReduce lifts a plain associative binary function into a
// flow.ReduceFunc over the same type, for the common case where the
// accumulator and input row share a type (sum, max, concatenation, ...).
func WrapBiFnReduce[T any](fn func(a, b T) T) flow.ReduceFunc[T, T] {
	return func(_ context.Context, acc, in T) T { return fn(acc, in) }
}

// WrapPredReduce turns a predicate into a match-counting flow.ReduceFunc,
// for Reduce units that just want "how many rows of this key satisfy
// pred".
func WrapPredReduce[T any](pred func(T) bool) flow.ReduceFunc[T, int] {
	return func(_ context.Context, acc int, in T) int {
		if pred(in) {
			return acc + 1
		}
		return acc
	}
}

// PerColFns builds a flow.ColsTransform step function that applies fns[i]
// to the i'th selected column, passing a column through untouched if it
// has no matching function.
func PerColFns(fns ...func(any) any) func([]any) []any {
	return func(cols []any) []any {
		out := make([]any, len(cols))
		for i, c := range cols {
			if i < len(fns) && fns[i] != nil {
				out[i] = fns[i](c)
				continue
			}
			out[i] = c
		}
		return out
	}
}

// EveryColFns builds a flow.ColsTransform step function that applies the
// same fn to every selected column.
func EveryColFns(fn func(any) any) func([]any) []any {
	return func(cols []any) []any {
		out := make([]any, len(cols))
		for i, c := range cols {
			out[i] = fn(c)
		}
		return out
	}
}
