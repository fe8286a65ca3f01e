package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type person struct {
	Name string
	Age  int
	City string
}

type ageBucket struct {
	Name   string
	City   string
	Bucket string
}

// TestMapColsTransform exercises spec.md §4.1's colsTransform assembly
// mode: the kernel only ever sees column 2 (Age), Age is dropped from the
// output, Name and City keep their relative order, and the bucketed
// result is appended after them, mirroring demoMapFilter.cpp's
// `.map<1,2>(...).colsTransform()`.
func TestMapColsTransform(t *testing.T) {
	env := NewEnv(1)
	rise := Rise[person](env, InProcess(), &sliceSource[person]{
		rows: []person{{"ann", 17, "ny"}, {"bo", 42, "sf"}},
	})

	bucketed := MapCols[person, ageBucket](rise, InProcess(), []int{2}, AssemblyColsTransform,
		func(_ context.Context, sel []any) Rows[[]any] {
			age := sel[0].(int)
			bucket := "adult"
			if age < 18 {
				bucket = "minor"
			}
			return Rows[[]any]{{bucket}}
		})

	collector := &Collector[ageBucket]{}
	Attach(bucketed, InProcess(), collector)
	require.NoError(t, env.Run(context.Background()))
	require.Equal(t, []ageBucket{
		{Name: "ann", City: "ny", Bucket: "minor"},
		{Name: "bo", City: "sf", Bucket: "adult"},
	}, collector.Rows())
}

type nameOnly struct{ Name string }

// TestFilterColsDropsPredicateColumn exercises the `cols<…>` forward
// modifier (ForwardCols): the predicate is evaluated over Age alone
// (column 2) but the row that continues downstream keeps only Name
// (column 1), so Age is dropped from it, per spec.md §4.4 ("reshape the
// forwarded row but never the predicate's view").
func TestFilterColsDropsPredicateColumn(t *testing.T) {
	env := NewEnv(1)
	rise := Rise[person](env, InProcess(), &sliceSource[person]{
		rows: []person{{"ann", 17, "ny"}, {"bo", 42, "sf"}},
	})

	adults := FilterCols[person, nameOnly](rise, InProcess(), []int{2},
		func(_ context.Context, sel []any) bool { return sel[0].(int) >= 18 },
		ForwardCols, []int{1})

	collector := &Collector[nameOnly]{}
	Attach(adults, InProcess(), collector)
	require.NoError(t, env.Run(context.Background()))
	require.Equal(t, []nameOnly{{Name: "bo"}}, collector.Rows())
}
