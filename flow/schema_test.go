package flow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchemaOfPanicsOnNonStruct(t *testing.T) {
	require.Panics(t, func() { schemaOf[int]() })
}

func TestSchemaValidate(t *testing.T) {
	s := schemaOf[rowABC]()
	require.Equal(t, 3, s.numField)

	require.NotPanics(t, func() { s.validate([]int{1, 2, 3}) })
	require.Panics(t, func() { s.validate([]int{0}) })
	require.Panics(t, func() { s.validate([]int{4}) })
}
