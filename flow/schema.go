package flow

import (
	"fmt"
	"reflect"
)

// schema caches the field layout of a row struct type. Go has no
// const-generic column indices, so flowmesh resolves 1-based index lists
// against a row's reflected field count once, when a unit referencing
// them is built, and panics on a bad index rather than deferring the
// failure to a row that happens to traverse the edge at run time. This is
// the "build-time validator" spec.md's design notes call for in place of
// compile-time index-parameterized generics.
type schema struct {
	typ      reflect.Type
	numField int
}

func schemaOf[T any]() schema {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil || t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("flow: row type %T is not a struct", zero))
	}
	return schema{typ: t, numField: t.NumField()}
}

// validate panics if any 1-based index in idx is out of range for the
// schema.
func (s schema) validate(idx []int) {
	for _, i := range idx {
		if i < 1 || i > s.numField {
			panic(fmt.Sprintf("flow: column index %d out of range for %s (%d columns)", i, s.typ, s.numField))
		}
	}
}
