package flow

import "reflect"

// Select extracts the values of the given 1-based column indices from
// row, in the order given — select<i1,...,iK>(row) from spec.md §4.1.
func Select[T any](row T, idx ...int) []any {
	schemaOf[T]().validate(idx)

	v := reflect.ValueOf(row)
	out := make([]any, len(idx))
	for i, col := range idx {
		out[i] = v.Field(col - 1).Interface()
	}
	return out
}

// Drop returns the values of every column of row except those named in
// idx, preserving their original relative order — drop<i1,...>(row).
func Drop[T any](row T, idx ...int) []any {
	schemaOf[T]().validate(idx)

	dropped := make(map[int]bool, len(idx))
	for _, i := range idx {
		dropped[i] = true
	}

	v := reflect.ValueOf(row)
	out := make([]any, 0, v.NumField()-len(idx))
	for i := 0; i < v.NumField(); i++ {
		if !dropped[i+1] {
			out = append(out, v.Field(i).Interface())
		}
	}
	return out
}

// Append concatenates row's columns, in field order, with extra —
// append(row, extra...) from spec.md §4.1.
func Append[T any](row T, extra ...any) []any {
	v := reflect.ValueOf(row)
	out := make([]any, 0, v.NumField()+len(extra))
	for i := 0; i < v.NumField(); i++ {
		out = append(out, v.Field(i).Interface())
	}
	return append(out, extra...)
}

// Assemble builds a row of type T by setting its exported fields
// positionally from cols, in field order. Used by unit implementations to
// turn a dynamic column tuple back into a caller's concrete row type.
func Assemble[T any](cols []any) T {
	var out T
	v := reflect.ValueOf(&out).Elem()
	n := v.NumField()
	if n > len(cols) {
		n = len(cols)
	}
	for i := 0; i < n; i++ {
		if cols[i] == nil {
			continue
		}
		v.Field(i).Set(reflect.ValueOf(cols[i]))
	}
	return out
}

// ColsTransform runs fn over the selected columns of row and returns a
// new row of type TOut assembled from the non-selected input columns
// (which keep their relative order and precede the result) followed by
// fn's result columns — the colsTransform assembly mode of spec.md §4.1
// and §4.4's Map unit.
func ColsTransform[TIn, TOut any](row TIn, idx []int, fn func(sel []any) []any) TOut {
	selected := Select(row, idx...)
	rest := Drop(row, idx...)
	result := fn(selected)
	return Assemble[TOut](append(rest, result...))
}

// Explode splits a fixed-length array column into N same-typed columns.
func Explode[A any](arr []A) []any {
	out := make([]any, len(arr))
	for i, a := range arr {
		out[i] = a
	}
	return out
}

// MergeAr merges N same-typed columns into a single array column — the
// dual of Explode.
func MergeAr[A any](cols ...A) []A {
	out := make([]A, len(cols))
	copy(out, cols)
	return out
}
