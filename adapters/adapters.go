// Package adapters provides the stock RiseSource and SinkFunc
// implementations every pipeline needs at its edges: in-memory rows for
// tests and demos, line-oriented CSV files, and writers for dumping
// results, grounded on the teacher's cmd/wordcount main.go (its inline
// gofakeit generator and toLog helper) and on Sunveg-rainstorm's
// op_transform3 strings.Split(line, ",") column-parsing idiom.
package adapters

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/tymbaca/flowmesh/flow"
)

// memSource is FromMem's RiseSource/RankAwareSource implementation: it
// hands out fixed-size batches from an in-memory slice, and splits that
// slice contiguously across ranks when asked.
type memSource[T any] struct {
	rows  []T
	pos   int
	batch int
}

// FromMem wraps rows as a RiseSource, batching batchSize rows per Next
// call (minimum 1).
func FromMem[T any](rows []T, batchSize int) flow.RankAwareSource[T] {
	if batchSize < 1 {
		batchSize = 1
	}
	return &memSource[T]{rows: rows, batch: batchSize}
}

func (s *memSource[T]) Split() bool { return true }

func (s *memSource[T]) Next(_ context.Context) ([]T, bool) {
	if s.pos >= len(s.rows) {
		return nil, false
	}
	end := s.pos + s.batch
	if end > len(s.rows) {
		end = len(s.rows)
	}
	out := s.rows[s.pos:end]
	s.pos = end
	return out, true
}

func (s *memSource[T]) ForRank(rank, total int) flow.RiseSource[T] {
	n := len(s.rows)
	lo := n * rank / total
	hi := n * (rank + 1) / total
	return &memSource[T]{rows: s.rows[lo:hi], batch: s.batch}
}

// fileSource is FromFile's RiseSource/RankAwareSource implementation: it
// lazily reads path once (on the first Next/ForRank call), parsing each
// line's comma-separated fields with parse, optionally pre-sorting with
// the comparator given to Ordered.
type fileSource[T any] struct {
	path  string
	parse func(fields []string) (T, error)
	less  func(a, b T) bool

	once    sync.Once
	initErr error
	rows    []T
	pos     int
}

// FromFile builds a RiseSource reading path as line-oriented CSV, parsing
// each line's comma-split fields with parse.
func FromFile[T any](path string, parse func(fields []string) (T, error)) *fileSource[T] {
	return &fileSource[T]{path: path, parse: parse}
}

// Ordered pre-sorts the file's rows by less before the run starts, for
// pipelines that need a Reduce in Ordered mode downstream.
func (s *fileSource[T]) Ordered(less func(a, b T) bool) *fileSource[T] {
	s.less = less
	return s
}

func (s *fileSource[T]) Split() bool { return true }

func (s *fileSource[T]) load() {
	s.once.Do(func() {
		f, err := os.Open(s.path)
		if err != nil {
			s.initErr = err
			return
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			row, err := s.parse(strings.Split(line, ","))
			if err != nil {
				s.initErr = fmt.Errorf("adapters: parse %q: %w", line, err)
				return
			}
			s.rows = append(s.rows, row)
		}
		if err := scanner.Err(); err != nil {
			s.initErr = err
			return
		}

		if s.less != nil {
			sort.Slice(s.rows, func(i, j int) bool { return s.less(s.rows[i], s.rows[j]) })
		}
	})
}

func (s *fileSource[T]) Next(_ context.Context) ([]T, bool) {
	s.load()
	if s.initErr != nil {
		panic(s.initErr)
	}
	if s.pos >= len(s.rows) {
		return nil, false
	}
	end := s.pos + 32
	if end > len(s.rows) {
		end = len(s.rows)
	}
	out := s.rows[s.pos:end]
	s.pos = end
	return out, true
}

func (s *fileSource[T]) ForRank(rank, total int) flow.RiseSource[T] {
	s.load()
	if s.initErr != nil {
		panic(s.initErr)
	}
	n := len(s.rows)
	lo := n * rank / total
	hi := n * (rank + 1) / total
	sub := &fileSource[T]{rows: append([]T(nil), s.rows[lo:hi]...)}
	sub.once.Do(func() {})
	return sub
}

// Dump is a stock sink writing each row to w with fmt, printing the row
// type as a one-line header before the first row — the same shape as
// the teacher's toLog helper in cmd/wordcount/main.go, generalized from
// a fixed KeyVals channel to any row type.
func Dump[T any](w io.Writer) flow.SinkFunc[T] {
	var (
		mu   sync.Mutex
		once sync.Once
	)
	return func(_ context.Context, row T) {
		mu.Lock()
		defer mu.Unlock()
		once.Do(func() { fmt.Fprintf(w, "# %T\n", row) })
		fmt.Fprintf(w, "%v\n", row)
	}
}

// ToFile is a stock sink writing each row as a CSV line built by format.
// It opens path once and returns a sink plus an io.Closer the caller
// should close once the run completes.
func ToFile[T any](path string, format func(T) []string) (flow.SinkFunc[T], io.Closer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}

	var mu sync.Mutex
	fn := func(_ context.Context, row T) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(f, strings.Join(format(row), ","))
	}
	return fn, f, nil
}
