// Package inmemory is the default Storage backend: a process-local map,
// cleared when the owning Env is reset between runs.
package inmemory

import (
	"context"
	"sync"

	"github.com/tymbaca/flowmesh/pkg/caller"
	"github.com/tymbaca/flowmesh/pkg/tracer"
)

type Storage struct {
	mu   sync.RWMutex
	data map[itemKey][]string
}

func New() *Storage {
	return &Storage{
		data: make(map[itemKey][]string, 1000),
	}
}

func (st *Storage) Get(ctx context.Context, bucket string, key string) []string {
	_, span := tracer.Start(ctx, caller.Name())
	defer span.End()

	st.mu.RLock()
	defer st.mu.RUnlock()

	return st.data[itemKey{bucket: bucket, key: key}]
}

func (st *Storage) GetKeys(ctx context.Context, bucket string) []string {
	_, span := tracer.Start(ctx, caller.Name())
	defer span.End()

	st.mu.RLock()
	defer st.mu.RUnlock()

	var keys []string
	for k := range st.data {
		if k.bucket == bucket {
			keys = append(keys, k.key)
		}
	}

	return keys
}

func (st *Storage) Append(ctx context.Context, bucket string, key string, vals []string) {
	_, span := tracer.Start(ctx, caller.Name())
	defer span.End()

	st.mu.Lock()
	defer st.mu.Unlock()

	ik := itemKey{bucket: bucket, key: key}
	st.data[ik] = append(st.data[ik], vals...)
}

// Reset clears all accumulator state; called from Env.Reset through the
// owning ReduceAll unit's reset.
func (st *Storage) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.data = make(map[itemKey][]string, 1000)
}

type itemKey struct {
	bucket string
	key    string
}
