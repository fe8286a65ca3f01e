// Package storage defines the pluggable backend for reduce-unit
// accumulator state.
package storage

import "context"

// Storage persists per-key accumulator values for a reduce unit. A
// ReduceAll unit uses one bucket per (stable arena index, rank) pair, so
// that concurrent reduce units, and the ranks hosting one unit, never
// share key space.
type Storage interface {
	Get(ctx context.Context, bucket string, key string) []string
	GetKeys(ctx context.Context, bucket string) []string
	Append(ctx context.Context, bucket string, key string, vals []string)
}
