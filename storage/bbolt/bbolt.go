// Package bbolt is a durable Storage backend for reduce accumulators,
// backed by go.etcd.io/bbolt. Useful when a reduce unit's per-key state
// should survive a process restart between runs of the same Env.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.etcd.io/bbolt"

	"github.com/tymbaca/flowmesh/pkg/caller"
	"github.com/tymbaca/flowmesh/pkg/tracer"
)

type Storage struct {
	db *bbolt.DB
}

func New(path string) (*Storage, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open accumulator store: %w", err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Get(ctx context.Context, bucket string, key string) []string {
	_, span := tracer.Start(ctx, caller.Name())
	defer span.End()

	var vals []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		buck := tx.Bucket([]byte(bucket))
		if buck == nil {
			return nil
		}
		vals = get(buck, key)
		return nil
	})
	if err != nil {
		panic(fmt.Errorf("get accumulator %s/%s: %w", bucket, key, err))
	}

	return vals
}

func (s *Storage) GetKeys(ctx context.Context, bucket string) []string {
	_, span := tracer.Start(ctx, caller.Name())
	defer span.End()

	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		buck := tx.Bucket([]byte(bucket))
		if buck == nil {
			return nil
		}
		c := buck.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		panic(fmt.Errorf("list accumulator keys %s: %w", bucket, err))
	}

	return keys
}

func (s *Storage) Append(ctx context.Context, bucket string, key string, newVals []string) {
	_, span := tracer.Start(ctx, caller.Name())
	defer span.End()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		buck, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}

		vals := append(get(buck, key), newVals...)

		data, err := json.Marshal(vals)
		if err != nil {
			return err
		}

		return buck.Put([]byte(key), data)
	})
	if err != nil {
		panic(fmt.Errorf("append accumulator %s/%s: %w", bucket, key, err))
	}
}

// Reset drops every bucket, clearing all accumulator state. The engine
// never calls it: Env.Reset only clears backends with a Reset() method
// that returns nothing, so stored rows persist across runs until a
// caller invokes this directly.
func (s *Storage) Reset() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			return tx.DeleteBucket(name)
		})
	})
}

// Close releases the underlying database file.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Destroy closes the database and removes its file; mainly for tests.
func (s *Storage) Destroy() error {
	path := s.db.Path()
	_ = s.Close()
	return os.Remove(path)
}

func get(buck *bbolt.Bucket, key string) []string {
	data := buck.Get([]byte(key))
	if len(data) == 0 {
		return nil
	}

	var vals []string
	if err := json.Unmarshal(data, &vals); err != nil {
		panic(fmt.Errorf("decode accumulator value: %w", err))
	}
	return vals
}
