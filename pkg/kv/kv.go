// Package kv provides a byte-keyed, byte-valued durable store interface
// with atomic read-modify-write, plus prefix-scoped partition views.
//
// The package includes a BadgerDB-backed implementation for production use
// and an in-memory implementation for testing. A [Partition] wraps any
// Store so that several logical keyspaces can share one physical store.
package kv

import (
	"context"
	"errors"
	"iter"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when a key does not exist in the store.
	ErrNotFound = errors.New("kv: not found")

	// ErrConflict is returned by Update when the backend could not commit
	// the read-modify-write within its retry budget.
	ErrConflict = errors.New("kv: update conflict")
)

// Entry is a key-value pair returned by List.
type Entry struct {
	Key   []byte
	Value []byte
}

// UpdateFunc transforms the current value of a key into its new value.
// It receives nil when the key is absent. Returning an empty slice deletes
// the key. The function may be called more than once if the backend has to
// retry on contention, so it must be free of side effects.
type UpdateFunc func(old []byte) []byte

// Store is the interface for a durable byte-keyed store.
//
// All implementations must be safe for concurrent use. Set and Update are
// durable on return.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Set stores a key-value pair. Overwrites any existing value.
	Set(ctx context.Context, key, value []byte) error

	// Delete removes a key. No error if the key does not exist.
	Delete(ctx context.Context, key []byte) error

	// Update atomically applies f to the current value of key and stores
	// the result, returning the new value. An empty result deletes the key.
	Update(ctx context.Context, key []byte, f UpdateFunc) ([]byte, error)

	// List iterates over all entries whose key starts with the given
	// prefix, in lexicographic order of the full key.
	List(ctx context.Context, prefix []byte) iter.Seq2[Entry, error]

	// Close releases any resources held by the store.
	Close() error
}
