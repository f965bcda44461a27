package kv

import (
	"context"
	"iter"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-memory Store implementation backed by a map.
// It is safe for concurrent use and intended primarily for testing.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates a new in-memory Store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key []byte) ([]byte, error) {
	m.mu.RLock()
	v, ok := m.data[string(key)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	// Return a copy to prevent mutation.
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (m *Memory) Set(_ context.Context, key, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	m.mu.Lock()
	m.data[string(key)] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key []byte) error {
	m.mu.Lock()
	delete(m.data, string(key))
	m.mu.Unlock()
	return nil
}

func (m *Memory) Update(_ context.Context, key []byte, f UpdateFunc) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := f(m.data[string(key)])
	if len(next) == 0 {
		delete(m.data, string(key))
		return nil, nil
	}
	cp := make([]byte, len(next))
	copy(cp, next)
	m.data[string(key)] = cp
	return next, nil
}

func (m *Memory) List(_ context.Context, prefix []byte) iter.Seq2[Entry, error] {
	// Snapshot matching keys under the read lock, then yield lock-free.
	m.mu.RLock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, string(prefix)) {
			keys = append(keys, k)
		}
	}
	matches := make([]Entry, len(keys))
	sort.Strings(keys)
	for i, k := range keys {
		v := m.data[k]
		cp := make([]byte, len(v))
		copy(cp, v)
		matches[i] = Entry{Key: []byte(k), Value: cp}
	}
	m.mu.RUnlock()

	return func(yield func(Entry, error) bool) {
		for _, e := range matches {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (m *Memory) Close() error {
	return nil
}
