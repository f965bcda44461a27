package kv

import (
	"context"
	"fmt"
	"iter"
	"strings"
)

// partitionSep terminates the partition name inside an encoded key, so
// partition "ab" can never shadow partition "abc". Names must not contain
// this byte.
const partitionSep = 0x00

// Partition returns a prefix-scoped view of store. Keys written through
// the view are stored under "#<name>\x00", keeping independent keyspaces
// apart inside one physical store. Closing a partition is a no-op; the
// parent store owns the underlying resources.
func Partition(store Store, name string) (Store, error) {
	if name == "" {
		return nil, fmt.Errorf("kv: empty partition name")
	}
	if strings.ContainsRune(name, partitionSep) {
		return nil, fmt.Errorf("kv: partition name %q contains NUL", name)
	}
	prefix := make([]byte, 0, len(name)+2)
	prefix = append(prefix, '#')
	prefix = append(prefix, name...)
	prefix = append(prefix, partitionSep)
	return &partition{store: store, prefix: prefix}, nil
}

type partition struct {
	store  Store
	prefix []byte
}

func (p *partition) key(k []byte) []byte {
	out := make([]byte, 0, len(p.prefix)+len(k))
	out = append(out, p.prefix...)
	return append(out, k...)
}

func (p *partition) Get(ctx context.Context, key []byte) ([]byte, error) {
	return p.store.Get(ctx, p.key(key))
}

func (p *partition) Set(ctx context.Context, key, value []byte) error {
	return p.store.Set(ctx, p.key(key), value)
}

func (p *partition) Delete(ctx context.Context, key []byte) error {
	return p.store.Delete(ctx, p.key(key))
}

func (p *partition) Update(ctx context.Context, key []byte, f UpdateFunc) ([]byte, error) {
	return p.store.Update(ctx, p.key(key), f)
}

func (p *partition) List(ctx context.Context, prefix []byte) iter.Seq2[Entry, error] {
	full := p.key(prefix)
	return func(yield func(Entry, error) bool) {
		for e, err := range p.store.List(ctx, full) {
			if err != nil {
				yield(Entry{}, err)
				return
			}
			// Strip the partition prefix so callers see their own keys.
			e.Key = e.Key[len(p.prefix):]
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (p *partition) Close() error {
	return nil
}
