package hnsw

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/haivivi/arrowdb/pkg/kv"
)

// Reserved keys in a collection partition.
var (
	idKey    = []byte("__id__")
	entryKey = []byte("__entry__")
)

// Query ids label in-flight searches. They live above every id the
// allocator will hand out in practice (the design assumes fewer than 2^48
// inserted points, which insert enforces), so a query point can share the
// vector cache with real points without colliding.
const (
	queryStart = 1<<48 - 1
	queryStop  = 1<<idBits - 1
)

// ErrIDSpaceExhausted is returned by Insert once the allocator reaches
// the query-id range.
var ErrIDSpaceExhausted = errors.New("hnsw: point id space exhausted")

// queryID hands out ephemeral ids for searches. Never persisted.
type queryID struct {
	n atomic.Uint64
}

func newQueryID() *queryID {
	q := &queryID{}
	q.n.Store(queryStart)
	return q
}

func (q *queryID) next() uint64 {
	id := q.n.Add(1) - 1
	// Wrap back once the range is spent.
	q.n.CompareAndSwap(queryStop, queryStart)
	return id
}

// The persistent id state of a collection lives in two reserved keys:
// __id__ holds the 8-byte LE allocation counter, __entry__ the 8-byte LE
// packed level‖id of the graph entry point. Both are maintained through
// the store's atomic Update so concurrent inserters never double-allocate
// or regress the entry level.

func decodeU64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// nextID atomically increments the allocation counter and returns the
// pre-increment value. The first id in a fresh store is 0.
func nextID(ctx context.Context, store kv.Store) (uint64, error) {
	next, err := store.Update(ctx, idKey, func(old []byte) []byte {
		return binary.LittleEndian.AppendUint64(nil, decodeU64(old)+1)
	})
	if err != nil {
		return 0, fmt.Errorf("hnsw: allocate id: %w", err)
	}
	return decodeU64(next) - 1, nil
}

// idCount returns the current value of the allocation counter: an upper
// bound on live points, since removed points stay counted.
func idCount(ctx context.Context, store kv.Store) (uint64, error) {
	v, err := store.Get(ctx, idKey)
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("hnsw: read id counter: %w", err)
	}
	return decodeU64(v), nil
}

// entryPoint returns the persisted (level, id) entry record, or (0, 0)
// when unset.
func entryPoint(ctx context.Context, store kv.Store) (int, uint64, error) {
	v, err := store.Get(ctx, entryKey)
	if errors.Is(err, kv.ErrNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("hnsw: read entry point: %w", err)
	}
	p := point(decodeU64(v))
	return p.level(), p.id(), nil
}

// setEntryPoint conditionally replaces the entry record: the write takes
// effect only when the incoming level is strictly greater than the stored
// one, so the entry level is monotone under concurrent inserts.
func setEntryPoint(ctx context.Context, store kv.Store, level int, id uint64) error {
	_, err := store.Update(ctx, entryKey, func(old []byte) []byte {
		cur := point(decodeU64(old))
		if cur.level() >= level {
			return binary.LittleEndian.AppendUint64(nil, uint64(cur))
		}
		return binary.LittleEndian.AppendUint64(nil, uint64(makePoint(id, level)))
	})
	if err != nil {
		return fmt.Errorf("hnsw: publish entry point: %w", err)
	}
	return nil
}
