// Package arrowdb manages named vector collections over one shared
// BadgerDB keyspace.
//
// Each collection is a fixed-dimension set of vectors with its own
// distance function and its own [hnsw.Index], bound to a dedicated
// partition of the keyspace. Collection metadata lives in a reserved
// registry partition as msgpack, so a reopened database comes back with
// the same collections it was closed with.
package arrowdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/arrowdb/pkg/hnsw"
	"github.com/haivivi/arrowdb/pkg/kv"
)

// registryPartition holds collection metadata; the name is reserved.
const registryPartition = "collections"

// Sentinel errors.
var (
	// ErrNotFound is returned when a collection does not exist.
	ErrNotFound = errors.New("arrowdb: collection not found")

	// ErrCollectionExists is returned when a collection already exists
	// with a different dimension.
	ErrCollectionExists = errors.New("arrowdb: collection exists")

	// ErrDimensionMismatch is returned when a caller opens a collection
	// with a dimension that disagrees with the stored metadata.
	ErrDimensionMismatch = errors.New("arrowdb: dimension mismatch")
)

// Collection is the immutable metadata of one collection. The msgpack
// field order is part of the on-disk registry format.
type Collection struct {
	// Dimension is the vector dimension. Required.
	Dimension int `msgpack:"dimension" yaml:"dimension"`

	// MaxLayer caps HNSW insertion levels. Default: 16.
	MaxLayer int `msgpack:"max_layer" yaml:"max_layer"`

	// NbConn is the per-layer connection target (M). Default: 20.
	NbConn int `msgpack:"nb_conn" yaml:"nb_conn"`

	// Ef is the construction/search candidate list size. Default: 200.
	Ef int `msgpack:"ef" yaml:"ef"`

	// Dist selects the distance function. Default: l2.
	Dist hnsw.Dist `msgpack:"dist" yaml:"dist"`
}

// DefaultCollection returns the standard metadata for a new collection
// of the given dimension.
func DefaultCollection(dimension int) Collection {
	return Collection{
		Dimension: dimension,
		MaxLayer:  16,
		NbConn:    20,
		Ef:        200,
		Dist:      hnsw.DistL2,
	}
}

// normalize replaces zero or out-of-range MaxLayer, NbConn and Ef with
// their defaults, defaults an empty Dist, and rejects a non-positive
// dimension or an unknown distance.
func (c *Collection) normalize() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("arrowdb: collection dimension must be positive")
	}
	def := DefaultCollection(c.Dimension)
	if c.MaxLayer <= 0 || c.MaxLayer > 16 {
		c.MaxLayer = def.MaxLayer
	}
	if c.NbConn < 2 {
		c.NbConn = def.NbConn
	}
	if c.Ef <= 0 {
		c.Ef = def.Ef
	}
	if c.Dist == "" {
		c.Dist = def.Dist
	}
	var d hnsw.Dist
	if err := d.UnmarshalText([]byte(c.Dist)); err != nil {
		return err
	}
	return nil
}

// Options configure Open.
type Options struct {
	// InMemory opens the keyspace without disk persistence. Useful for
	// tests and ephemeral workloads.
	InMemory bool

	// Logger receives registry and engine log output.
	// Default: slog.Default().
	Logger *slog.Logger
}

// DB is the collection registry. It owns the keyspace and hands out one
// live [hnsw.Index] per collection; handles returned for the same name
// share caches and may be used from any number of goroutines.
type DB struct {
	space    kv.Store
	registry kv.Store
	log      *slog.Logger

	mu          sync.RWMutex
	collections map[string]Collection
	engines     map[string]*hnsw.Index
}

// Open opens (or creates) the keyspace at path and loads the collection
// registry.
func Open(ctx context.Context, path string, opts *Options) (*DB, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dir := path
	if opts.InMemory {
		dir = ""
	}
	space, err := kv.NewBadger(kv.BadgerOptions{Dir: dir, InMemory: opts.InMemory})
	if err != nil {
		return nil, fmt.Errorf("arrowdb: open keyspace: %w", err)
	}
	registry, err := kv.Partition(space, registryPartition)
	if err != nil {
		_ = space.Close()
		return nil, err
	}

	db := &DB{
		space:       space,
		registry:    registry,
		log:         logger,
		collections: make(map[string]Collection),
		engines:     make(map[string]*hnsw.Index),
	}
	for e, err := range registry.List(ctx, nil) {
		if err != nil {
			_ = space.Close()
			return nil, fmt.Errorf("arrowdb: load registry: %w", err)
		}
		var c Collection
		if err := msgpack.Unmarshal(e.Value, &c); err != nil {
			_ = space.Close()
			return nil, fmt.Errorf("arrowdb: collection %q metadata: %w", e.Key, err)
		}
		db.collections[string(e.Key)] = c
	}
	logger.Debug("arrowdb: opened", "path", path, "collections", len(db.collections))
	return db, nil
}

// Close releases the keyspace. Collection handles must not be used after
// Close.
func (db *DB) Close() error {
	return db.space.Close()
}

// CreateCollection creates a collection with default parameters.
// Re-creating an existing collection with the same dimension is a no-op;
// a different dimension is refused.
func (db *DB) CreateCollection(ctx context.Context, name string, dimension int) error {
	return db.CreateCollectionWith(ctx, name, Collection{Dimension: dimension})
}

// CreateCollectionWith creates a collection with explicit parameters.
// Zero-valued fields take their defaults.
func (db *DB) CreateCollectionWith(ctx context.Context, name string, c Collection) error {
	if name == registryPartition {
		return fmt.Errorf("arrowdb: collection name %q is reserved", name)
	}
	if err := c.normalize(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if existing, ok := db.collections[name]; ok {
		if existing.Dimension != c.Dimension {
			return fmt.Errorf("%w: %q has dimension %d, not %d",
				ErrCollectionExists, name, existing.Dimension, c.Dimension)
		}
		_, err := db.engineLocked(name, existing)
		return err
	}

	data, err := msgpack.Marshal(&c)
	if err != nil {
		return fmt.Errorf("arrowdb: encode collection %q: %w", name, err)
	}
	if err := db.registry.Set(ctx, []byte(name), data); err != nil {
		return fmt.Errorf("arrowdb: store collection %q: %w", name, err)
	}
	if _, err := db.engineLocked(name, c); err != nil {
		return err
	}
	db.collections[name] = c
	db.log.Debug("arrowdb: collection created", "name", name, "dimension", c.Dimension)
	return nil
}

// Collection returns the metadata of the named collection.
func (db *DB) Collection(name string) (Collection, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, ok := db.collections[name]
	return c, ok
}

// Collections returns the names of all collections, sorted.
func (db *DB) Collections() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HNSW returns the engine of the named collection. The dimension must
// match the stored metadata; handles for the same name are shared.
func (db *DB) HNSW(name string, dimension int) (*hnsw.Index, error) {
	db.mu.RLock()
	c, ok := db.collections[name]
	engine := db.engines[name]
	db.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if c.Dimension != dimension {
		return nil, fmt.Errorf("%w: %q has dimension %d, not %d",
			ErrDimensionMismatch, name, c.Dimension, dimension)
	}
	if engine != nil {
		return engine, nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	return db.engineLocked(name, c)
}

// engineLocked returns the cached engine for name, constructing it over
// the collection's partition on first use. Caller holds db.mu.
func (db *DB) engineLocked(name string, c Collection) (*hnsw.Index, error) {
	if engine, ok := db.engines[name]; ok {
		return engine, nil
	}
	part, err := kv.Partition(db.space, name)
	if err != nil {
		return nil, err
	}
	engine := hnsw.New(part, hnsw.Config{
		Dim:      c.Dimension,
		M:        c.NbConn,
		Ef:       c.Ef,
		MaxLevel: c.MaxLayer,
		Dist:     c.Dist,
		Logger:   db.log,
	})
	db.engines[name] = engine
	return engine, nil
}
