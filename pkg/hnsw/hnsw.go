// Package hnsw implements a persistent Hierarchical Navigable Small World
// index over a [kv.Store].
//
// Vectors ("arrows") and per-point adjacency lists live in the store and
// are mirrored by two lazy write-through caches, so the hot part of the
// graph stays in memory while every mutation is durable before the
// operation returns. Point ids and the graph entry point are maintained
// through the store's atomic read-modify-write, which makes insertion
// safe to call from any number of goroutines.
//
// Points are never unlinked from the graph: Remove drops a point's vector
// payload only, and search steps over edges whose target vector is gone.
package hnsw

import (
	"container/heap"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/haivivi/arrowdb/pkg/kv"
)

// Config configures a new [Index].
type Config struct {
	// Dim is the vector dimension. Required; must be positive.
	// All inserted vectors must have exactly this many elements.
	Dim int

	// M is the maximum number of connections per point per layer (except
	// layer 0, which allows 2*M). Higher values improve recall but
	// increase storage and insertion time. Default: 20.
	M int

	// Ef is the size of the dynamic candidate list during both index
	// building and search; a search with k > Ef widens to k. Default: 200.
	Ef int

	// MaxLevel caps the sampled insertion level. At most 16: levels are
	// stored in a 4-bit field. Default: 16.
	MaxLevel int

	// Dist selects the distance function. Default: [DistL2].
	Dist Dist

	// Seed seeds the level sampler. Zero picks a random seed; tests set
	// it for reproducible graphs.
	Seed uint64

	// Logger receives engine debug output. Default: slog.Default().
	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.M < 2 {
		c.M = 20
	}
	if c.Ef <= 0 {
		c.Ef = 200
	}
	if c.MaxLevel <= 0 || c.MaxLevel > 16 {
		c.MaxLevel = 16
	}
	if !c.Dist.valid() {
		c.Dist = DistL2
	}
	if c.Seed == 0 {
		c.Seed = rand.Uint64()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Match is a single result from a similarity search.
type Match struct {
	// ID is the point id of the matched vector.
	ID uint64

	// Dist is the distance between the query and the matched vector.
	Dist float32
}

// lockedLevelVec is a cached adjacency list. Readers (search, neighbor
// selection) take the read lock; insertion and back-reference updates
// hold the write lock only for the moment of mutation.
type lockedLevelVec struct {
	mu  sync.RWMutex
	vec levelVec
}

// Index is a persistent HNSW graph bound to one collection partition.
//
// All methods are safe for concurrent use.
type Index struct {
	cfg     Config
	store   kv.Store
	layers  *layerGenerator
	queries *queryID

	arrows    sync.Map // point id → []float32
	neighbors sync.Map // point id → *lockedLevelVec

	log *slog.Logger
}

// New creates an index over the given store partition.
// Panics if cfg.Dim is not positive.
func New(store kv.Store, cfg Config) *Index {
	if cfg.Dim <= 0 {
		panic("hnsw: Config.Dim must be positive")
	}
	cfg.setDefaults()
	return &Index{
		cfg:     cfg,
		store:   store,
		layers:  newLayerGenerator(cfg.M, cfg.MaxLevel, cfg.Seed),
		queries: newQueryID(),
		log:     cfg.Logger,
	}
}

// Storage keys: 'A'‖id for the vector payload, 'N'‖id for the adjacency
// record, id in 8 little-endian bytes.

func arrowKey(id uint64) []byte {
	buf := make([]byte, 9)
	buf[0] = 'A'
	binary.LittleEndian.PutUint64(buf[1:], id)
	return buf
}

func neighborKey(id uint64) []byte {
	buf := make([]byte, 9)
	buf[0] = 'N'
	binary.LittleEndian.PutUint64(buf[1:], id)
	return buf
}

// ---------------------------------------------------------------------------
// Cache layer
// ---------------------------------------------------------------------------

func (x *Index) getArrow(ctx context.Context, id uint64) ([]float32, error) {
	if v, ok := x.arrows.Load(id); ok {
		return v.([]float32), nil
	}
	raw, err := x.store.Get(ctx, arrowKey(id))
	if err != nil {
		return nil, fmt.Errorf("hnsw: vector %d: %w", id, err)
	}
	vec, err := decodeVector(raw)
	if err != nil {
		return nil, err
	}
	actual, _ := x.arrows.LoadOrStore(id, vec)
	return actual.([]float32), nil
}

func (x *Index) getNeighbor(ctx context.Context, id uint64) (*lockedLevelVec, error) {
	if v, ok := x.neighbors.Load(id); ok {
		return v.(*lockedLevelVec), nil
	}
	raw, err := x.store.Get(ctx, neighborKey(id))
	if err != nil {
		return nil, fmt.Errorf("hnsw: adjacency %d: %w", id, err)
	}
	vec, err := decodeLevelVec(raw)
	if err != nil {
		return nil, err
	}
	actual, _ := x.neighbors.LoadOrStore(id, &lockedLevelVec{vec: *vec})
	return actual.(*lockedLevelVec), nil
}

// neighborsAt returns a copy of id's adjacency entries at the given layer.
func (x *Index) neighborsAt(ctx context.Context, id uint64, level int) ([]orderID, error) {
	lv, err := x.getNeighbor(ctx, id)
	if err != nil {
		return nil, err
	}
	lv.mu.RLock()
	out := lv.vec.get(level)
	lv.mu.RUnlock()
	return out, nil
}

func (x *Index) saveArrow(ctx context.Context, id uint64) error {
	v, ok := x.arrows.Load(id)
	if !ok {
		return fmt.Errorf("hnsw: vector %d not cached on save", id)
	}
	return x.store.Set(ctx, arrowKey(id), encodeVector(v.([]float32)))
}

func (x *Index) saveNeighbor(ctx context.Context, id uint64) error {
	v, ok := x.neighbors.Load(id)
	if !ok {
		return fmt.Errorf("hnsw: adjacency %d not cached on save", id)
	}
	lv := v.(*lockedLevelVec)
	lv.mu.RLock()
	buf := lv.vec.encode()
	lv.mu.RUnlock()
	return x.store.Set(ctx, neighborKey(id), buf)
}

// distance evaluates the configured distance between two points' vectors.
// A NaN result is a fatal fault.
func (x *Index) distance(ctx context.Context, a, b uint64) (float32, error) {
	va, err := x.getArrow(ctx, a)
	if err != nil {
		return 0, err
	}
	vb, err := x.getArrow(ctx, b)
	if err != nil {
		return 0, err
	}
	d := x.cfg.Dist.Eval(va, vb)
	if math.IsNaN(float64(d)) {
		panic(fmt.Sprintf("hnsw: NaN distance between points %d and %d", a, b))
	}
	return d, nil
}

// ---------------------------------------------------------------------------
// Layer search and neighbor selection
// ---------------------------------------------------------------------------

// searchLayer is the greedy beam expansion of HNSW on a single layer.
// q is the id whose cached vector anchors all distances; ep is the entry
// point. The returned max-heap holds up to ef points closest to q.
//
// A dangling edge — one whose target vector record has been removed — is
// skipped rather than failed. A missing adjacency record, by contrast, is
// an inconsistency and surfaces as an error.
func (x *Index) searchLayer(ctx context.Context, q uint64, ep point, ef, level int) (maxDistHeap, error) {
	d, err := x.distance(ctx, q, ep.id())
	if err != nil {
		return nil, err
	}

	visited := map[uint64]struct{}{ep.id(): {}}
	candidates := minDistHeap{{point: ep, dist: d}}
	results := maxDistHeap{{point: ep, dist: d}}

	for candidates.Len() > 0 {
		c := heap.Pop(&candidates).(orderID)
		if results.Len() >= ef && c.dist > results[0].dist {
			return results, nil
		}
		nbrs, err := x.neighborsAt(ctx, c.point.id(), level)
		if err != nil {
			return nil, err
		}
		for _, n := range nbrs {
			nid := n.point.id()
			if _, seen := visited[nid]; seen {
				continue
			}
			visited[nid] = struct{}{}
			if results.Len() == 0 {
				return results, nil
			}
			d, err := x.distance(ctx, q, nid)
			if err != nil {
				if errors.Is(err, kv.ErrNotFound) {
					continue
				}
				return nil, err
			}
			if d < results[0].dist || results.Len() < ef {
				heap.Push(&candidates, orderID{point: n.point, dist: d})
				heap.Push(&results, orderID{point: n.point, dist: d})
				if results.Len() > ef {
					heap.Pop(&results)
				}
			}
		}
	}
	return results, nil
}

// selectNeighbor applies the HNSW select-neighbors heuristic: pop
// candidates closest-first, keeping each only if no already-kept neighbor
// is closer to it than it is to q. With extend set and few candidates,
// the pool is first widened with the candidates' own neighbors at q's
// level.
func (x *Index) selectNeighbor(ctx context.Context, q point, candidates *minDistHeap, asked int, extend bool) ([]orderID, error) {
	var kept []orderID

	if candidates.Len() <= asked {
		if !extend {
			for candidates.Len() > 0 {
				kept = append(kept, heap.Pop(candidates).(orderID))
			}
			return kept, nil
		}

		present := make(map[uint64]struct{}, candidates.Len())
		for _, c := range *candidates {
			present[c.point.id()] = struct{}{}
		}
		fresh := make(map[uint64]point)
		for _, c := range *candidates {
			nbrs, err := x.neighborsAt(ctx, c.point.id(), q.level())
			if err != nil {
				return nil, err
			}
			for _, n := range nbrs {
				nid := n.point.id()
				if _, ok := present[nid]; ok {
					continue
				}
				fresh[nid] = n.point
			}
		}
		for _, p := range fresh {
			d, err := x.distance(ctx, q.id(), p.id())
			if err != nil {
				if errors.Is(err, kv.ErrNotFound) {
					continue
				}
				return nil, err
			}
			heap.Push(candidates, orderID{point: p, dist: d})
		}
	}

	for candidates.Len() > 0 && len(kept) < asked {
		e := heap.Pop(candidates).(orderID)
		dominated := false
		for _, n := range kept {
			d, err := x.distance(ctx, e.point.id(), n.point.id())
			if err != nil {
				if errors.Is(err, kv.ErrNotFound) {
					continue
				}
				return nil, err
			}
			if d <= e.dist {
				dominated = true
				break
			}
		}
		if !dominated {
			kept = append(kept, e)
		}
	}
	return kept, nil
}

// reverseUpdateNeighbor back-links p from every neighbor at or below p's
// level, on the layer of the edge, evicting each target's farthest
// same-layer entry past the connection cap. Returns the ids whose
// adjacency actually changed so the caller can persist exactly those.
func (x *Index) reverseUpdateNeighbor(ctx context.Context, p point) ([]uint64, error) {
	lv, err := x.getNeighbor(ctx, p.id())
	if err != nil {
		return nil, err
	}
	lv.mu.RLock()
	entries := append([]orderID(nil), lv.vec.value...)
	lv.mu.RUnlock()

	var updated []uint64
	for _, n := range entries {
		layer := n.point.level()
		if layer > p.level() || n.point.id() == p.id() {
			continue
		}
		threshold := x.cfg.M
		if layer == 0 {
			threshold = 2 * x.cfg.M
		}
		nl, err := x.getNeighbor(ctx, n.point.id())
		if err != nil {
			return nil, err
		}
		nl.mu.Lock()
		mutated := nl.vec.push(orderID{point: makePoint(p.id(), layer), dist: n.dist}, threshold)
		nl.mu.Unlock()
		if mutated {
			updated = append(updated, n.point.id())
		}
	}
	return updated, nil
}

// ---------------------------------------------------------------------------
// Insert
// ---------------------------------------------------------------------------

// Insert adds a vector and returns its assigned point id.
//
// The write order is fixed: id allocation, vector persist, per-level
// connect, adjacency persist, back-reference persists, entry-point
// publish. A concurrent search that observes the new id via the entry
// record therefore finds its vector and adjacency already in the store.
// On error the store may hold a partially inserted point; the caller
// should treat a failed insert as "may or may not have taken effect".
func (x *Index) Insert(ctx context.Context, arrow []float32) (uint64, error) {
	if len(arrow) != x.cfg.Dim {
		return 0, fmt.Errorf("hnsw: dimension mismatch: got %d, want %d", len(arrow), x.cfg.Dim)
	}

	id, err := nextID(ctx, x.store)
	if err != nil {
		return 0, err
	}
	if id >= queryStart {
		return 0, ErrIDSpaceExhausted
	}

	vec := make([]float32, len(arrow))
	copy(vec, arrow)
	x.arrows.Store(id, vec)
	if err := x.saveArrow(ctx, id); err != nil {
		return 0, err
	}
	x.neighbors.Store(id, &lockedLevelVec{})

	// The very first point has nothing to connect to; it becomes the
	// level-0 entry.
	if id == 0 {
		if err := x.saveNeighbor(ctx, id); err != nil {
			return 0, err
		}
		if err := setEntryPoint(ctx, x.store, 0, 0); err != nil {
			return 0, err
		}
		return 0, nil
	}

	level := x.layers.generate()
	p := makePoint(id, level)

	maxObserved, entryID, err := entryPoint(ctx, x.store)
	if err != nil {
		return 0, err
	}
	ep := makePoint(entryID, level)
	distToEntry, err := x.distance(ctx, id, ep.id())
	if err != nil {
		return 0, err
	}

	self, err := x.getNeighbor(ctx, id)
	if err != nil {
		return 0, err
	}

	// Descent: ef=1 walks from the top observed layer down to just above
	// the new point's level. The best candidate found on each layer is
	// also recorded as an edge above the point's own level, which lets
	// higher-level points discover it later.
	for l := maxObserved; l > level; l-- {
		res, err := x.searchLayer(ctx, id, ep, 1, l)
		if err != nil {
			return 0, err
		}
		if res.Len() == 0 {
			continue
		}
		best := res[0]
		d, err := x.distance(ctx, id, best.point.id())
		if err != nil {
			return 0, err
		}
		if d < distToEntry {
			ep = best.point
			distToEntry = d
		}
		self.mu.Lock()
		self.vec.push(orderID{point: makePoint(best.point.id(), l), dist: best.dist}, 0)
		self.mu.Unlock()
	}

	// Connect: beam-search each shared layer, run the selection
	// heuristic, and adopt the closest selected neighbor as the entry for
	// the next layer down.
	for l := min(level, maxObserved); l >= 0; l-- {
		res, err := x.searchLayer(ctx, id, ep, x.cfg.Ef, l)
		if err != nil {
			return 0, err
		}
		if res.Len() == 0 {
			continue
		}
		cands := minDistHeap(res)
		heap.Init(&cands)
		asked, extend := x.cfg.M, false
		if l == 0 {
			asked, extend = 2*x.cfg.M, true
		}
		nbrs, err := x.selectNeighbor(ctx, p, &cands, asked, extend)
		if err != nil {
			return 0, err
		}
		sort.Slice(nbrs, func(i, j int) bool { return nbrs[i].less(nbrs[j]) })
		// Adjacency entries are packed at the layer the edge lives on, so
		// a seed carried over from the layer above lands on this layer's
		// list rather than keeping its old packed level.
		for i := range nbrs {
			nbrs[i].point = makePoint(nbrs[i].point.id(), l)
		}
		if len(nbrs) > 0 {
			ep = nbrs[0].point
		}
		self.mu.Lock()
		self.vec.append(nbrs)
		self.mu.Unlock()
	}

	if err := x.saveNeighbor(ctx, id); err != nil {
		return 0, err
	}
	updated, err := x.reverseUpdateNeighbor(ctx, p)
	if err != nil {
		return 0, err
	}
	for _, u := range updated {
		if err := x.saveNeighbor(ctx, u); err != nil {
			return 0, err
		}
	}
	if err := setEntryPoint(ctx, x.store, level, id); err != nil {
		return 0, err
	}
	return id, nil
}

// InsertBatch inserts vectors concurrently. It is semantically equivalent
// to calling Insert for each vector; the assigned ids are returned in
// input order but are not necessarily consecutive relative to other
// writers.
func (x *Index) InsertBatch(ctx context.Context, arrows [][]float32) ([]uint64, error) {
	if len(arrows) == 0 {
		return nil, nil
	}
	ids := make([]uint64, len(arrows))

	// On an empty store the default entry record resolves to point 0
	// before that point is durable, so the first vector goes in alone and
	// only then does the batch fan out.
	rest := arrows
	n, err := idCount(ctx, x.store)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		id, err := x.Insert(ctx, arrows[0])
		if err != nil {
			return nil, err
		}
		ids[0] = id
		rest = arrows[1:]
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	offset := len(arrows) - len(rest)
	for i, a := range rest {
		i := i + offset
		g.Go(func() error {
			id, err := x.Insert(ctx, a)
			if err != nil {
				return err
			}
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

// Search returns up to k points nearest the query, ordered by ascending
// distance.
func (x *Index) Search(ctx context.Context, query []float32, k int) ([]Match, error) {
	if len(query) != x.cfg.Dim {
		return nil, fmt.Errorf("hnsw: dimension mismatch: got %d, want %d", len(query), x.cfg.Dim)
	}
	n, err := idCount(ctx, x.store)
	if err != nil {
		return nil, err
	}
	if n == 0 || k <= 0 {
		return nil, nil
	}

	level, pivotID, err := entryPoint(ctx, x.store)
	if err != nil {
		return nil, err
	}
	pivot := makePoint(pivotID, level)

	// The query borrows an ephemeral id so its vector can ride the arrow
	// cache like any real point for the duration of the search.
	qid := x.queries.next()
	qv := make([]float32, len(query))
	copy(qv, query)
	x.arrows.Store(qid, qv)
	defer x.arrows.Delete(qid)

	// An entry record can be observed before the point behind it is
	// durable (the record defaults to point 0 on a store that has just
	// allocated its first id). An unresolvable pivot means the index is
	// not navigable yet, not that it is corrupt.
	pivotDist, err := x.distance(ctx, qid, pivot.id())
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	// Greedy descent without back-tracking: one pass over the pivot's
	// neighbors per layer.
	for l := level; l >= 1; l-- {
		nbrs, err := x.neighborsAt(ctx, pivot.id(), l)
		if err != nil {
			if errors.Is(err, kv.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		for _, nb := range nbrs {
			d, err := x.distance(ctx, qid, nb.point.id())
			if err != nil {
				if errors.Is(err, kv.ErrNotFound) {
					continue
				}
				return nil, err
			}
			if d < pivotDist {
				pivot = nb.point
				pivotDist = d
			}
		}
	}

	ef := max(x.cfg.Ef, k)
	res, err := x.searchLayer(ctx, qid, pivot, ef, 0)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]Match, res.Len())
	for i := len(out) - 1; i >= 0; i-- {
		e := heap.Pop(&res).(orderID)
		out[i] = Match{ID: e.point.id(), Dist: e.dist}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Point maintenance
// ---------------------------------------------------------------------------

// SetArrow replaces the vector payload of an existing point. Graph edges
// and their recorded distances are left untouched, so distances stored in
// neighbors' adjacency go stale; the graph is not re-optimized.
func (x *Index) SetArrow(ctx context.Context, id uint64, arrow []float32) error {
	if len(arrow) != x.cfg.Dim {
		return fmt.Errorf("hnsw: dimension mismatch: got %d, want %d", len(arrow), x.cfg.Dim)
	}
	if _, err := x.store.Get(ctx, arrowKey(id)); err != nil {
		return fmt.Errorf("hnsw: set vector %d: %w", id, err)
	}
	vec := make([]float32, len(arrow))
	copy(vec, arrow)
	x.arrows.Store(id, vec)
	return x.saveArrow(ctx, id)
}

// Remove drops a point's vector record and cache entry. The adjacency
// record stays: the point remains a navigable node of the graph, and
// searches skip over it once its vector is gone. Removing the current
// entry point would orphan the whole graph, so that case is a silent
// no-op.
func (x *Index) Remove(ctx context.Context, id uint64) error {
	_, entryID, err := entryPoint(ctx, x.store)
	if err != nil {
		return err
	}
	if id == entryID {
		x.log.Debug("hnsw: refusing to remove entry point", "id", id)
		return nil
	}
	if err := x.store.Delete(ctx, arrowKey(id)); err != nil {
		return err
	}
	x.arrows.Delete(id)
	return nil
}

// Size returns the number of ids allocated so far: an upper bound on
// live points, since removed points stay counted.
func (x *Index) Size(ctx context.Context) (uint64, error) {
	return idCount(ctx, x.store)
}
