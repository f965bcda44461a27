package hnsw

import (
	"math"
	"math/rand/v2"
	"sync"
)

// layerGenerator samples insertion levels from the classical HNSW
// distribution: ⌊−ln(U)·(1/ln(M))⌋. Samples at or above maxLevel are
// redrawn uniformly from [0, maxLevel). Sampling is cheap and rare next
// to graph work, so a single mutex serializes callers.
type layerGenerator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	scale    float64
	maxLevel int
}

func newLayerGenerator(m, maxLevel int, seed uint64) *layerGenerator {
	return &layerGenerator{
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		scale:    1 / math.Log(float64(m)),
		maxLevel: maxLevel,
	}
}

func (g *layerGenerator) generate() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	// 1−U is in (0, 1], avoiding log(0).
	u := 1 - g.rng.Float64()
	level := int(math.Floor(-math.Log(u) * g.scale))
	if level >= g.maxLevel {
		level = g.rng.IntN(g.maxLevel)
	}
	return level
}
