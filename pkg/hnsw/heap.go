package hnsw

// Two small distance-ordered heaps drive the greedy layer search: a
// min-heap pops the closest unexpanded candidate, a max-heap keeps the
// running result set trimmed to ef by evicting the farthest entry.

// minDistHeap is a min-heap ordered by distance (closest first).
type minDistHeap []orderID

func (h minDistHeap) Len() int           { return len(h) }
func (h minDistHeap) Less(i, j int) bool { return h[i].less(h[j]) }
func (h minDistHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minDistHeap) Push(x any) { *h = append(*h, x.(orderID)) }

func (h *minDistHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// maxDistHeap is a max-heap ordered by distance (farthest first).
type maxDistHeap []orderID

func (h maxDistHeap) Len() int           { return len(h) }
func (h maxDistHeap) Less(i, j int) bool { return h[j].less(h[i]) }
func (h maxDistHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *maxDistHeap) Push(x any) { *h = append(*h, x.(orderID)) }

func (h *maxDistHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
