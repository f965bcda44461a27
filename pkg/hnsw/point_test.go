package hnsw

import (
	"bytes"
	"math"
	"testing"
)

func TestPointPacking(t *testing.T) {
	cases := []struct {
		id    uint64
		level int
	}{
		{0, 0},
		{1, 0},
		{42, 7},
		{idMask, 15},
		{1<<48 - 1, 3},
	}
	for _, c := range cases {
		p := makePoint(c.id, c.level)
		if p.id() != c.id {
			t.Errorf("makePoint(%d, %d).id() = %d", c.id, c.level, p.id())
		}
		if p.level() != c.level {
			t.Errorf("makePoint(%d, %d).level() = %d", c.id, c.level, p.level())
		}
	}
}

func TestPointIDMasked(t *testing.T) {
	// Bits above the id field must not leak into the id.
	p := makePoint(idMask+5, 2)
	if p.id() != 4 {
		t.Errorf("id = %d, want 4", p.id())
	}
	if p.level() != 2 {
		t.Errorf("level = %d, want 2", p.level())
	}
}

func TestLevelVecPushDedup(t *testing.T) {
	var l levelVec
	e := orderID{point: makePoint(7, 1), dist: 0.5}
	if !l.push(e, 0) {
		t.Fatal("first push = false, want true")
	}
	if l.push(e, 0) {
		t.Fatal("duplicate push = true, want false")
	}
	// Same id at a different packed level is a distinct entry.
	if !l.push(orderID{point: makePoint(7, 2), dist: 0.5}, 0) {
		t.Fatal("push at other level = false, want true")
	}
	if len(l.value) != 2 {
		t.Fatalf("len = %d, want 2", len(l.value))
	}
}

func TestLevelVecPushThreshold(t *testing.T) {
	var l levelVec
	l.push(orderID{point: makePoint(1, 1), dist: 1.0}, 0)
	l.push(orderID{point: makePoint(2, 1), dist: 3.0}, 0)
	l.push(orderID{point: makePoint(3, 2), dist: 9.0}, 0) // other level, untouched

	// Pushing a third level-1 entry over threshold 2 evicts the farthest
	// level-1 entry.
	l.push(orderID{point: makePoint(4, 1), dist: 2.0}, 2)

	at1 := l.get(1)
	if len(at1) != 2 {
		t.Fatalf("level 1 count = %d, want 2", len(at1))
	}
	for _, e := range at1 {
		if e.point.id() == 2 {
			t.Error("farthest level-1 entry survived eviction")
		}
	}
	if len(l.get(2)) != 1 {
		t.Error("eviction touched another level")
	}
}

func TestLevelVecEvictsNewEntry(t *testing.T) {
	// When the incoming entry is itself the farthest, it is the one evicted.
	var l levelVec
	l.push(orderID{point: makePoint(1, 0), dist: 1.0}, 0)
	l.push(orderID{point: makePoint(2, 0), dist: 2.0}, 0)
	mutated := l.push(orderID{point: makePoint(3, 0), dist: 9.0}, 2)
	if !mutated {
		t.Fatal("push = false, want true (list was touched)")
	}
	for _, e := range l.get(0) {
		if e.point.id() == 3 {
			t.Error("over-threshold farthest entry was kept")
		}
	}
}

func TestLevelVecGetCopies(t *testing.T) {
	var l levelVec
	l.push(orderID{point: makePoint(1, 0), dist: 1.0}, 0)
	got := l.get(0)
	got[0].dist = 99
	if l.value[0].dist != 1.0 {
		t.Error("get returned a view into the backing slice")
	}
}

func TestLevelVecCodecRoundTrip(t *testing.T) {
	var l levelVec
	l.push(orderID{point: makePoint(3, 0), dist: 0.25}, 0)
	l.push(orderID{point: makePoint(9, 2), dist: 1.5}, 0)
	l.push(orderID{point: makePoint(idMask, 15), dist: 123.875}, 0)

	buf := l.encode()
	if len(buf) != 3*adjacencyRecordSize {
		t.Fatalf("encoded length = %d, want %d", len(buf), 3*adjacencyRecordSize)
	}

	back, err := decodeLevelVec(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back.encode(), buf) {
		t.Error("decode(encode(l)) is not the identity")
	}
}

func TestDecodeLevelVecBadLength(t *testing.T) {
	if _, err := decodeLevelVec(make([]byte, 13)); err == nil {
		t.Error("expected error for truncated adjacency payload")
	}
}

func TestVectorCodecRoundTrip(t *testing.T) {
	v := []float32{0, 1.5, -2.25, float32(math.Pi)}
	buf := encodeVector(v)
	if len(buf) != 16 {
		t.Fatalf("encoded length = %d, want 16", len(buf))
	}
	back, err := decodeVector(buf)
	if err != nil {
		t.Fatal(err)
	}
	for i := range v {
		if back[i] != v[i] {
			t.Errorf("component %d = %v, want %v", i, back[i], v[i])
		}
	}

	if _, err := decodeVector(buf[:3]); err == nil {
		t.Error("expected error for truncated vector payload")
	}
}

func TestOrderIDNaNPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for NaN distance in ordering")
		}
	}()
	a := orderID{point: makePoint(1, 0), dist: float32(math.NaN())}
	b := orderID{point: makePoint(2, 0), dist: 1}
	a.less(b)
}
