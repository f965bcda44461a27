package hnsw

import (
	"math"
	"testing"
)

func TestDistL2Squared(t *testing.T) {
	// The square root is deliberately not taken.
	if d := DistL2.Eval([]float32{0, 0}, []float32{3, 4}); d != 25 {
		t.Errorf("L2 = %v, want 25", d)
	}
	if d := DistL2.Eval([]float32{0, 0}, []float32{1, 1}); d != 2 {
		t.Errorf("L2 = %v, want 2", d)
	}
	if d := DistL2.Eval([]float32{1, 2}, []float32{1, 2}); d != 0 {
		t.Errorf("L2 identical = %v, want 0", d)
	}
}

func TestDistL1(t *testing.T) {
	if d := DistL1.Eval([]float32{0, 0}, []float32{3, -4}); d != 7 {
		t.Errorf("L1 = %v, want 7", d)
	}
}

func TestDistCosine(t *testing.T) {
	cases := []struct {
		a, b []float32
		want float32
	}{
		{[]float32{1, 0}, []float32{1, 0}, 0},
		{[]float32{1, 0}, []float32{0, 1}, 1},
		{[]float32{1, 0}, []float32{-1, 0}, 2},
		{[]float32{2, 0}, []float32{5, 0}, 0}, // scale invariant
	}
	for _, c := range cases {
		if d := DistCosine.Eval(c.a, c.b); math.Abs(float64(d-c.want)) > 1e-6 {
			t.Errorf("cosine(%v, %v) = %v, want %v", c.a, c.b, d, c.want)
		}
	}
}

func TestDistCosineZeroNormIsNaN(t *testing.T) {
	d := DistCosine.Eval([]float32{0, 0}, []float32{1, 0})
	if !math.IsNaN(float64(d)) {
		t.Errorf("cosine with zero norm = %v, want NaN", d)
	}
}

func TestDistNaNPropagates(t *testing.T) {
	d := DistL2.Eval([]float32{float32(math.NaN())}, []float32{0})
	if !math.IsNaN(float64(d)) {
		t.Errorf("L2 with NaN input = %v, want NaN", d)
	}
}

func TestDistText(t *testing.T) {
	var d Dist
	if err := d.UnmarshalText([]byte("cosine")); err != nil {
		t.Fatal(err)
	}
	if d != DistCosine {
		t.Errorf("d = %q, want cosine", d)
	}
	if err := d.UnmarshalText([]byte("manhattan")); err == nil {
		t.Error("expected error for unknown distance name")
	}
	out, err := DistL1.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "l1" {
		t.Errorf("MarshalText = %q, want l1", out)
	}
}
