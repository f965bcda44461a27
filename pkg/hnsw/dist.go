package hnsw

import (
	"fmt"
	"math"
)

// Dist selects the distance function of a collection. The string form is
// what gets serialized into collection metadata, so the values are part
// of the on-disk format.
type Dist string

const (
	// DistL1 is the sum of absolute coordinate differences.
	DistL1 Dist = "l1"

	// DistL2 is the squared Euclidean distance. The square root is
	// deliberately not taken; ordering is unchanged and callers comparing
	// against literal thresholds should expect squared values.
	DistL2 Dist = "l2"

	// DistCosine is one minus the cosine similarity. Zero-norm inputs
	// produce NaN, which the engine treats as fatal.
	DistCosine Dist = "cosine"
)

func (d Dist) valid() bool {
	switch d {
	case DistL1, DistL2, DistCosine:
		return true
	}
	return false
}

// Eval computes the distance between two equal-length vectors.
func (d Dist) Eval(a, b []float32) float32 {
	switch d {
	case DistL1:
		return distL1(a, b)
	case DistCosine:
		return distCosine(a, b)
	default:
		return distL2(a, b)
	}
}

func (d Dist) String() string {
	return string(d)
}

// UnmarshalText accepts the string form used in metadata and config files.
func (d *Dist) UnmarshalText(text []byte) error {
	v := Dist(text)
	if !v.valid() {
		return fmt.Errorf("hnsw: unknown distance %q", text)
	}
	*d = v
	return nil
}

func (d Dist) MarshalText() ([]byte, error) {
	return []byte(d), nil
}

func distL1(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += math.Abs(float64(a[i]) - float64(b[i]))
	}
	return float32(sum)
}

func distL2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(sum)
}

func distCosine(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp floating point drift; NaN from a zero norm passes through.
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}
	return float32(1 - similarity)
}
