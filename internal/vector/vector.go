// Package vector provides the embedding-vector math shared by enrollment and
// search: unit-length normalization, dot-product similarity, and the
// mean-then-normalize aggregation that turns per-frame embeddings into one
// canonical identity vector.
package vector

import "math"

// Norm returns the Euclidean length of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v. A zero or empty vector is
// returned as an all-zero copy since it has no direction.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	n := Norm(v)
	if n == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// Dot computes the dot product of two vectors. For unit vectors this is the
// cosine similarity. Mismatched or empty inputs score the minimum.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	// Clamp to [-1, 1] to absorb floating point error on unit inputs.
	if sum > 1 {
		sum = 1
	}
	if sum < -1 {
		sum = -1
	}
	return sum
}
