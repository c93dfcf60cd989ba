// Package embed provides embedding encoder implementations for the retrieval
// pipeline. Every encoder returns L2-normalized vectors so downstream L2
// distances and dot products are comparable across backends.
package embed

import "math"

// Normalize scales v to unit length in place and returns it. A zero vector is
// returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}
