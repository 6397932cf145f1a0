// Package vecmath holds the dense vector helpers shared by the retrieval
// index and the history ledger.
package vecmath

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// Cosine returns the cosine similarity of a and b.
// Vectors of different length, empty vectors and zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na := Norm(a)
	nb := Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return float64(vek32.Dot(a, b)) / (na * nb)
}

// Norm returns the Euclidean length of v.
func Norm(v []float32) float64 {
	if len(v) == 0 {
		return 0
	}
	return math.Sqrt(float64(vek32.Dot(v, v)))
}

// Normalize scales v to unit length in place. Zero vectors are left unchanged.
func Normalize(v []float32) {
	n := Norm(v)
	if n == 0 {
		return
	}
	vek32.MulNumber_Inplace(v, float32(1/n))
}
