package tensor

import "gonum.org/v1/gonum/blas/blas32"

// dotF32 returns the dot product of a and b.
// len(a) must equal len(b); the caller is responsible for this.
func dotF32(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}

	return blas32.Dot(
		blas32.Vector{N: len(a), Data: a, Inc: 1},
		blas32.Vector{N: len(b), Data: b, Inc: 1},
	)
}

// Dot returns the dot product of two equal-length vectors.
func Dot(a, b []float32) float32 {
	n := min(len(a), len(b))

	return dotF32(a[:n], b[:n])
}
