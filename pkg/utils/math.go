package utils

import (
	"sort"

	"gonum.org/v1/gonum/blas/blas32"
)

// NormalizeL2 normalizes the slice in place to unit L2 norm.
// If the norm is zero, the slice is unchanged.
func NormalizeL2(x []float32) {
	if len(x) == 0 {
		return
	}
	v := blas32.Vector{N: len(x), Inc: 1, Data: x}
	norm := blas32.Nrm2(v)
	if norm == 0 {
		return
	}
	blas32.Scal(1/norm, v)
}

// NormalizedCopy returns unit-norm copies of vectors, leaving the input untouched.
func NormalizedCopy(vectors [][]float32) [][]float32 {
	out := make([][]float32, len(vectors))
	for i, vec := range vectors {
		c := make([]float32, len(vec))
		copy(c, vec)
		NormalizeL2(c)
		out[i] = c
	}
	return out
}

// Median returns the median of values (0 for an empty slice). values is not modified.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}
