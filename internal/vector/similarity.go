package vector

import (
	"sort"

	"gonum.org/v1/gonum/blas/blas32"
)

func vec32(x []float32) blas32.Vector {
	return blas32.Vector{N: len(x), Inc: 1, Data: x}
}

// InnerProduct returns the inner product of two equal-length vectors.
func InnerProduct(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return blas32.Dot(vec32(a), vec32(b))
}

// L2Squared returns the squared Euclidean distance between two equal-length vectors.
func L2Squared(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Distance returns the raw metric value between a and b.
func Distance(metric Metric, a, b []float32) float32 {
	if metric == MetricIP {
		return InnerProduct(a, b)
	}
	return L2Squared(a, b)
}

// sortHits orders hits best first and truncates to k.
func sortHits(metric Metric, hits []Hit, k int) QueryResult {
	sort.Slice(hits, func(i, j int) bool { return closer(metric, hits[i], hits[j]) })
	if k < len(hits) {
		hits = hits[:k]
	}
	out := make(QueryResult, len(hits))
	copy(out, hits)
	return out
}

// better reports whether raw value a is strictly closer than b.
func better(metric Metric, a, b float32) bool {
	if metric.HigherIsCloser() {
		return a > b
	}
	return a < b
}

// nearestCentroid returns the index of the centroid closest to x under metric.
func nearestCentroid(metric Metric, x []float32, centroids [][]float32) int {
	best := 0
	bestDist := Distance(metric, x, centroids[0])
	for c := 1; c < len(centroids); c++ {
		d := Distance(metric, x, centroids[c])
		if better(metric, d, bestDist) {
			best, bestDist = c, d
		}
	}
	return best
}
