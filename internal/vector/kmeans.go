package vector

import (
	"context"
	"math"
)

const kmeansIterations = 25

// kmeans clusters points into k centroids under squared Euclidean distance.
// Initial centroids are taken at a fixed stride through points so training is deterministic.
// A centroid that loses all its points keeps its previous position.
func kmeans(ctx context.Context, points [][]float32, k, maxIter int) ([][]float32, error) {
	if len(points) == 0 || k <= 0 {
		return nil, ErrNotEnoughData
	}
	dim := len(points[0])

	centroids := make([][]float32, k)
	step := len(points) / k
	if step == 0 {
		step = 1
	}
	for i := 0; i < k; i++ {
		idx := i * step
		if idx >= len(points) {
			idx = len(points) - 1
		}
		centroids[i] = append([]float32(nil), points[idx]...)
	}

	assignments := make([]int, len(points))
	for i := range assignments {
		assignments[i] = -1
	}
	sums := make([]float64, k*dim)
	counts := make([]int, k)

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changed := false
		for i, p := range points {
			best, bestDist := 0, float32(math.Inf(1))
			for c, cent := range centroids {
				if d := L2Squared(p, cent); d < bestDist {
					best, bestDist = c, d
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		for i := range sums {
			sums[i] = 0
		}
		for i := range counts {
			counts[i] = 0
		}
		for i, p := range points {
			c := assignments[i]
			counts[c]++
			row := sums[c*dim : (c+1)*dim]
			for d, v := range p {
				row[d] += float64(v)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			row := sums[c*dim : (c+1)*dim]
			for d := range centroids[c] {
				centroids[c][d] = float32(row[d] / float64(counts[c]))
			}
		}
	}
	return centroids, nil
}

// padSamples cycles through points until there are at least n of them.
func padSamples(points [][]float32, n int) [][]float32 {
	if len(points) >= n || len(points) == 0 {
		return points
	}
	out := make([][]float32, 0, n)
	for i := 0; len(out) < n; i++ {
		out = append(out, points[i%len(points)])
	}
	return out
}
