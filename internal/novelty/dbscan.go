// Package novelty finds density structure among a batch of query embeddings.
// Queries in sparse regions are labelled noise, the signal for a candidate novel taxon.
package novelty

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bits-and-blooms/bitset"
	"github.com/hyperjump/edna/pkg/utils"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Noise is the cluster id of points that belong to no dense region.
const Noise = -1

// NoiseNote is attached to noise points in API responses.
const NoiseNote = "unassigned: candidate novel taxon"

// ErrDimensionMismatch is returned when the batch mixes vector lengths.
var ErrDimensionMismatch = errors.New("vectors in batch have different dimensions")

// Clusterer runs DBSCAN over Euclidean distance. A zero Eps is estimated from
// the batch as the median distance to each point's MinPoints-th neighbour.
type Clusterer struct {
	Eps       float64
	MinPoints int
}

// Assignment is the cluster of one query.
type Assignment struct {
	QueryIndex         int      `json:"query_index"`
	ClusterID          int      `json:"cluster"`
	MembershipStrength float64  `json:"membership_strength"`
	Silhouette         *float64 `json:"silhouette,omitempty"`
}

// Result holds the assignments of a batch in input order.
type Result struct {
	Assignments       []Assignment `json:"assignments"`
	Clusters          int          `json:"clusters"`
	Noise             int          `json:"noise"`
	Eps               float64      `json:"eps"`
	OverallSilhouette *float64     `json:"overall_silhouette"`
}

// Cluster labels every vector of the batch. It keeps no state between calls.
func (c Clusterer) Cluster(ctx context.Context, vectors [][]float32) (*Result, error) {
	n := len(vectors)
	if n == 0 {
		return &Result{Assignments: []Assignment{}}, nil
	}
	dims := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("%w: vector %d has %d values, expected %d", ErrDimensionMismatch, i, len(v), dims)
		}
	}
	minPts := c.MinPoints
	if minPts < 1 {
		minPts = 1
	}

	dist, err := pairwiseDistances(ctx, vectors)
	if err != nil {
		return nil, err
	}
	eps := c.Eps
	if eps <= 0 {
		eps = autoEps(dist, minPts)
	}

	labels := dbscan(dist, eps, minPts)
	res := &Result{Assignments: make([]Assignment, n), Eps: eps}
	for i, l := range labels {
		a := Assignment{QueryIndex: i, ClusterID: l}
		if l == Noise {
			res.Noise++
		} else {
			a.MembershipStrength = 1
			res.Clusters = max(res.Clusters, l+1)
		}
		res.Assignments[i] = a
	}

	if res.Clusters >= 2 {
		scores := silhouettes(dist, labels, res.Clusters)
		values := make([]float64, 0, n)
		for i, s := range scores {
			if labels[i] == Noise {
				continue
			}
			v := s
			res.Assignments[i].Silhouette = &v
			values = append(values, s)
		}
		overall := stat.Mean(values, nil)
		res.OverallSilhouette = &overall
	}
	return res, nil
}

func pairwiseDistances(ctx context.Context, vectors [][]float32) ([][]float64, error) {
	n := len(vectors)
	points := make([][]float64, n)
	for i, v := range vectors {
		p := make([]float64, len(v))
		for j, x := range v {
			p[j] = float64(x)
		}
		points[i] = p
	}
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := i + 1; j < n; j++ {
			d := floats.Distance(points[i], points[j], 2)
			dist[i][j], dist[j][i] = d, d
		}
	}
	return dist, nil
}

// autoEps returns the median over points of the distance to the minPts-th
// nearest point, counting the point itself.
func autoEps(dist [][]float64, minPts int) float64 {
	kth := make([]float64, len(dist))
	row := make([]float64, len(dist))
	for i := range dist {
		copy(row, dist[i])
		sort.Float64s(row)
		kth[i] = row[min(minPts, len(row))-1]
	}
	return utils.Median(kth)
}

func neighbours(dist [][]float64, i int, eps float64) []int {
	var out []int
	for j, d := range dist[i] {
		if d <= eps {
			out = append(out, j)
		}
	}
	return out
}

// dbscan returns 0-based cluster ids, Noise for unassigned points. A point's
// neighbourhood includes itself.
func dbscan(dist [][]float64, eps float64, minPts int) []int {
	n := len(dist)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}
	visited := bitset.New(uint(n))
	cluster := 0
	for i := 0; i < n; i++ {
		if visited.Test(uint(i)) {
			continue
		}
		visited.Set(uint(i))
		nb := neighbours(dist, i, eps)
		if len(nb) < minPts {
			continue
		}
		labels[i] = cluster
		queued := bitset.New(uint(n))
		seed := make([]int, 0, len(nb))
		for _, j := range nb {
			if j != i {
				seed = append(seed, j)
				queued.Set(uint(j))
			}
		}
		for len(seed) > 0 {
			q := seed[0]
			seed = seed[1:]
			if labels[q] == Noise {
				labels[q] = cluster
			}
			if visited.Test(uint(q)) {
				continue
			}
			visited.Set(uint(q))
			qnb := neighbours(dist, q, eps)
			if len(qnb) < minPts {
				continue
			}
			for _, j := range qnb {
				if !queued.Test(uint(j)) {
					queued.Set(uint(j))
					seed = append(seed, j)
				}
			}
		}
		cluster++
	}
	return labels
}

// silhouettes returns the silhouette coefficient of every non-noise point, with
// noise points left at zero. A point alone in its cluster scores zero.
func silhouettes(dist [][]float64, labels []int, clusters int) []float64 {
	size := make([]int, clusters)
	for _, l := range labels {
		if l != Noise {
			size[l]++
		}
	}
	out := make([]float64, len(labels))
	sums := make([]float64, clusters)
	for i, li := range labels {
		if li == Noise || size[li] < 2 {
			continue
		}
		for c := range sums {
			sums[c] = 0
		}
		for j, lj := range labels {
			if lj != Noise && j != i {
				sums[lj] += dist[i][j]
			}
		}
		a := sums[li] / float64(size[li]-1)
		b := -1.0
		for c := 0; c < clusters; c++ {
			if c == li || size[c] == 0 {
				continue
			}
			if m := sums[c] / float64(size[c]); b < 0 || m < b {
				b = m
			}
		}
		if denom := max(a, b); denom > 0 {
			out[i] = (b - a) / denom
		}
	}
	return out
}

// Labeled is the API shape of one assignment.
type Labeled struct {
	ID         string   `json:"id"`
	Cluster    int      `json:"cluster"`
	Confidence float64  `json:"confidence"`
	Silhouette *float64 `json:"silhouette,omitempty"`
	Note       string   `json:"note,omitempty"`
}

// Label attaches ids to the assignments. ids must be aligned with the clustered batch.
func (r *Result) Label(ids []string) []Labeled {
	out := make([]Labeled, len(r.Assignments))
	for i, a := range r.Assignments {
		l := Labeled{
			Cluster:    a.ClusterID,
			Confidence: a.MembershipStrength,
			Silhouette: a.Silhouette,
		}
		if i < len(ids) {
			l.ID = ids[i]
		}
		if a.ClusterID == Noise {
			l.Note = NoiseNote
		}
		out[i] = l
	}
	return out
}
