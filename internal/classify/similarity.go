package classify

import (
	"math"

	"github.com/hyperjump/edna/internal/vector"
)

const minMaxEpsilon = 1e-6

// Similarity maps the raw distances of qr into [0,1] in the same order.
// L2 hits map independently through 1/(1+d). IP hits are min-max scaled
// against the other hits of the same query, so IP similarities are only
// comparable within one result.
func Similarity(metric vector.Metric, qr vector.QueryResult) []float64 {
	out := make([]float64, len(qr))
	if len(qr) == 0 {
		return out
	}
	if metric == vector.MetricIP {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, h := range qr {
			d := float64(h.Distance)
			lo = math.Min(lo, d)
			hi = math.Max(hi, d)
		}
		span := math.Max(hi-lo, minMaxEpsilon)
		for i, h := range qr {
			out[i] = clamp01((float64(h.Distance) - lo) / span)
		}
		return out
	}
	for i, h := range qr {
		d := math.Max(float64(h.Distance), 0)
		out[i] = clamp01(1 / (1 + d))
	}
	return out
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
