package vector

import (
	"context"
	"math/rand"
	"testing"
)

func benchmarkSearch(b *testing.B, idx VectorIndex, queries [][]float32, nprobe int) {
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := idx.Search(ctx, queries, 10, nprobe); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkIVFPQSearch(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	data, _ := clusteredVectors(rng, 5000, 64, 32)
	queries := randomVectors(rng, 32, 64)
	for _, refine := range []bool{false, true} {
		idx := trainedIVFPQ(b, data, MetricL2, TrainConfig{Nlist: 32, Segments: 8, BitsPerSegment: 8, CodesOnly: !refine})
		name := "codes"
		if refine {
			name = "refine"
		}
		b.Run(name, func(b *testing.B) { benchmarkSearch(b, idx, queries, 8) })
	}
}

func BenchmarkFlatSearch(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	data := randomVectors(rng, 5000, 64)
	idx, err := NewFlatIndex(64, MetricL2)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	if err := idx.Train(ctx, nil, TrainConfig{}); err != nil {
		b.Fatal(err)
	}
	if _, err := idx.Add(ctx, data, 0); err != nil {
		b.Fatal(err)
	}
	benchmarkSearch(b, idx, randomVectors(rng, 32, 64), 0)
}
