package novelty

import (
	"context"
	"errors"
	"math"
	"testing"
)

func blobs() [][]float32 {
	return [][]float32{
		{0, 0}, {0, 0.1}, {0.1, 0}, {0.1, 0.1},
		{5, 5}, {5, 5.1}, {5.1, 5}, {5.1, 5.1},
		{50, -50},
	}
}

func TestCluster_TwoBlobsAndNoise(t *testing.T) {
	res, err := Clusterer{Eps: 0.5, MinPoints: 3}.Cluster(context.Background(), blobs())
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if res.Clusters != 2 || res.Noise != 1 {
		t.Fatalf("clusters=%d noise=%d, want 2/1", res.Clusters, res.Noise)
	}
	for i := 0; i < 4; i++ {
		if res.Assignments[i].ClusterID != 0 || res.Assignments[i+4].ClusterID != 1 {
			t.Fatalf("unexpected labels: %+v", res.Assignments)
		}
	}
	outlier := res.Assignments[8]
	if outlier.ClusterID != Noise || outlier.MembershipStrength != 0 || outlier.Silhouette != nil {
		t.Errorf("outlier = %+v", outlier)
	}
	if res.OverallSilhouette == nil || *res.OverallSilhouette < 0.9 {
		t.Errorf("overall silhouette = %v, want > 0.9", res.OverallSilhouette)
	}
	for _, a := range res.Assignments[:8] {
		if a.MembershipStrength != 1 || a.Silhouette == nil {
			t.Errorf("clustered point %d = %+v", a.QueryIndex, a)
		}
	}
}

func TestCluster_SingleClusterHasNoSilhouette(t *testing.T) {
	res, err := Clusterer{Eps: 0.5, MinPoints: 3}.Cluster(context.Background(), blobs()[:5])
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if res.Clusters != 1 {
		t.Fatalf("clusters = %d, want 1", res.Clusters)
	}
	if res.OverallSilhouette != nil {
		t.Error("overall silhouette should be absent with one cluster")
	}
	for _, a := range res.Assignments {
		if a.Silhouette != nil {
			t.Errorf("point %d has a silhouette", a.QueryIndex)
		}
	}
}

func TestCluster_AllNoise(t *testing.T) {
	vecs := [][]float32{{0, 0}, {10, 10}, {20, 20}}
	res, err := Clusterer{Eps: 1, MinPoints: 2}.Cluster(context.Background(), vecs)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if res.Noise != 3 || res.Clusters != 0 || res.OverallSilhouette != nil {
		t.Errorf("result = %+v", res)
	}
}

func TestCluster_AutoEps(t *testing.T) {
	res, err := Clusterer{MinPoints: 3}.Cluster(context.Background(), blobs())
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if res.Eps <= 0 || res.Eps > 1 {
		t.Errorf("auto eps = %f, want within blob scale", res.Eps)
	}
	if res.Clusters != 2 || res.Assignments[8].ClusterID != Noise {
		t.Errorf("auto eps clustering = %+v", res.Assignments)
	}
}

func TestCluster_EdgeCases(t *testing.T) {
	res, err := Clusterer{MinPoints: 3}.Cluster(context.Background(), nil)
	if err != nil || len(res.Assignments) != 0 || res.OverallSilhouette != nil {
		t.Errorf("empty batch: %+v, %v", res, err)
	}

	_, err = Clusterer{Eps: 1, MinPoints: 2}.Cluster(context.Background(), [][]float32{{0, 0}, {1}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("got %v, want ErrDimensionMismatch", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Clusterer{Eps: 1, MinPoints: 2}).Cluster(ctx, blobs()); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled: got %v", err)
	}
}

func TestSilhouettes_KnownValues(t *testing.T) {
	// 1-D points 0, 1 | 10, 11
	dist := [][]float64{
		{0, 1, 10, 11},
		{1, 0, 9, 10},
		{10, 9, 0, 1},
		{11, 10, 1, 0},
	}
	got := silhouettes(dist, []int{0, 0, 1, 1}, 2)
	// point 0: a=1, b=10.5
	want0 := (10.5 - 1) / 10.5
	if math.Abs(got[0]-want0) > 1e-12 {
		t.Errorf("s[0] = %f, want %f", got[0], want0)
	}
	// point 1: a=1, b=9.5
	want1 := (9.5 - 1) / 9.5
	if math.Abs(got[1]-want1) > 1e-12 {
		t.Errorf("s[1] = %f, want %f", got[1], want1)
	}
}

func TestResult_Label(t *testing.T) {
	res, _ := Clusterer{Eps: 0.5, MinPoints: 3}.Cluster(context.Background(), blobs())
	labeled := res.Label([]string{"a", "b", "c", "d", "e", "f", "g", "h", "odd"})
	if labeled[8].ID != "odd" || labeled[8].Note != NoiseNote || labeled[8].Confidence != 0 {
		t.Errorf("noise label = %+v", labeled[8])
	}
	if labeled[0].Note != "" || labeled[0].Confidence != 1 || labeled[0].Silhouette == nil {
		t.Errorf("clustered label = %+v", labeled[0])
	}
}
