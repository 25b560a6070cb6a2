package project

import (
	"context"
	"encoding/json"
	"testing"
)

func TestParamsJSONRoundTrip(t *testing.T) {
	p := DefaultParams()
	p.NNeighbors = 5
	p.Extra = map[string]any{"spread": 2.5}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Params
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.NNeighbors != 5 {
		t.Errorf("n_neighbors = %d, want 5", got.NNeighbors)
	}
	if got.MinDist != 0.1 || got.Metric != "cosine" || got.RandomState != 42 {
		t.Errorf("defaults lost: %+v", got)
	}
	if got.Extra["spread"] != 2.5 {
		t.Errorf("extra key lost: %v", got.Extra)
	}
}

func TestParamsUnmarshalDefaultsMissingKeys(t *testing.T) {
	var p Params
	if err := json.Unmarshal([]byte(`{"metric":"euclidean"}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Metric != "euclidean" {
		t.Errorf("metric = %q", p.Metric)
	}
	if p.NNeighbors != 15 || p.MinDist != 0.1 || p.RandomState != 42 {
		t.Errorf("defaults not applied: %+v", p)
	}
}

func TestMinClusterSize(t *testing.T) {
	cases := []struct{ n, want int }{
		{5, 3},
		{14, 3},
		{25, 5},
		{50, 10},
		{500, 10},
	}
	for _, c := range cases {
		if got := MinClusterSize(c.n); got != c.want {
			t.Errorf("MinClusterSize(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestPCAProjectorDeterministicAndOrdered(t *testing.T) {
	vectors := [][]float32{
		{1, 0, 0}, {0.9, 0.1, 0}, {0, 1, 0}, {0, 0.9, 0.1}, {0, 0, 1},
	}
	params := DefaultParams()

	a, err := PCAProjector{}.Project(context.Background(), vectors, params)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if len(a) != len(vectors) {
		t.Fatalf("got %d coords, want %d", len(a), len(vectors))
	}

	b, err := PCAProjector{}.Project(context.Background(), vectors, params)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("row %d differs across invocations: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestPCAProjectorRaggedMatrix(t *testing.T) {
	_, err := PCAProjector{}.Project(context.Background(), [][]float32{{1, 2}, {1}}, DefaultParams())
	if err == nil {
		t.Fatal("expected error for ragged matrix")
	}
}

func TestDensityClustererGroupsTightPoints(t *testing.T) {
	// Two tight groups of five plus one far point.
	var coords []Coord
	for i := 0; i < 5; i++ {
		coords = append(coords, Coord{X: float64(i) * 0.01, Y: 0})
	}
	for i := 0; i < 5; i++ {
		coords = append(coords, Coord{X: 100 + float64(i)*0.01, Y: 0})
	}
	coords = append(coords, Coord{X: 50, Y: 500})

	labels, scores, err := DensityClusterer{}.Cluster(coords)
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	if len(labels) != len(coords) || len(scores) != len(coords) {
		t.Fatalf("row counts differ: %d labels, %d scores", len(labels), len(scores))
	}

	if labels[0] == Noise {
		t.Error("first group should be clustered")
	}
	for i := 1; i < 5; i++ {
		if labels[i] != labels[0] {
			t.Errorf("point %d not grouped with first cluster", i)
		}
	}
	if labels[10] != Noise {
		t.Errorf("far point label = %d, want noise", labels[10])
	}
	if scores[10] <= scores[0] {
		t.Errorf("far point should score higher: %v vs %v", scores[10], scores[0])
	}
}
