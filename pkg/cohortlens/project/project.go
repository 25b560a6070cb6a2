// Package project defines the dimensionality-reduction and clustering
// collaborator contracts, plus small deterministic built-in implementations
// used by the binaries. The algorithms behind a production deployment live
// outside this repository; anything honoring these contracts can be swapped in.
package project

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

// Coord is one 2D projected point.
type Coord struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Noise is the cluster label assigned to unclustered points.
const Noise = -1

// Params carries the tunable projection configuration for a run. The named
// fields cover the recognized keys; Extra passes provider-specific keys
// through opaquely.
type Params struct {
	NNeighbors  int     `json:"n_neighbors"`
	MinDist     float64 `json:"min_dist"`
	Metric      string  `json:"metric"`
	RandomState int     `json:"random_state"`

	Extra map[string]any `json:"-"`
}

// DefaultParams returns the stock configuration.
func DefaultParams() Params {
	return Params{
		NNeighbors:  15,
		MinDist:     0.1,
		Metric:      "cosine",
		RandomState: 42,
	}
}

// Equal reports whether two parameter sets match, extras included.
func (p Params) Equal(q Params) bool {
	if p.NNeighbors != q.NNeighbors || p.MinDist != q.MinDist ||
		p.Metric != q.Metric || p.RandomState != q.RandomState {
		return false
	}
	return reflect.DeepEqual(p.Extra, q.Extra)
}

// MarshalJSON flattens Extra into the top-level object so the stored form
// stays a single flat mapping.
func (p Params) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 4+len(p.Extra))
	for k, v := range p.Extra {
		m[k] = v
	}
	m["n_neighbors"] = p.NNeighbors
	m["min_dist"] = p.MinDist
	m["metric"] = p.Metric
	m["random_state"] = p.RandomState
	return json.Marshal(m)
}

// UnmarshalJSON fills the named fields from recognized keys, defaults any that
// are absent, and collects the rest into Extra.
func (p *Params) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*p = DefaultParams()
	for k, v := range m {
		switch k {
		case "n_neighbors":
			p.NNeighbors = toInt(v, p.NNeighbors)
		case "min_dist":
			p.MinDist = toFloat(v, p.MinDist)
		case "metric":
			if s, ok := v.(string); ok {
				p.Metric = s
			}
		case "random_state":
			p.RandomState = toInt(v, p.RandomState)
		default:
			if p.Extra == nil {
				p.Extra = make(map[string]any)
			}
			p.Extra[k] = v
		}
	}
	return nil
}

func toInt(v any, fallback int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return fallback
}

func toFloat(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return fallback
}

// Projector maps a matrix of embedding vectors to one 2D coordinate per row,
// preserving row order.
type Projector interface {
	Project(ctx context.Context, vectors [][]float32, params Params) ([]Coord, error)
}

// Clusterer assigns an integer cluster label and an outlier score to each
// coordinate, preserving row order. Labels of Noise mean unclustered; scores
// may be zero-filled when the implementation has none.
type Clusterer interface {
	Cluster(coords []Coord) (labels []int, outlierScores []float64, err error)
}

// MinClusterSize is the cluster-volume policy shared by clusterer
// implementations: it scales with input size within fixed bounds.
func MinClusterSize(n int) int {
	size := n / 5
	if size > 10 {
		size = 10
	}
	if size < 3 {
		size = 3
	}
	return size
}

func validateMatrix(vectors [][]float32) error {
	if len(vectors) == 0 {
		return fmt.Errorf("empty matrix")
	}
	width := len(vectors[0])
	for i, v := range vectors {
		if len(v) != width {
			return fmt.Errorf("row %d has width %d, want %d", i, len(v), width)
		}
	}
	return nil
}
