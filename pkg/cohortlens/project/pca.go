package project

import (
	"context"
	"math"
	"math/rand"
)

// PCAProjector projects vectors onto their top two principal components found
// by power iteration. It is deterministic for a fixed RandomState and serves
// as the built-in projector for the binaries; NNeighbors, MinDist and Metric
// are accepted but only a neighborhood-based reducer would use them.
type PCAProjector struct{}

const (
	powerIterations = 64
	convergenceEps  = 1e-9
)

func (PCAProjector) Project(ctx context.Context, vectors [][]float32, params Params) ([]Coord, error) {
	if err := validateMatrix(vectors); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := len(vectors)
	dim := len(vectors[0])

	// Center the data.
	mean := make([]float64, dim)
	for _, row := range vectors {
		for j, v := range row {
			mean[j] += float64(v)
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}
	centered := make([][]float64, n)
	for i, row := range vectors {
		centered[i] = make([]float64, dim)
		for j, v := range row {
			centered[i][j] = float64(v) - mean[j]
		}
	}

	rng := rand.New(rand.NewSource(int64(params.RandomState)))
	first := principalComponent(centered, nil, rng)
	second := principalComponent(centered, first, rng)

	coords := make([]Coord, n)
	for i, row := range centered {
		coords[i] = Coord{X: dot(row, first), Y: dot(row, second)}
	}
	return coords, nil
}

// principalComponent runs power iteration on the covariance of rows,
// deflating against exclude when given.
func principalComponent(rows [][]float64, exclude []float64, rng *rand.Rand) []float64 {
	dim := len(rows[0])
	v := make([]float64, dim)
	for j := range v {
		v[j] = rng.NormFloat64()
	}
	normalize(v)

	prev := make([]float64, dim)
	for iter := 0; iter < powerIterations; iter++ {
		if exclude != nil {
			deflate(v, exclude)
		}
		next := make([]float64, dim)
		for _, row := range rows {
			p := dot(row, v)
			for j, rv := range row {
				next[j] += p * rv
			}
		}
		if exclude != nil {
			deflate(next, exclude)
		}
		normalize(next)

		copy(prev, v)
		copy(v, next)
		if delta(prev, v) < convergenceEps {
			break
		}
	}
	return v
}

func deflate(v, against []float64) {
	p := dot(v, against)
	for j := range v {
		v[j] -= p * against[j]
	}
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func normalize(v []float64) {
	var s float64
	for _, x := range v {
		s += x * x
	}
	n := math.Sqrt(s)
	if n == 0 {
		return
	}
	for i := range v {
		v[i] /= n
	}
}

func delta(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return math.Sqrt(s)
}
