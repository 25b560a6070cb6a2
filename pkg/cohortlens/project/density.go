package project

import (
	"math"
	"sort"
)

// DensityClusterer is the built-in clustering stage: a plain density scan over
// the 2D projection. Points within reach of enough neighbors form clusters;
// the rest are labeled Noise. The outlier score is the point's normalized
// distance to its nearest core point, so isolated points score higher.
type DensityClusterer struct{}

func (DensityClusterer) Cluster(coords []Coord) ([]int, []float64, error) {
	n := len(coords)
	labels := make([]int, n)
	scores := make([]float64, n)
	if n == 0 {
		return labels, scores, nil
	}

	minPts := MinClusterSize(n)
	eps := reachRadius(coords)

	for i := range labels {
		labels[i] = Noise
	}

	// Core points have at least minPts neighbors (self included) within eps.
	core := make([]bool, n)
	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if euclid(coords[i], coords[j]) <= eps {
				neighbors[i] = append(neighbors[i], j)
			}
		}
		core[i] = len(neighbors[i]) >= minPts
	}

	// Flood-fill clusters from core points in index order so labeling is
	// deterministic for a fixed input.
	next := 0
	for i := 0; i < n; i++ {
		if !core[i] || labels[i] != Noise {
			continue
		}
		label := next
		next++
		queue := []int{i}
		labels[i] = label
		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]
			if !core[p] {
				continue
			}
			for _, q := range neighbors[p] {
				if labels[q] == Noise {
					labels[q] = label
					queue = append(queue, q)
				}
			}
		}
	}

	var maxDist float64
	dists := make([]float64, n)
	for i := 0; i < n; i++ {
		d := math.Inf(1)
		for j := 0; j < n; j++ {
			if i == j || !core[j] {
				continue
			}
			if e := euclid(coords[i], coords[j]); e < d {
				d = e
			}
		}
		if math.IsInf(d, 1) {
			d = 0
		}
		dists[i] = d
		if d > maxDist {
			maxDist = d
		}
	}
	if maxDist > 0 {
		for i, d := range dists {
			scores[i] = d / maxDist
		}
	}

	return labels, scores, nil
}

// reachRadius picks eps as a low quantile of the pairwise distance
// distribution, which adapts the scan to the projection's scale.
func reachRadius(coords []Coord) float64 {
	n := len(coords)
	if n < 2 {
		return 0
	}
	var dists []float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dists = append(dists, euclid(coords[i], coords[j]))
		}
	}
	sort.Float64s(dists)
	idx := len(dists) / 5
	if idx >= len(dists) {
		idx = len(dists) - 1
	}
	eps := dists[idx]
	if eps == 0 {
		eps = 1e-9
	}
	return eps
}

func euclid(a, b Coord) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}
