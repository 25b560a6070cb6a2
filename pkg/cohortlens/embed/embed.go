// Package embed defines the embedding collaborator contract. Providers are
// constructed once at process start and handed to the pipeline by reference;
// any per-model loading or caching happens inside the provider.
package embed

import (
	"context"
	"math"
)

// Provider maps (model identifier, text) to a fixed-length dense vector.
type Provider interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// L2Norm returns the Euclidean norm of v with a small epsilon so downstream
// cosine math never divides by zero.
func L2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum) + 1e-12
}

// Fake is a deterministic provider for tests: the vector is a function of the
// text alone, so equal texts embed identically and distinct texts differ.
type Fake struct {
	Dim int
}

func (f Fake) Embed(ctx context.Context, model, text string) ([]float32, error) {
	dim := f.Dim
	if dim <= 0 {
		dim = 16
	}
	vec := make([]float32, dim)
	for i, r := range text {
		vec[i%dim] += float32(r) / 1000.0
	}
	return vec, nil
}
