// Package neighbor answers which documents sit closest to a given document in
// embedding space, within one run and section. The scan is exact and linear;
// a run's cohort is small enough that an index would not pay for itself.
package neighbor

import (
	"context"
	"fmt"
	"sort"

	"github.com/cohortlens/cohortlens/pkg/cohortlens/embed"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/store"
)

// Neighbor is one ranked result. Distance is cosine distance; smaller means
// more similar.
type Neighbor struct {
	DocumentID int64   `json:"doc_id"`
	Filename   string  `json:"filename"`
	Distance   float64 `json:"cosine_distance"`
}

// Nearest returns the k most similar other documents for (runID, docID,
// section), ascending by distance with document id as the tie-break. It fails
// with a not-found error when the anchor document has no embedding there.
func Nearest(ctx context.Context, st store.Store, runID, docID int64, section string, k int) ([]Neighbor, error) {
	if k <= 0 {
		k = 5
	}

	anchor, err := st.GetEmbedding(ctx, runID, docID, section)
	if err != nil {
		return nil, err
	}

	candidates, err := st.ListSectionEmbeddings(ctx, runID, section)
	if err != nil {
		return nil, fmt.Errorf("list section embeddings: %w", err)
	}

	anchorNorm := anchor.Norm
	if anchorNorm <= 0 {
		anchorNorm = embed.L2Norm(anchor.Vector)
	}

	out := make([]Neighbor, 0, len(candidates))
	for _, c := range candidates {
		if c.DocumentID == docID {
			continue
		}
		norm := c.Norm
		if norm <= 0 {
			norm = embed.L2Norm(c.Vector)
		}
		out = append(out, Neighbor{
			DocumentID: c.DocumentID,
			Filename:   c.Filename,
			Distance:   1 - dot(anchor.Vector, c.Vector)/(anchorNorm*norm),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
