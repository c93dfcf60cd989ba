// Package semantic implements the flat vector index backing retrieval.
//
// The index is an in-memory, read-only table of L2-normalized embeddings
// loaded from a prebuilt artifact. Identifiers are dense positions 0..N-1
// assigned at build time. After Load the index is immutable and safe for
// unsynchronized concurrent reads.
package semantic

import (
	"errors"
	"fmt"
	"sort"

	"github.com/viant/vec/search"
)

var (
	// ErrNotReconstructable is returned by index types that cannot return
	// stored vectors. The flat index always can; callers handling other
	// index implementations must fall back to plain top-k ordering.
	ErrNotReconstructable = errors.New("semantic: index cannot reconstruct stored vectors")

	// ErrDimensionMismatch is returned when a query vector's length differs
	// from the index dimensionality.
	ErrDimensionMismatch = errors.New("semantic: query dimension mismatch")

	// ErrInvalidK is returned when a search requests fewer than one neighbor.
	ErrInvalidK = errors.New("semantic: k must be >= 1")

	// ErrUnknownID is returned when reconstructing an identifier outside 0..N-1.
	ErrUnknownID = errors.New("semantic: unknown vector id")
)

// Hit is a single nearest-neighbor search result.
type Hit struct {
	ID       int64   `json:"id"`
	Distance float32 `json:"distance"`
}

// Index is a brute-force flat vector index over L2 distance.
type Index struct {
	dim  int
	vecs [][]float32
}

// NewIndex builds an index from vectors. Vector i gets identifier i.
// All vectors must share one dimensionality.
func NewIndex(vecs [][]float32) (*Index, error) {
	if len(vecs) == 0 {
		return &Index{}, nil
	}
	dim := len(vecs[0])
	if dim == 0 {
		return nil, fmt.Errorf("semantic: zero-dimension vectors")
	}
	stored := make([][]float32, len(vecs))
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("semantic: inconsistent vector dims %d vs %d at id %d", len(v), dim, i)
		}
		stored[i] = append([]float32(nil), v...)
	}
	return &Index{dim: dim, vecs: stored}, nil
}

// Len returns the number of stored vectors.
func (ix *Index) Len() int { return len(ix.vecs) }

// Dim returns the index dimensionality (0 when empty).
func (ix *Index) Dim() int { return ix.dim }

// Search returns the k nearest stored vectors by L2 distance, ascending.
// Ties in distance break by ascending identifier. k is clamped to the index
// size; k < 1 is an error. An empty index returns no hits and no error.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidK, k)
	}
	if len(ix.vecs) == 0 {
		return nil, nil
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: query %d vs index %d", ErrDimensionMismatch, len(query), ix.dim)
	}

	q := search.Float32s(query)
	hits := make([]Hit, len(ix.vecs))
	for i, v := range ix.vecs {
		hits[i] = Hit{ID: int64(i), Distance: q.EuclideanDistance(v)}
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Distance != hits[b].Distance {
			return hits[a].Distance < hits[b].Distance
		}
		return hits[a].ID < hits[b].ID
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Reconstruct returns a copy of the stored vector for id.
func (ix *Index) Reconstruct(id int64) ([]float32, error) {
	if id < 0 || id >= int64(len(ix.vecs)) {
		return nil, fmt.Errorf("%w: %d (index size %d)", ErrUnknownID, id, len(ix.vecs))
	}
	return append([]float32(nil), ix.vecs[id]...), nil
}
