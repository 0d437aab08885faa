// Package memory implements an in-process vector.Repository with exact
// cosine-similarity search.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/efebarandurmaz/sift/internal/vector"
)

// Repository keeps documents in memory. It suits the per-question indexes of
// RAG answering, where a few thousand chunks at most are searched once.
type Repository struct {
	mu   sync.RWMutex
	docs []vector.Document
	pos  map[string]int
	dim  int
}

// New creates an empty repository.
func New() *Repository {
	return &Repository{pos: make(map[string]int)}
}

// NewFactory adapts New to vector.RepositoryFactory.
func NewFactory() vector.RepositoryFactory {
	return func(context.Context) (vector.Repository, error) {
		return New(), nil
	}
}

func (r *Repository) Upsert(_ context.Context, docs []vector.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range docs {
		if r.dim == 0 {
			r.dim = len(d.Vector)
		}
		if len(d.Vector) != r.dim {
			return fmt.Errorf("memory: document %s has dimension %d, want %d", d.ID, len(d.Vector), r.dim)
		}
		if i, ok := r.pos[d.ID]; ok {
			r.docs[i] = d
			continue
		}
		r.pos[d.ID] = len(r.docs)
		r.docs = append(r.docs, d)
	}
	return nil
}

// Search ranks every document by cosine similarity. Ties keep insertion
// order, so results are deterministic.
func (r *Repository) Search(_ context.Context, vec []float32, topK int) ([]vector.SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if topK <= 0 || len(r.docs) == 0 {
		return nil, nil
	}
	if len(vec) != r.dim {
		return nil, fmt.Errorf("memory: query has dimension %d, want %d", len(vec), r.dim)
	}

	results := make([]vector.SearchResult, len(r.docs))
	for i, d := range r.docs {
		results[i] = vector.SearchResult{
			ID:       d.ID,
			Score:    cosine(vec, d.Vector),
			Content:  d.Content,
			Metadata: d.Metadata,
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Close drops all documents.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs, r.pos, r.dim = nil, make(map[string]int), 0
	return nil
}

// Len returns the number of stored documents.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var _ vector.Repository = (*Repository)(nil)
