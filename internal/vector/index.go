// Package vector provides the similarity index used by RAG answering. An
// index lives for exactly one question: it is created from a Factory, filled
// with the chunks of one corpus, queried, and closed.
package vector

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/sift/internal/chunker"
	"github.com/efebarandurmaz/sift/internal/llm"
)

// Index adds chunks and retrieves the ones most similar to a question.
type Index interface {
	Add(ctx context.Context, chunks []chunker.Chunk) error
	// Query returns at most topK chunks ordered from most to least similar.
	Query(ctx context.Context, question string, topK int) ([]chunker.Chunk, error)
	Close() error
}

// Factory creates a fresh, empty Index.
type Factory func(ctx context.Context) (Index, error)

// RepositoryFactory creates the storage behind one index.
type RepositoryFactory func(ctx context.Context) (Repository, error)

// DefaultEmbedBatch bounds the number of texts sent in one embedding request.
const DefaultEmbedBatch = 64

// EmbeddingIndex embeds chunks with an llm.Embedder and stores them in a
// Repository.
type EmbeddingIndex struct {
	embedder llm.Embedder
	repo     Repository
	batch    int

	mu     sync.Mutex
	chunks map[string]chunker.Chunk
}

// NewEmbeddingIndex creates an index over repo. The index owns repo and
// closes it on Close.
func NewEmbeddingIndex(embedder llm.Embedder, repo Repository) *EmbeddingIndex {
	return &EmbeddingIndex{
		embedder: embedder,
		repo:     repo,
		batch:    DefaultEmbedBatch,
		chunks:   make(map[string]chunker.Chunk),
	}
}

// NewFactory returns a Factory producing embedding indexes, each over its own
// repository from newRepo.
func NewFactory(embedder llm.Embedder, newRepo RepositoryFactory) Factory {
	return func(ctx context.Context) (Index, error) {
		repo, err := newRepo(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating vector repository: %w", err)
		}
		return NewEmbeddingIndex(embedder, repo), nil
	}
}

// Add embeds chunks in batches and upserts them.
func (x *EmbeddingIndex) Add(ctx context.Context, chunks []chunker.Chunk) error {
	for from := 0; from < len(chunks); from += x.batch {
		to := min(from+x.batch, len(chunks))
		batch := chunks[from:to]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := x.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding chunks %d-%d: %w", from, to-1, err)
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts))
		}

		docs := make([]Document, len(batch))
		for i, c := range batch {
			meta := make(map[string]string, len(c.Metadata)+1)
			for k, v := range c.Metadata {
				meta[k] = v
			}
			meta["chunk_index"] = strconv.Itoa(c.Index)
			docs[i] = Document{
				ID:       uuid.NewString(),
				Content:  c.Text,
				Vector:   vectors[i],
				Metadata: meta,
			}
		}
		if err := x.repo.Upsert(ctx, docs); err != nil {
			return fmt.Errorf("storing embeddings: %w", err)
		}

		x.mu.Lock()
		for i, d := range docs {
			x.chunks[d.ID] = batch[i]
		}
		x.mu.Unlock()
	}
	return nil
}

// Query embeds question and returns the closest chunks in repository order.
func (x *EmbeddingIndex) Query(ctx context.Context, question string, topK int) ([]chunker.Chunk, error) {
	x.mu.Lock()
	empty := len(x.chunks) == 0
	x.mu.Unlock()
	if topK <= 0 || empty {
		return nil, nil
	}

	vectors, err := x.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want 1", len(vectors))
	}

	results, err := x.repo.Search(ctx, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]chunker.Chunk, 0, len(results))
	for _, r := range results {
		if c, ok := x.chunks[r.ID]; ok {
			out = append(out, c)
			continue
		}
		idx, _ := strconv.Atoi(r.Metadata["chunk_index"])
		out = append(out, chunker.Chunk{Index: idx, Text: r.Content, Metadata: r.Metadata})
	}
	return out, nil
}

// Close releases the repository.
func (x *EmbeddingIndex) Close() error {
	return x.repo.Close()
}
