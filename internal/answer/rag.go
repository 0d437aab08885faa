package answer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/efebarandurmaz/sift/internal/chunker"
	"github.com/efebarandurmaz/sift/internal/corpus"
	"github.com/efebarandurmaz/sift/internal/llm"
	"github.com/efebarandurmaz/sift/internal/metrics"
	"github.com/efebarandurmaz/sift/internal/observability"
	"github.com/efebarandurmaz/sift/internal/tokens"
	"github.com/efebarandurmaz/sift/internal/vector"
)

// RAGConfig tunes a RAGEngine.
type RAGConfig struct {
	Profile         chunker.Profile
	TopK            int
	MaxOutputTokens int
}

// DefaultRAGConfig returns the small-chunk profile and a retrieval depth of 20.
func DefaultRAGConfig() RAGConfig {
	return RAGConfig{
		Profile:         chunker.RAGProfile,
		TopK:            DefaultTopK,
		MaxOutputTokens: DefaultMaxOutputTokens,
	}
}

// RAGEngine answers from the chunks most similar to the question. Every
// call builds its own index and closes it before returning.
type RAGEngine struct {
	caller
	chunker *chunker.Chunker
	indexes vector.Factory
	topK    int
}

// NewRAGEngine creates an engine drawing a fresh index from indexes for each
// question.
func NewRAGEngine(completer llm.Completer, est tokens.Estimator, indexes vector.Factory, cfg RAGConfig, logger *slog.Logger) (*RAGEngine, error) {
	if completer == nil {
		return nil, fmt.Errorf("rag engine: nil completer")
	}
	if indexes == nil {
		return nil, fmt.Errorf("rag engine: nil index factory")
	}
	if cfg.TopK < 1 {
		return nil, fmt.Errorf("rag engine: top-k must be at least 1, got %d", cfg.TopK)
	}
	if est == nil {
		est = tokens.Heuristic{}
	}
	ch, err := chunker.New(est, cfg.Profile)
	if err != nil {
		return nil, fmt.Errorf("rag engine: %w", err)
	}
	return &RAGEngine{
		caller:  newCaller(completer, est, cfg.MaxOutputTokens, logger),
		chunker: ch,
		indexes: indexes,
		topK:    cfg.TopK,
	}, nil
}

// WithTopK returns a copy of the engine retrieving k chunks. Values below one
// keep the current depth.
func (e *RAGEngine) WithTopK(k int) *RAGEngine {
	cp := *e
	if k >= 1 {
		cp.topK = k
	}
	return &cp
}

// TopK returns the retrieval depth.
func (e *RAGEngine) TopK() int { return e.topK }

// Split partitions c with the engine's small-chunk profile.
func (e *RAGEngine) Split(c corpus.Corpus) []chunker.Chunk {
	return e.chunker.Split(c)
}

// AnswerWithRAG answers question from the TopK chunks of c most similar to
// it. found is false for an empty corpus or an empty retrieval.
func (e *RAGEngine) AnswerWithRAG(ctx context.Context, question string, c corpus.Corpus) (string, bool, error) {
	chunks := e.Split(c)
	metrics.FromContext(ctx).SetChunks(len(chunks))

	ctx, span := observability.StartAnswerSpan(ctx, "rag", len(chunks))
	defer span.End()

	if len(chunks) == 0 {
		observability.RecordAnswerResult(span, false, 0)
		return "", false, nil
	}

	retrieved, err := e.Retrieve(ctx, question, chunks)
	if err != nil {
		observability.RecordError(span, err)
		return "", false, err
	}

	answer, found, err := e.Answer(ctx, question, retrieved)
	if err != nil {
		observability.RecordError(span, err)
		return "", false, err
	}
	observability.RecordAnswerResult(span, found, len(retrieved))
	return answer, found, nil
}

// Retrieve indexes chunks in a fresh index and returns the TopK most similar
// to question, most similar first. The index is closed before returning.
func (e *RAGEngine) Retrieve(ctx context.Context, question string, chunks []chunker.Chunk) ([]chunker.Chunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	ctx, span := observability.StartIndexSpan(ctx, len(chunks), e.topK)
	defer span.End()

	idx, err := e.indexes(ctx)
	if err != nil {
		observability.RecordError(span, err)
		return nil, &PortError{Stage: StageIndex, ChunkIndex: -1, Err: err}
	}
	defer func() {
		if cerr := idx.Close(); cerr != nil {
			e.logger.Warn("closing similarity index failed", "error", cerr)
		}
	}()

	if err := idx.Add(ctx, chunks); err != nil {
		observability.RecordError(span, err)
		return nil, &PortError{Stage: StageIndex, ChunkIndex: -1, Err: err}
	}
	retrieved, err := idx.Query(ctx, question, e.topK)
	if err != nil {
		observability.RecordError(span, err)
		return nil, &PortError{Stage: StageIndex, ChunkIndex: -1, Err: err}
	}

	metrics.FromContext(ctx).SetRetrieved(len(retrieved))
	e.logger.Debug("retrieved chunks", "indexed", len(chunks), "retrieved", len(retrieved), "top_k", e.topK)
	return retrieved, nil
}

// Answer runs the context-constrained completion over retrieved chunks, in
// the order given.
func (e *RAGEngine) Answer(ctx context.Context, question string, retrieved []chunker.Chunk) (string, bool, error) {
	if len(retrieved) == 0 {
		return "", false, nil
	}
	answer, err := e.complete(ctx, StageRAG, -1, RAGPrompt(question, JoinContext(retrieved)))
	if err != nil {
		return "", false, err
	}
	return answer, true, nil
}
