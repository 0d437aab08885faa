package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/temporal"

	"github.com/efebarandurmaz/sift/internal/answer"
	"github.com/efebarandurmaz/sift/internal/chunker"
	"github.com/efebarandurmaz/sift/internal/corpus"
)

// Application error types that stop the workflow without retrying.
const (
	ErrTypeChunkBudgetExceeded = "ChunkBudgetExceeded"
	ErrTypeCorpusUnavailable   = "CorpusUnavailable"
)

// MapReducer is the staged map-reduce API the workflow drives one activity at
// a time. *answer.MapReduceEngine implements it.
type MapReducer interface {
	Split(c corpus.Corpus) []chunker.Chunk
	MapChunk(ctx context.Context, question string, ch chunker.Chunk) (string, error)
	Reduce(ctx context.Context, question string, results []string) (string, bool, error)
}

// RAGAnswerer is implemented by *answer.RAGEngine.
type RAGAnswerer interface {
	AnswerWithRAG(ctx context.Context, question string, c corpus.Corpus) (string, bool, error)
}

// Result is the serializable outcome of an answering activity.
type Result struct {
	Answer string `json:"answer,omitempty"`
	Found  bool   `json:"found"`
}

// Activities holds the dependencies of every activity. The worker registers
// one instance; its exported methods become activities.
type Activities struct {
	Source    corpus.Source
	MapReduce MapReducer
	RAG       RAGAnswerer
	Logger    *slog.Logger
}

func (a *Activities) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// Fetch loads the corpus. An unavailable corpus is a non-retryable
// CorpusUnavailable error.
func (a *Activities) Fetch(ctx context.Context, req corpus.Request) (corpus.Corpus, error) {
	doc, err := a.Source.Fetch(ctx, req)
	if err != nil {
		if errors.Is(err, corpus.ErrUnavailable) {
			return corpus.Corpus{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeCorpusUnavailable, err)
		}
		return corpus.Corpus{}, err
	}
	a.logger().Info("fetched corpus", "id", doc.ID, "bytes", len(doc.Text))
	return doc, nil
}

// Split chunks the corpus with the map-reduce profile.
func (a *Activities) Split(_ context.Context, doc corpus.Corpus) ([]chunker.Chunk, error) {
	if a.MapReduce == nil {
		return nil, temporal.NewNonRetryableApplicationError("map-reduce is not configured", "NotConfigured", nil)
	}
	return a.MapReduce.Split(doc), nil
}

// MapChunk runs the map call for one chunk.
func (a *Activities) MapChunk(ctx context.Context, question string, ch chunker.Chunk) (string, error) {
	return a.MapReduce.MapChunk(ctx, question, ch)
}

// Reduce applies the findings policy to the map results. Exceeding the
// findings cap is a non-retryable ChunkBudgetExceeded error.
func (a *Activities) Reduce(ctx context.Context, question string, results []string) (Result, error) {
	text, found, err := a.MapReduce.Reduce(ctx, question, results)
	if err != nil {
		var budget *answer.BudgetError
		if errors.As(err, &budget) {
			return Result{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeChunkBudgetExceeded, err, budget.Findings, budget.Limit)
		}
		return Result{}, err
	}
	return Result{Answer: text, Found: found}, nil
}

// AnswerWithRAG runs the whole retrieval pipeline in one activity, since its
// index cannot outlive a single call.
func (a *Activities) AnswerWithRAG(ctx context.Context, question string, doc corpus.Corpus) (Result, error) {
	if a.RAG == nil {
		return Result{}, temporal.NewNonRetryableApplicationError("rag is not configured", "NotConfigured", nil)
	}
	text, found, err := a.RAG.AnswerWithRAG(ctx, question, doc)
	if err != nil {
		return Result{}, fmt.Errorf("rag: %w", err)
	}
	return Result{Answer: text, Found: found}, nil
}
