package answer

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/sift/internal/chunker"
	"github.com/efebarandurmaz/sift/internal/corpus"
	"github.com/efebarandurmaz/sift/internal/llm"
	"github.com/efebarandurmaz/sift/internal/metrics"
	"github.com/efebarandurmaz/sift/internal/observability"
	"github.com/efebarandurmaz/sift/internal/tokens"
)

// MapReduceConfig tunes a MapReduceEngine.
type MapReduceConfig struct {
	Profile         chunker.Profile
	Parallelism     int
	MaxFindings     int
	MaxOutputTokens int
}

// DefaultMapReduceConfig returns the large-chunk profile, five workers and a
// cap of ten findings.
func DefaultMapReduceConfig() MapReduceConfig {
	return MapReduceConfig{
		Profile:         chunker.MapReduceProfile,
		Parallelism:     DefaultParallelism,
		MaxFindings:     DefaultMaxFindings,
		MaxOutputTokens: DefaultMaxOutputTokens,
	}
}

// MapReduceEngine answers by querying every chunk, then synthesizing the
// relevant findings in one further call.
type MapReduceEngine struct {
	caller
	chunker     *chunker.Chunker
	parallelism int
	maxFindings int
}

// NewMapReduceEngine creates an engine. A nil estimator means
// tokens.Heuristic; a nil logger means slog.Default().
func NewMapReduceEngine(completer llm.Completer, est tokens.Estimator, cfg MapReduceConfig, logger *slog.Logger) (*MapReduceEngine, error) {
	if completer == nil {
		return nil, fmt.Errorf("map-reduce engine: nil completer")
	}
	if cfg.Parallelism < 1 {
		return nil, fmt.Errorf("map-reduce engine: parallelism must be at least 1, got %d", cfg.Parallelism)
	}
	if cfg.MaxFindings < 1 {
		return nil, fmt.Errorf("map-reduce engine: max findings must be at least 1, got %d", cfg.MaxFindings)
	}
	if est == nil {
		est = tokens.Heuristic{}
	}
	ch, err := chunker.New(est, cfg.Profile)
	if err != nil {
		return nil, fmt.Errorf("map-reduce engine: %w", err)
	}
	return &MapReduceEngine{
		caller:      newCaller(completer, est, cfg.MaxOutputTokens, logger),
		chunker:     ch,
		parallelism: cfg.Parallelism,
		maxFindings: cfg.MaxFindings,
	}, nil
}

// MaxFindings returns the reduce-stage cap.
func (e *MapReduceEngine) MaxFindings() int { return e.maxFindings }

// Parallelism returns the map-stage worker count.
func (e *MapReduceEngine) Parallelism() int { return e.parallelism }

// Split partitions c with the engine's large-chunk profile.
func (e *MapReduceEngine) Split(c corpus.Corpus) []chunker.Chunk {
	return e.chunker.Split(c)
}

// MapReduce answers question from c. found is false when no chunk held
// relevant information. A *BudgetError reports too many relevant chunks; any
// model failure is a *PortError.
func (e *MapReduceEngine) MapReduce(ctx context.Context, question string, c corpus.Corpus) (string, bool, error) {
	chunks := e.Split(c)
	metrics.FromContext(ctx).SetChunks(len(chunks))

	ctx, span := observability.StartAnswerSpan(ctx, "map-reduce", len(chunks))
	defer span.End()

	if len(chunks) == 0 {
		observability.RecordAnswerResult(span, false, 0)
		return "", false, nil
	}

	results, err := e.Map(ctx, question, chunks)
	if err != nil {
		observability.RecordError(span, err)
		return "", false, err
	}

	findings := RelevantFindings(results)
	e.logger.Debug("map stage finished", "chunks", len(chunks), "findings", len(findings))

	answer, found, err := e.reduce(ctx, question, findings)
	if err != nil {
		observability.RecordError(span, err)
		return "", false, err
	}
	observability.RecordAnswerResult(span, found, len(findings))
	return answer, found, nil
}

// Map runs MapChunk over chunks with at most Parallelism calls in flight.
// Results are in chunk order. The first failure cancels the remaining calls
// and is returned.
func (e *MapReduceEngine) Map(ctx context.Context, question string, chunks []chunker.Chunk) ([]string, error) {
	results := make([]string, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, ch := range chunks {
		i, ch := i, ch
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := e.MapChunk(gctx, question, ch)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// MapChunk extracts what ch says about question, or NoInfo.
func (e *MapReduceEngine) MapChunk(ctx context.Context, question string, ch chunker.Chunk) (string, error) {
	return e.complete(ctx, StageMap, ch.Index, MapPrompt(question, ch.Text))
}

// Reduce applies the findings policy to raw map results: none means not
// found, one is returned as is, more than MaxFindings is a *BudgetError, and
// anything in between is synthesized by one completion call.
func (e *MapReduceEngine) Reduce(ctx context.Context, question string, results []string) (string, bool, error) {
	return e.reduce(ctx, question, RelevantFindings(results))
}

func (e *MapReduceEngine) reduce(ctx context.Context, question string, findings []string) (string, bool, error) {
	metrics.FromContext(ctx).SetFindings(len(findings))

	switch len(findings) {
	case 0:
		return "", false, nil
	case 1:
		return findings[0], true, nil
	}
	if err := CheckBudget(len(findings), e.maxFindings); err != nil {
		e.logger.Warn("too many relevant chunks for reduce", "findings", len(findings), "limit", e.maxFindings)
		return "", false, err
	}

	answer, err := e.complete(ctx, StageReduce, -1, ReducePrompt(question, JoinFindings(findings)))
	if err != nil {
		return "", false, err
	}
	return answer, true, nil
}
