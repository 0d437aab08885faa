package answer

import (
	"context"
	"log/slog"
	"time"

	"github.com/efebarandurmaz/sift/internal/llm"
	"github.com/efebarandurmaz/sift/internal/metrics"
	"github.com/efebarandurmaz/sift/internal/observability"
	"github.com/efebarandurmaz/sift/internal/tokens"
)

// caller issues completion calls with fixed options and records each one.
type caller struct {
	llm    llm.Completer
	est    tokens.Estimator
	opts   *llm.RequestOptions
	logger *slog.Logger
}

func newCaller(completer llm.Completer, est tokens.Estimator, maxOutputTokens int, logger *slog.Logger) caller {
	if est == nil {
		est = tokens.Heuristic{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if maxOutputTokens <= 0 {
		maxOutputTokens = DefaultMaxOutputTokens
	}
	return caller{
		llm:    completer,
		est:    est,
		opts:   llm.Deterministic(maxOutputTokens),
		logger: logger,
	}
}

// complete runs one call. Failures come back as *PortError.
func (c caller) complete(ctx context.Context, stage Stage, chunkIndex int, prompt *llm.Prompt) (string, error) {
	ctx, span := observability.StartLLMSpan(ctx, string(stage), chunkIndex)
	defer span.End()

	start := time.Now()
	resp, err := c.llm.Complete(ctx, prompt, c.opts)
	var text string
	if err == nil {
		text, err = resp.Text()
	}
	elapsed := time.Since(start)

	promptTokens := c.est.Estimate(prompt.Text())
	used := promptTokens + c.est.Estimate(text)
	call := metrics.CallMetrics{Scenario: string(stage), ChunkIndex: chunkIndex, Tokens: used, Duration: elapsed}

	if err != nil {
		observability.RecordError(span, err)
		observability.Metrics().RecordLLMRequest(elapsed, promptTokens, err)
		call.Error = err.Error()
		metrics.FromContext(ctx).AddCall(call)
		c.logger.Error("llm call failed", "scenario", stage, "chunk", chunkIndex, "duration", elapsed, "error", err)
		return "", &PortError{Stage: stage, ChunkIndex: chunkIndex, Err: err}
	}

	observability.RecordLLMMetrics(span, promptTokens, used-promptTokens, elapsed)
	observability.Metrics().RecordLLMRequest(elapsed, used, nil)
	metrics.FromContext(ctx).AddCall(call)
	c.logger.Info("llm call completed", "scenario", stage, "chunk", chunkIndex, "tokens", used, "duration", elapsed.Round(time.Millisecond))
	return text, nil
}
