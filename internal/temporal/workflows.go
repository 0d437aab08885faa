package temporal

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/efebarandurmaz/sift/internal/answer"
	"github.com/efebarandurmaz/sift/internal/chunker"
	"github.com/efebarandurmaz/sift/internal/corpus"
	"github.com/efebarandurmaz/sift/internal/pipeline"
)

// AnswerInput holds the workflow parameters.
type AnswerInput struct {
	Question string            `json:"question"`
	Strategy pipeline.Strategy `json:"strategy"`
	Source   corpus.Request    `json:"source"`
	// Parallelism bounds in-flight map activities. Zero means the default.
	Parallelism int `json:"parallelism,omitempty"`
}

// AnswerOutput holds the workflow result. Message is set when Found is false.
type AnswerOutput struct {
	Answer   string `json:"answer,omitempty"`
	Found    bool   `json:"found"`
	Message  string `json:"message,omitempty"`
	Chunks   int    `json:"chunks"`
	Findings int    `json:"findings"`
}

// Text returns the answer, or the message when there is none.
func (o *AnswerOutput) Text() string {
	if o.Found {
		return o.Answer
	}
	return o.Message
}

const activityTimeout = 10 * time.Minute

// AnswerWorkflow answers a question durably. Map-reduce runs every map call as
// its own activity with at most Parallelism in flight; RAG runs as a single
// activity. Activities are attempted once: the answering core never retries.
func AnswerWorkflow(ctx workflow.Context, in AnswerInput) (*AnswerOutput, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: activityTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	logger := workflow.GetLogger(ctx)

	var a *Activities

	var doc corpus.Corpus
	if err := workflow.ExecuteActivity(ctx, a.Fetch, in.Source).Get(ctx, &doc); err != nil {
		if isType(err, ErrTypeCorpusUnavailable) {
			logger.Warn("corpus unavailable", "error", err)
			return &AnswerOutput{Message: pipeline.MsgCorpusUnavailable}, nil
		}
		return nil, fmt.Errorf("fetch: %w", err)
	}

	var (
		res Result
		out AnswerOutput
	)
	switch in.Strategy {
	case pipeline.StrategyRAG:
		if err := workflow.ExecuteActivity(ctx, a.AnswerWithRAG, in.Question, doc).Get(ctx, &res); err != nil {
			return nil, err
		}
	case pipeline.StrategyMapReduce, "":
		var chunks []chunker.Chunk
		if err := workflow.ExecuteActivity(ctx, a.Split, doc).Get(ctx, &chunks); err != nil {
			return nil, fmt.Errorf("split: %w", err)
		}
		out.Chunks = len(chunks)

		results, err := mapChunks(ctx, a, in, chunks)
		if err != nil {
			return nil, err
		}
		out.Findings = len(answer.RelevantFindings(results))
		logger.Info("map stage finished", "chunks", len(chunks), "findings", out.Findings)

		if len(chunks) > 0 {
			if err := workflow.ExecuteActivity(ctx, a.Reduce, in.Question, results).Get(ctx, &res); err != nil {
				return nil, err
			}
		}
	default:
		return nil, temporal.NewNonRetryableApplicationError(fmt.Sprintf("unknown strategy %q", in.Strategy), "UnknownStrategy", nil)
	}

	out.Answer, out.Found = res.Answer, res.Found
	if !out.Found {
		out.Message = pipeline.MsgNoInformation
	}
	return &out, nil
}

// mapChunks keeps a sliding window of at most Parallelism map activities in
// flight. Results are stored by chunk index. The first failure cancels the
// outstanding activities and is returned once they have settled.
func mapChunks(ctx workflow.Context, a *Activities, in AnswerInput, chunks []chunker.Chunk) ([]string, error) {
	limit := in.Parallelism
	if limit <= 0 {
		limit = answer.DefaultParallelism
	}

	mapCtx, cancel := workflow.WithCancel(ctx)
	defer cancel()

	results := make([]string, len(chunks))
	selector := workflow.NewSelector(ctx)
	var (
		firstErr error
		pending  int
		next     int
	)
	for next < len(chunks) || pending > 0 {
		for firstErr == nil && pending < limit && next < len(chunks) {
			i := next
			f := workflow.ExecuteActivity(mapCtx, a.MapChunk, in.Question, chunks[i])
			selector.AddFuture(f, func(f workflow.Future) {
				pending--
				var s string
				if err := f.Get(ctx, &s); err != nil {
					if firstErr == nil {
						firstErr = fmt.Errorf("map chunk %d: %w", i, err)
						cancel()
					}
					return
				}
				results[i] = s
			})
			pending++
			next++
		}
		if pending == 0 {
			break
		}
		selector.Select(ctx)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

func isType(err error, errType string) bool {
	var appErr *temporal.ApplicationError
	return errors.As(err, &appErr) && appErr.Type() == errType
}
