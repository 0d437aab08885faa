// Package pipeline turns a question and a corpus request into a user-facing
// reply: it fetches the corpus, runs the selected answer engine and renders
// the "no information" and "unavailable" outcomes as messages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/efebarandurmaz/sift/internal/answer"
	"github.com/efebarandurmaz/sift/internal/corpus"
	"github.com/efebarandurmaz/sift/internal/metrics"
	"github.com/efebarandurmaz/sift/internal/observability"
	"github.com/efebarandurmaz/sift/internal/tokens"
)

// Strategy selects the answer engine.
type Strategy string

const (
	StrategyMapReduce Strategy = "map-reduce"
	StrategyRAG       Strategy = "rag"
)

// ParseStrategy accepts "map-reduce" (also "mapreduce", "mr") and "rag".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "map-reduce", "mapreduce", "mr", "":
		return StrategyMapReduce, nil
	case "rag":
		return StrategyRAG, nil
	default:
		return "", fmt.Errorf("unknown strategy %q (want map-reduce or rag)", s)
	}
}

const (
	MsgCorpusUnavailable = "Could not load the corpus. Check the source and try again."
	MsgNoInformation     = "No information on this question was found in the corpus."
)

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("question is empty")

// MapReducer is satisfied by *answer.MapReduceEngine.
type MapReducer interface {
	MapReduce(ctx context.Context, question string, c corpus.Corpus) (string, bool, error)
}

// RAGAnswerer is satisfied by *answer.RAGEngine.
type RAGAnswerer interface {
	AnswerWithRAG(ctx context.Context, question string, c corpus.Corpus) (string, bool, error)
}

// Request is one question against one corpus.
type Request struct {
	Question string         `json:"question"`
	Strategy Strategy       `json:"strategy"`
	Source   corpus.Request `json:"source"`
}

// Reply is the outcome shown to the user. When Found is false, Message holds
// the text to show instead of an answer.
type Reply struct {
	Answer  string       `json:"answer,omitempty"`
	Found   bool         `json:"found"`
	Message string       `json:"message,omitempty"`
	Run     *metrics.Run `json:"run,omitempty"`
}

// Text returns the answer, or the message when there is none.
func (r Reply) Text() string {
	if r.Found {
		return r.Answer
	}
	return r.Message
}

// Config wires an Orchestrator. A nil engine disables its strategy.
type Config struct {
	Source    corpus.Source
	MapReduce MapReducer
	RAG       RAGAnswerer
	Estimator tokens.Estimator
	// Provider names the model backend in run reports.
	Provider string
	Logger   *slog.Logger
}

// Orchestrator answers requests end to end. Engine failures are returned as
// errors; the two expected non-answers become messages.
type Orchestrator struct {
	source    corpus.Source
	mapReduce MapReducer
	rag       RAGAnswerer
	est       tokens.Estimator
	provider  string
	logger    *slog.Logger
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("orchestrator: nil corpus source")
	}
	if cfg.MapReduce == nil && cfg.RAG == nil {
		return nil, fmt.Errorf("orchestrator: no answer engine configured")
	}
	if cfg.Estimator == nil {
		cfg.Estimator = tokens.Heuristic{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		source:    cfg.Source,
		mapReduce: cfg.MapReduce,
		rag:       cfg.RAG,
		est:       cfg.Estimator,
		provider:  cfg.Provider,
		logger:    cfg.Logger,
	}, nil
}

// Ask fetches the corpus for req and answers req.Question with the requested
// strategy. An unavailable corpus yields MsgCorpusUnavailable without calling
// any engine; an unanswered question yields MsgNoInformation.
func (o *Orchestrator) Ask(ctx context.Context, req Request) (Reply, error) {
	if strings.TrimSpace(req.Question) == "" {
		return Reply{}, ErrEmptyQuestion
	}
	if req.Strategy == "" {
		req.Strategy = StrategyMapReduce
	}
	engine, err := o.engine(req.Strategy)
	if err != nil {
		return Reply{}, err
	}

	run := metrics.New(string(req.Strategy), o.provider)
	ctx = metrics.WithRun(ctx, run)

	m := observability.Metrics()
	m.ActiveRuns.Inc()
	defer m.ActiveRuns.Dec()
	start := time.Now()

	doc, err := o.fetch(ctx, req.Source)
	if err != nil {
		run.Finish(false, err)
		if errors.Is(err, corpus.ErrUnavailable) {
			o.logger.Warn("corpus unavailable", "error", err)
			return Reply{Message: MsgCorpusUnavailable, Run: run}, nil
		}
		return Reply{Run: run}, err
	}

	o.logger.Info("answering question",
		"strategy", req.Strategy,
		"corpus", doc.ID,
		"bytes", len(doc.Text),
	)

	text, found, err := engine(ctx, req.Question, doc)
	m.RecordAnswer(time.Since(start), found, errors.Is(err, answer.ErrChunkBudgetExceeded), err)
	run.Finish(found, err)
	if err != nil {
		o.logger.Error("answering failed", "strategy", req.Strategy, "error", err)
		return Reply{Run: run}, err
	}

	o.logger.Info("question answered",
		"strategy", req.Strategy,
		"found", found,
		"calls", len(run.Calls),
		"tokens", run.TotalTokens(),
		"duration", time.Since(start),
	)
	if !found {
		return Reply{Message: MsgNoInformation, Run: run}, nil
	}
	return Reply{Answer: text, Found: true, Run: run}, nil
}

type engineFunc func(ctx context.Context, question string, c corpus.Corpus) (string, bool, error)

func (o *Orchestrator) engine(s Strategy) (engineFunc, error) {
	switch s {
	case StrategyMapReduce:
		if o.mapReduce != nil {
			return o.mapReduce.MapReduce, nil
		}
	case StrategyRAG:
		if o.rag != nil {
			return o.rag.AnswerWithRAG, nil
		}
	default:
		return nil, fmt.Errorf("unknown strategy %q", s)
	}
	return nil, fmt.Errorf("strategy %q is not configured", s)
}

func (o *Orchestrator) fetch(ctx context.Context, req corpus.Request) (corpus.Corpus, error) {
	kind := sourceKind(req)
	ctx, span := observability.StartFetchSpan(ctx, kind)
	defer span.End()

	doc, err := o.source.Fetch(ctx, req)
	if err != nil {
		observability.RecordError(span, err)
		return corpus.Corpus{}, err
	}
	metrics.FromContext(ctx).SetSource(metrics.SourceMetrics{
		Kind:   kind,
		ID:     doc.ID,
		Bytes:  len(doc.Text),
		Tokens: o.est.Estimate(doc.Text),
	})
	return doc, nil
}

func sourceKind(req corpus.Request) string {
	switch {
	case req.Path != "":
		return "file"
	case req.ChatID != 0:
		return "chat"
	default:
		return "static"
	}
}
