package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/efebarandurmaz/sift/internal/answer"
	"github.com/efebarandurmaz/sift/internal/config"
	"github.com/efebarandurmaz/sift/internal/corpus"
	"github.com/efebarandurmaz/sift/internal/llm"
	"github.com/efebarandurmaz/sift/internal/llm/providers"
	"github.com/efebarandurmaz/sift/internal/tokens"
	"github.com/efebarandurmaz/sift/internal/vector"
	"github.com/efebarandurmaz/sift/internal/vector/memory"
	"github.com/efebarandurmaz/sift/internal/vector/neo4j"
	"github.com/efebarandurmaz/sift/internal/vector/qdrant"
)

// Components is everything built from configuration. Both binaries share it.
type Components struct {
	Provider  llm.Provider
	Embedder  llm.Embedder
	Estimator tokens.Estimator
	Source    corpus.Source
	Indexes   vector.Factory

	MapReduce *answer.MapReduceEngine
	RAG       *answer.RAGEngine

	Orchestrator *Orchestrator

	providerName string
	chatTopK     int
	logger       *slog.Logger
}

// Build creates providers, engines and sources from cfg.
func Build(cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	factory := providers.NewFactory()

	provider, err := factory.Create(cfg.LLM.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	if provider == nil {
		return nil, fmt.Errorf("no LLM provider configured (set llm.provider)")
	}

	var embedder llm.Embedder = provider
	if ep := cfg.LLM.Embedding.Provider; ep != "" && ep != cfg.LLM.Provider {
		e, err := factory.Create(cfg.LLM.EmbeddingProviderConfig())
		if err != nil {
			return nil, fmt.Errorf("creating embedding provider: %w", err)
		}
		if e != nil {
			embedder = e
		}
	}

	return assemble(cfg, provider, embedder, logger)
}

// assemble builds everything downstream of the model providers.
func assemble(cfg *config.Config, provider llm.Provider, embedder llm.Embedder, logger *slog.Logger) (*Components, error) {
	est, err := tokens.New(cfg.Chunking.Estimator, cfg.Chunking.Encoding)
	if err != nil {
		return nil, err
	}

	repos, err := repositoryFactory(cfg.Vector)
	if err != nil {
		return nil, err
	}
	indexes := vector.NewFactory(embedder, repos)

	mr, err := answer.NewMapReduceEngine(provider, est, answer.MapReduceConfig{
		Profile:         cfg.Chunking.MapReduce,
		Parallelism:     cfg.Answer.Parallelism,
		MaxFindings:     cfg.Answer.MaxFindings,
		MaxOutputTokens: cfg.Answer.MaxOutputTokens,
	}, logger)
	if err != nil {
		return nil, err
	}
	rag, err := answer.NewRAGEngine(provider, est, indexes, answer.RAGConfig{
		Profile:         cfg.Chunking.RAG,
		TopK:            cfg.Answer.RAGTopK,
		MaxOutputTokens: cfg.Answer.MaxOutputTokens,
	}, logger)
	if err != nil {
		return nil, err
	}

	source := &corpus.Router{
		Files: corpus.NewFileSource(logger),
		Chats: corpus.NewChatsSource(cfg.Source.ChatsURL, cfg.Source.Timeout, logger),
	}

	c := &Components{
		Provider:     provider,
		Embedder:     embedder,
		Estimator:    est,
		Source:       source,
		Indexes:      indexes,
		MapReduce:    mr,
		RAG:          rag,
		providerName: cfg.LLM.Provider,
		chatTopK:     cfg.Answer.ChatTopK,
		logger:       logger,
	}
	c.Orchestrator, err = c.orchestrator(rag)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ChatOrchestrator returns an orchestrator whose RAG strategy retrieves the
// chat depth of chunks instead of the batch depth.
func (c *Components) ChatOrchestrator() (*Orchestrator, error) {
	return c.orchestrator(c.RAG.WithTopK(c.chatTopK))
}

func (c *Components) orchestrator(rag *answer.RAGEngine) (*Orchestrator, error) {
	return New(Config{
		Source:    c.Source,
		MapReduce: c.MapReduce,
		RAG:       rag,
		Estimator: c.Estimator,
		Provider:  c.providerName,
		Logger:    c.logger,
	})
}

func repositoryFactory(cfg config.VectorConfig) (vector.RepositoryFactory, error) {
	switch cfg.Backend {
	case "", "memory":
		return memory.NewFactory(), nil
	case "qdrant":
		return qdrant.NewFactory(cfg.Host, cfg.Port, cfg.CollectionPrefix), nil
	case "neo4j":
		return neo4j.NewFactory(Neo4jConfig(cfg.Neo4j)), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
}

// Neo4jConfig converts the configured Neo4j settings for the vector backend.
func Neo4jConfig(c config.Neo4jConfig) neo4j.Config {
	return neo4j.Config{URI: c.URI, Username: c.Username, Password: c.Password, Database: c.Database}
}
