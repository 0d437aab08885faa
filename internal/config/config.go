// Package config loads sift configuration from an optional YAML file and
// SIFT_* environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/efebarandurmaz/sift/internal/chunker"
	"github.com/efebarandurmaz/sift/internal/llm"
	"github.com/efebarandurmaz/sift/internal/secrets"
)

// EnvPrefix prefixes every environment override, e.g. SIFT_LLM_API_KEY.
const EnvPrefix = "SIFT"

// Config holds all application configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Answer   AnswerConfig   `mapstructure:"answer"`
	Chunking ChunkingConfig `mapstructure:"chunking"`
	Vector   VectorConfig   `mapstructure:"vector"`
	Source   SourceConfig   `mapstructure:"source"`
	Temporal TemporalConfig `mapstructure:"temporal"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Server   ServerConfig   `mapstructure:"server"`
	Secrets  secrets.Config `mapstructure:"secrets"`
	Log      LogConfig      `mapstructure:"log"`
}

type LLMConfig struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`

	RateLimit llm.RateLimitConfig `mapstructure:"rate_limit"`

	// Embedding configures the embedding model used by RAG. Unset fields
	// inherit from the completion settings above.
	Embedding EmbeddingConfig `mapstructure:"embedding"`
}

// EmbeddingConfig overrides provider settings for embeddings.
type EmbeddingConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// ProviderConfig returns the settings for the completion provider.
func (c LLMConfig) ProviderConfig() llm.ProviderConfig {
	pc := llm.ProviderConfig{
		Provider:   c.Provider,
		APIKey:     c.APIKey,
		Model:      c.Model,
		BaseURL:    c.BaseURL,
		EmbedModel: c.Embedding.Model,
		Timeout:    c.Timeout,
		MaxRetries: c.MaxRetries,
		RetryDelay: c.RetryDelay,
	}
	if c.RateLimit.Enabled() {
		rl := c.RateLimit
		pc.RateLimit = &rl
	}
	return pc
}

// EmbeddingProviderConfig returns the settings for the embedding provider,
// with embedding overrides applied. Overriding the provider drops the
// inherited base URL and key, which belong to the other provider.
func (c LLMConfig) EmbeddingProviderConfig() llm.ProviderConfig {
	pc := c.ProviderConfig()
	e := c.Embedding
	if e.Provider != "" && e.Provider != c.Provider {
		pc.Provider = e.Provider
		pc.BaseURL = ""
		pc.APIKey = ""
	}
	if e.APIKey != "" {
		pc.APIKey = e.APIKey
	}
	if e.BaseURL != "" {
		pc.BaseURL = e.BaseURL
	}
	return pc
}

type AnswerConfig struct {
	// Strategy is the default for `sift ask`: "map-reduce" or "rag".
	Strategy        string `mapstructure:"strategy"`
	Parallelism     int    `mapstructure:"parallelism"`
	MaxFindings     int    `mapstructure:"max_findings"`
	MaxOutputTokens int    `mapstructure:"max_output_tokens"`
	RAGTopK         int    `mapstructure:"rag_top_k"`
	ChatTopK        int    `mapstructure:"chat_top_k"`
}

type ChunkingConfig struct {
	MapReduce chunker.Profile `mapstructure:"map_reduce"`
	RAG       chunker.Profile `mapstructure:"rag"`
	// Estimator is "heuristic" or "tiktoken".
	Estimator string `mapstructure:"estimator"`
	Encoding  string `mapstructure:"encoding"`
}

type VectorConfig struct {
	// Backend is "memory", "qdrant" or "neo4j".
	Backend          string      `mapstructure:"backend"`
	Host             string      `mapstructure:"host"`
	Port             int         `mapstructure:"port"`
	CollectionPrefix string      `mapstructure:"collection_prefix"`
	Neo4j            Neo4jConfig `mapstructure:"neo4j"`
}

type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

type SourceConfig struct {
	ChatsURL string        `mapstructure:"chats_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Environment  string  `mapstructure:"environment"`
}

type ServerConfig struct {
	HealthAddr string `mapstructure:"health_addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// keylessProviders run locally or behind a proxy and need no API key.
var keylessProviders = map[string]bool{"": true, "none": true, "ollama": true, "custom": true}

// resolveSecrets fills API keys left empty by the file and environment from
// the configured secrets backend.
func (c *Config) resolveSecrets(ctx context.Context) error {
	m, err := secrets.NewManager(c.Secrets)
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	if m == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, secretsTimeout)
	defer cancel()
	if err := m.Fill(ctx, secrets.LLMAPIKey, &c.LLM.APIKey); err != nil {
		return err
	}
	if c.LLM.Embedding.Provider != "" {
		if err := m.Fill(ctx, secrets.EmbeddingAPIKey, &c.LLM.Embedding.APIKey); err != nil {
			return err
		}
	}
	if c.Vector.Backend == "neo4j" {
		return m.Fill(ctx, secrets.Neo4jPassword, &c.Vector.Neo4j.Password)
	}
	return nil
}

const secretsTimeout = 30 * time.Second

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if !keylessProviders[c.LLM.Provider] && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}
	if c.LLM.Provider == "anthropic" && (c.LLM.Embedding.Provider == "" || c.LLM.Embedding.Provider == "anthropic") {
		warnings = append(warnings, "provider 'anthropic' has no embedding API; set llm.embedding.provider for the rag strategy")
	}
	if c.Answer.Parallelism > 20 {
		warnings = append(warnings, fmt.Sprintf("answer.parallelism %d is likely to hit provider rate limits", c.Answer.Parallelism))
	}
	if c.Answer.MaxFindings > 10 {
		warnings = append(warnings, fmt.Sprintf("answer.max_findings %d may overflow the reduce prompt", c.Answer.MaxFindings))
	}
	if c.Answer.MaxOutputTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("answer.max_output_tokens %d is negative", c.Answer.MaxOutputTokens))
	}
	for name, p := range map[string]chunker.Profile{"map_reduce": c.Chunking.MapReduce, "rag": c.Chunking.RAG} {
		if err := p.Validate(); err != nil {
			warnings = append(warnings, fmt.Sprintf("chunking.%s: %v", name, err))
		}
	}
	switch c.Vector.Backend {
	case "", "memory", "qdrant", "neo4j":
	default:
		warnings = append(warnings, fmt.Sprintf("vector.backend '%s' is unknown (want memory, qdrant or neo4j)", c.Vector.Backend))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing.sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}

	return warnings
}

// setDefaults registers every key, which also makes each one overridable
// from the environment.
func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", 2*time.Minute)
	v.SetDefault("llm.max_retries", 0)
	v.SetDefault("llm.retry_delay", time.Second)
	v.SetDefault("llm.rate_limit.requests_per_minute", 0)
	v.SetDefault("llm.rate_limit.tokens_per_minute", 0)
	v.SetDefault("llm.rate_limit.burst_size", 0)
	v.SetDefault("llm.embedding.provider", "")
	v.SetDefault("llm.embedding.model", "text-embedding-3-small")
	v.SetDefault("llm.embedding.api_key", "")
	v.SetDefault("llm.embedding.base_url", "")

	v.SetDefault("answer.strategy", "map-reduce")
	v.SetDefault("answer.parallelism", 5)
	v.SetDefault("answer.max_findings", 10)
	v.SetDefault("answer.max_output_tokens", 2000)
	v.SetDefault("answer.rag_top_k", 20)
	v.SetDefault("answer.chat_top_k", 8)

	v.SetDefault("chunking.map_reduce.max_tokens", chunker.MapReduceProfile.MaxTokens)
	v.SetDefault("chunking.map_reduce.overlap", chunker.MapReduceProfile.Overlap)
	v.SetDefault("chunking.rag.max_tokens", chunker.RAGProfile.MaxTokens)
	v.SetDefault("chunking.rag.overlap", chunker.RAGProfile.Overlap)
	v.SetDefault("chunking.estimator", "heuristic")
	v.SetDefault("chunking.encoding", "cl100k_base")

	v.SetDefault("vector.backend", "memory")
	v.SetDefault("vector.host", "localhost")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection_prefix", "sift")
	v.SetDefault("vector.neo4j.uri", "neo4j://localhost:7687")
	v.SetDefault("vector.neo4j.username", "neo4j")
	v.SetDefault("vector.neo4j.password", "")
	v.SetDefault("vector.neo4j.database", "")

	v.SetDefault("source.chats_url", "http://localhost:8080")
	v.SetDefault("source.timeout", 30*time.Second)

	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "sift")

	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.environment", "development")

	v.SetDefault("server.health_addr", ":8081")

	v.SetDefault("secrets.backend", "")
	v.SetDefault("secrets.env_prefix", "SIFT_SECRET_")
	v.SetDefault("secrets.file", "")
	v.SetDefault("secrets.vault.address", "")
	v.SetDefault("secrets.vault.token", "")
	v.SetDefault("secrets.vault.mount", "secret")
	v.SetDefault("secrets.vault.path", "sift")
	v.SetDefault("secrets.vault.timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration from path and the environment. An empty path
// looks for sift.yaml in ./configs and the working directory, and falls back
// to defaults when neither exists.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else {
		v.SetConfigName("sift")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.resolveSecrets(context.Background()); err != nil {
		return nil, err
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
