package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/efebarandurmaz/sift/internal/chunker"
	"github.com/efebarandurmaz/sift/internal/llm"
)

// chdir changes the working directory for the duration of the test
// (stand-in for testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}

func hasWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func validConfig() *Config {
	return &Config{
		LLM:    LLMConfig{Provider: "openai", APIKey: "k"},
		Answer: AnswerConfig{Parallelism: 5, MaxFindings: 10, MaxOutputTokens: 2000},
		Chunking: ChunkingConfig{
			MapReduce: chunker.MapReduceProfile,
			RAG:       chunker.RAGProfile,
		},
		Vector:  VectorConfig{Backend: "memory"},
		Tracing: TracingConfig{SampleRate: 1},
	}
}

func TestValidate_Valid(t *testing.T) {
	if warnings := validConfig().Validate(); len(warnings) != 0 {
		t.Errorf("valid config should have no warnings, got %v", warnings)
	}
}

func TestValidate_Warnings(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
		want string
	}{
		{"missing api key", func(c *Config) { c.LLM.APIKey = "" }, "api_key"},
		{"anthropic without embeddings", func(c *Config) { c.LLM.Provider = "anthropic" }, "embedding"},
		{"high parallelism", func(c *Config) { c.Answer.Parallelism = 50 }, "parallelism"},
		{"findings cap", func(c *Config) { c.Answer.MaxFindings = 25 }, "max_findings"},
		{"negative output", func(c *Config) { c.Answer.MaxOutputTokens = -1 }, "max_output_tokens"},
		{"bad rag profile", func(c *Config) { c.Chunking.RAG = chunker.Profile{MaxTokens: 100, Overlap: 100} }, "chunking.rag"},
		{"bad backend", func(c *Config) { c.Vector.Backend = "redis" }, "vector.backend"},
		{"sample rate", func(c *Config) { c.Tracing.SampleRate = 2 }, "sample_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mod(cfg)
			if w := cfg.Validate(); !hasWarning(w, tt.want) {
				t.Errorf("expected warning containing %q, got %v", tt.want, w)
			}
		})
	}
}

func TestValidate_KeylessProviders(t *testing.T) {
	for _, p := range []string{"none", "ollama", "custom"} {
		cfg := validConfig()
		cfg.LLM = LLMConfig{Provider: p}
		if hasWarning(cfg.Validate(), "api_key") {
			t.Errorf("provider %q should not warn about api_key", p)
		}
	}
}

func TestProviderConfig(t *testing.T) {
	c := LLMConfig{
		Provider:   "groq",
		Model:      "llama",
		APIKey:     "key",
		Timeout:    time.Minute,
		MaxRetries: 2,
		Embedding:  EmbeddingConfig{Model: "embed-small"},
	}
	pc := c.ProviderConfig()
	if pc.Provider != "groq" || pc.EmbedModel != "embed-small" || pc.MaxRetries != 2 || pc.Timeout != time.Minute {
		t.Errorf("unexpected provider config %+v", pc)
	}
	if pc.RateLimit != nil {
		t.Error("disabled rate limit should stay nil")
	}

	c.RateLimit = llm.RateLimitConfig{RequestsPerMinute: 30}
	if c.ProviderConfig().RateLimit == nil {
		t.Error("enabled rate limit should be set")
	}
}

func TestEmbeddingProviderConfig(t *testing.T) {
	c := LLMConfig{
		Provider: "anthropic",
		Model:    "claude",
		APIKey:   "anthropic-key",
		BaseURL:  "https://api.anthropic.com/v1",
	}

	inherited := c.EmbeddingProviderConfig()
	if inherited.Provider != "anthropic" || inherited.APIKey != "anthropic-key" {
		t.Errorf("expected inherited settings, got %+v", inherited)
	}

	c.Embedding = EmbeddingConfig{Provider: "openai", Model: "text-embedding-3-small", APIKey: "openai-key"}
	pc := c.EmbeddingProviderConfig()
	if pc.Provider != "openai" || pc.APIKey != "openai-key" || pc.BaseURL != "" {
		t.Errorf("unexpected embedding config %+v", pc)
	}
	if pc.EmbedModel != "text-embedding-3-small" {
		t.Errorf("expected embed model, got %q", pc.EmbedModel)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sift.yaml")
	yaml := `
llm:
  provider: ollama
  model: qwen3
  timeout: 45s
answer:
  parallelism: 3
chunking:
  rag:
    max_tokens: 300
    overlap: 50
vector:
  backend: qdrant
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "ollama" || cfg.LLM.Model != "qwen3" || cfg.LLM.Timeout != 45*time.Second {
		t.Errorf("unexpected llm config %+v", cfg.LLM)
	}
	if cfg.Answer.Parallelism != 3 || cfg.Answer.MaxFindings != 10 {
		t.Errorf("unexpected answer config %+v", cfg.Answer)
	}
	if cfg.Chunking.RAG != (chunker.Profile{MaxTokens: 300, Overlap: 50}) {
		t.Errorf("unexpected rag profile %+v", cfg.Chunking.RAG)
	}
	if cfg.Chunking.MapReduce != chunker.MapReduceProfile {
		t.Errorf("expected default map-reduce profile, got %+v", cfg.Chunking.MapReduce)
	}
	if cfg.Vector.Backend != "qdrant" || cfg.Vector.Port != 6334 {
		t.Errorf("unexpected vector config %+v", cfg.Vector)
	}
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Answer.Parallelism != 5 || cfg.Answer.MaxFindings != 10 || cfg.Answer.RAGTopK != 20 || cfg.Answer.ChatTopK != 8 {
		t.Errorf("unexpected answer defaults %+v", cfg.Answer)
	}
	if cfg.Answer.MaxOutputTokens != 2000 || cfg.Answer.Strategy != "map-reduce" {
		t.Errorf("unexpected answer defaults %+v", cfg.Answer)
	}
	if cfg.Chunking.RAG != chunker.RAGProfile || cfg.Chunking.MapReduce != chunker.MapReduceProfile {
		t.Errorf("unexpected chunking defaults %+v", cfg.Chunking)
	}
	if cfg.Vector.Backend != "memory" || cfg.Temporal.TaskQueue != "sift" {
		t.Errorf("unexpected defaults %+v %+v", cfg.Vector, cfg.Temporal)
	}
}

func TestLoad_Env(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SIFT_LLM_API_KEY", "from-env")
	t.Setenv("SIFT_ANSWER_MAX_FINDINGS", "7")
	t.Setenv("SIFT_SOURCE_TIMEOUT", "5s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "from-env" || cfg.Answer.MaxFindings != 7 || cfg.Source.Timeout != 5*time.Second {
		t.Errorf("env overrides not applied: %+v %+v %+v", cfg.LLM.APIKey, cfg.Answer, cfg.Source)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoad_SecretsFile(t *testing.T) {
	dir := t.TempDir()
	secretsPath := filepath.Join(dir, "secrets.json")
	if err := os.WriteFile(secretsPath, []byte(`{"llm_api_key": "sk-llm", "embedding_api_key": "sk-embed"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "sift.yaml")
	yaml := `
llm:
  provider: groq
  embedding:
    provider: openai
secrets:
  backend: file
  file: ` + secretsPath + `
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "sk-llm" || cfg.LLM.Embedding.APIKey != "sk-embed" {
		t.Errorf("secrets not applied: %q %q", cfg.LLM.APIKey, cfg.LLM.Embedding.APIKey)
	}

	t.Setenv("SIFT_LLM_API_KEY", "from-env")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "from-env" {
		t.Errorf("explicit key must win over secrets backend, got %q", cfg.LLM.APIKey)
	}
}

func TestLoad_UnknownSecretsBackend(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SIFT_SECRETS_BACKEND", "keychain")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "secrets") {
		t.Fatalf("expected secrets error, got %v", err)
	}
}
