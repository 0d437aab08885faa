// Package providers registers the built-in LLM provider constructors.
package providers

import (
	"github.com/efebarandurmaz/sift/internal/llm"
	"github.com/efebarandurmaz/sift/internal/llm/anthropic"
	"github.com/efebarandurmaz/sift/internal/llm/openai"
)

// Register adds anthropic, openai and every OpenAI-compatible preset to f.
// Both binaries call this so they resolve provider names identically.
func Register(f *llm.ProviderFactory) {
	f.Register("anthropic", func(c llm.ProviderConfig) (llm.Provider, error) {
		return anthropic.New(anthropic.Config{
			APIKey:  c.APIKey,
			Model:   c.Model,
			BaseURL: c.BaseURL,
			Timeout: c.Timeout,
		}), nil
	})
	f.Register("openai", openAICompatible(""))
	for _, name := range []string{"groq", "huggingface", "ollama", "together", "deepseek"} {
		f.Register(name, openAICompatible(llm.KnownProviders[name]))
	}
	f.Register("custom", openAICompatible(""))
}

// NewFactory returns a factory with every built-in provider registered.
func NewFactory() *llm.ProviderFactory {
	f := llm.NewFactory()
	Register(f)
	return f
}

func openAICompatible(defaultURL string) llm.ProviderConstructor {
	return func(c llm.ProviderConfig) (llm.Provider, error) {
		base := c.BaseURL
		if base == "" {
			base = defaultURL
		}
		return openai.New(openai.Config{
			APIKey:     c.APIKey,
			Model:      c.Model,
			BaseURL:    base,
			EmbedModel: c.EmbedModel,
			Timeout:    c.Timeout,
		}), nil
	}
}
