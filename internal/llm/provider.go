package llm

import "context"

// Completer answers a single prompt. It is the only capability the answer
// engines need from a model.
type Completer interface {
	Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error)
}

// Embedder turns texts into embedding vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Provider is the interface all LLM backends implement.
type Provider interface {
	Completer
	Embedder
	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string
}
