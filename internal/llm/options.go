package llm

// RequestOptions tunes a single completion call. Nil fields fall back to the
// provider's defaults.
type RequestOptions struct {
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	StopSeqs    []string `json:"stop,omitempty"`
}

// Deterministic returns options with temperature pinned to zero and a bounded
// output length.
func Deterministic(maxTokens int) *RequestOptions {
	temp := 0.0
	return &RequestOptions{
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	}
}
