package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyCompletion is returned when a model answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// Response wraps an LLM completion result.
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	StopReason   string `json:"stop_reason,omitempty"`
}

// Text returns the completion with reasoning blocks removed and surrounding
// whitespace trimmed. A blank completion is an error, never a valid answer.
func (r *Response) Text() (string, error) {
	if r == nil {
		return "", ErrEmptyCompletion
	}
	text := StripThinkingTags(r.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// StripThinkingTags removes <think>...</think> blocks that some reasoning
// models (qwen3, deepseek-r1) prepend to their answer. An unterminated block
// drops everything after its opening tag.
func StripThinkingTags(s string) string {
	const open, closing = "<think>", "</think>"
	for {
		start := strings.Index(s, open)
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], closing)
		if end == -1 {
			s = s[:start]
			break
		}
		s = s[:start] + s[start+end+len(closing):]
	}
	return strings.TrimSpace(s)
}

// StatusError is an HTTP-level failure reported by a provider API.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error { return e.Err }
