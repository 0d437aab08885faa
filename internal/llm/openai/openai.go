// Package openai implements llm.Provider for OpenAI and every API that speaks
// the OpenAI chat-completions protocol (Groq, Ollama, vLLM, Together, ...).
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/efebarandurmaz/sift/internal/llm"
)

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultEmbedModel = "text-embedding-3-small"
	defaultMaxTokens  = 4096
	defaultTimeout    = 5 * time.Minute
)

// Config configures a Client.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	EmbedModel string
	Timeout    time.Duration
}

// Client implements llm.Provider on top of the official SDK.
type Client struct {
	sdk        openai.Client
	model      string
	embedModel string
	baseURL    string
}

// New creates an OpenAI-compatible provider. SDK-level retries are disabled;
// retrying is decided by llm.RetryProvider.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	embedModel := cfg.EmbedModel
	if embedModel == "" {
		embedModel = defaultEmbedModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		sdk: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(baseURL),
			option.WithHTTPClient(&http.Client{Timeout: timeout}),
			option.WithMaxRetries(0),
		),
		model:      cfg.Model,
		embedModel: embedModel,
		baseURL:    baseURL,
	}
}

func (c *Client) Name() string { return "openai" }

// Complete sends one chat completion. Stop sequences are not forwarded.
func (c *Client) Complete(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(prompt.Messages)+1)
	if prompt.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(prompt.SystemPrompt))
	}
	for _, m := range prompt.Messages {
		switch m.Role {
		case llm.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case llm.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(c.model),
		Messages:  msgs,
		MaxTokens: openai.Int(defaultMaxTokens),
	}
	if opts != nil {
		if opts.MaxTokens != nil {
			params.MaxTokens = openai.Int(int64(*opts.MaxTokens))
		}
		if opts.Temperature != nil {
			params.Temperature = openai.Float(*opts.Temperature)
		}
		if opts.TopP != nil {
			params.TopP = openai.Float(*opts.TopP)
		}
	}

	completion, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai: no choices: %w", llm.ErrEmptyCompletion)
	}

	choice := completion.Choices[0]
	return &llm.Response{
		Content:      choice.Message.Content,
		Model:        completion.Model,
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
		StopReason:   string(choice.FinishReason),
	}, nil
}

// Embed returns one vector per text, ordered like texts regardless of the
// order the API lists them in.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.sdk.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(c.embedModel),
	})
	if err != nil {
		return nil, wrapError(err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(out) {
			return nil, fmt.Errorf("openai embed: index %d out of range for %d inputs", idx, len(texts))
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[idx] = vec
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("openai embed: missing embedding for input %d", i)
		}
	}
	return out, nil
}

func wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &llm.StatusError{
			Provider:   "openai",
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	return fmt.Errorf("openai: %w", err)
}
