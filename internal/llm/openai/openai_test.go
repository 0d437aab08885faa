package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/efebarandurmaz/sift/internal/llm"
)

func chatCompletion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
			"logprobs":      nil,
		}},
		"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15},
	}
}

func TestNew_Defaults(t *testing.T) {
	c := New(Config{APIKey: "k", Model: "m"})
	if c.baseURL != defaultBaseURL+"/" {
		t.Errorf("expected default base URL, got %q", c.baseURL)
	}
	if c.embedModel != defaultEmbedModel {
		t.Errorf("expected default embed model, got %q", c.embedModel)
	}
	if c.Name() != "openai" {
		t.Errorf("expected name openai, got %q", c.Name())
	}
}

func TestComplete_RequestAndResponse(t *testing.T) {
	var (
		captured map[string]any
		path     string
		auth     string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &captured)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletion("Paragraph B discusses topic B."))
	}))
	defer server.Close()

	c := New(Config{APIKey: "secret", Model: "test-model", BaseURL: server.URL})
	resp, err := c.Complete(context.Background(), llm.NewPrompt("restrict yourself", "question"), llm.Deterministic(2000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasSuffix(path, "/chat/completions") {
		t.Errorf("unexpected path %q", path)
	}
	if auth != "Bearer secret" {
		t.Errorf("unexpected Authorization header %q", auth)
	}
	if captured["model"] != "test-model" {
		t.Errorf("expected model test-model, got %v", captured["model"])
	}
	if captured["temperature"] != float64(0) {
		t.Errorf("expected temperature 0, got %v", captured["temperature"])
	}
	if captured["max_tokens"] != float64(2000) {
		t.Errorf("expected max_tokens 2000, got %v", captured["max_tokens"])
	}
	msgs, _ := captured["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system and user messages, got %v", captured["messages"])
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Errorf("expected system message first, got %v", msgs[0])
	}

	if resp.Content != "Paragraph B discusses topic B." {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 3 {
		t.Errorf("unexpected usage %d/%d", resp.InputTokens, resp.OutputTokens)
	}
	if resp.StopReason != "stop" {
		t.Errorf("unexpected stop reason %q", resp.StopReason)
	}
}

func TestComplete_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	c := New(Config{APIKey: "bad", Model: "m", BaseURL: server.URL})
	_, err := c.Complete(context.Background(), llm.NewPrompt("", "hi"), nil)

	var se *llm.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", se.StatusCode)
	}
	if llm.IsRetryable(err) {
		t.Error("401 must not be retryable")
	}
}

func TestComplete_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := chatCompletion("")
		resp["choices"] = []any{}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := New(Config{Model: "m", BaseURL: server.URL})
	_, err := c.Complete(context.Background(), llm.NewPrompt("", "hi"), nil)
	if !errors.Is(err, llm.ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestEmbed_OrdersByIndex(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &captured)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data": []map[string]any{
				{"object": "embedding", "index": 1, "embedding": []float64{0, 1}},
				{"object": "embedding", "index": 0, "embedding": []float64{1, 0}},
			},
			"usage": map[string]int{"prompt_tokens": 2, "total_tokens": 2},
		})
	}))
	defer server.Close()

	c := New(Config{Model: "m", BaseURL: server.URL})
	vecs, err := c.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured["model"] != defaultEmbedModel {
		t.Errorf("expected embed model %q, got %v", defaultEmbedModel, captured["model"])
	}
	if len(vecs) != 2 || vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("vectors not ordered by input index: %v", vecs)
	}
}

func TestEmbed_Empty(t *testing.T) {
	c := New(Config{Model: "m", BaseURL: "http://127.0.0.1:1"})
	vecs, err := c.Embed(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("expected no call for empty input, got %v, %v", vecs, err)
	}
}
