package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

// scriptedProvider fails with the queued errors, then returns the queued responses.
type scriptedProvider struct {
	errs       []error
	responses  []*Response
	calls      int
	embedCalls int
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Complete(ctx context.Context, _ *Prompt, _ *RequestOptions) (*Response, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	if len(s.responses) > 0 {
		r := s.responses[0]
		s.responses = s.responses[1:]
		return r, nil
	}
	return nil, fmt.Errorf("scripted: no more responses")
}

func (s *scriptedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.embedCalls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return [][]float32{{1, 0}}, nil
}

func fastRetry(inner Provider, maxRetries int) *RetryProvider {
	r := NewRetryProvider(inner, &RetryConfig{
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
		MaxDelay:   4 * time.Millisecond,
		Timeout:    time.Second,
	})
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r
}

func TestRetryProvider_RetriesRetryableErrors(t *testing.T) {
	inner := &scriptedProvider{
		errs: []error{
			&StatusError{Provider: "x", StatusCode: http.StatusServiceUnavailable},
			errors.New("502 Bad Gateway"),
		},
		responses: []*Response{{Content: "done"}},
	}

	resp, err := fastRetry(inner, 3).Complete(context.Background(), &Prompt{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "done" {
		t.Errorf("expected 'done', got %q", resp.Content)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRetryProvider_StopsOnNonRetryable(t *testing.T) {
	inner := &scriptedProvider{
		errs: []error{&StatusError{Provider: "x", StatusCode: http.StatusUnauthorized, Message: "bad key"}},
	}

	_, err := fastRetry(inner, 3).Complete(context.Background(), &Prompt{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected wrapped 401 StatusError, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call, got %d", inner.calls)
	}
}

func TestRetryProvider_GivesUp(t *testing.T) {
	inner := &scriptedProvider{
		errs: []error{
			errors.New("500 Internal Server Error"),
			errors.New("500 Internal Server Error"),
			errors.New("500 Internal Server Error"),
		},
	}

	_, err := fastRetry(inner, 2).Complete(context.Background(), &Prompt{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls (1 + 2 retries), got %d", inner.calls)
	}
}

func TestRetryProvider_Embed(t *testing.T) {
	inner := &scriptedProvider{errs: []error{context.DeadlineExceeded}}

	vecs, err := fastRetry(inner, 1).Embed(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 1 || inner.embedCalls != 2 {
		t.Errorf("expected success on second call, got %d vectors after %d calls", len(vecs), inner.embedCalls)
	}
}

func TestRetryProvider_CancelledContext(t *testing.T) {
	inner := &scriptedProvider{errs: []error{errors.New("503 Service Unavailable")}}
	r := NewRetryProvider(inner, &RetryConfig{MaxRetries: 3, RetryDelay: time.Hour, Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Complete(ctx, &Prompt{}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRetryProvider_Backoff(t *testing.T) {
	r := NewRetryProvider(&scriptedProvider{}, &RetryConfig{RetryDelay: time.Second, MaxDelay: 5 * time.Second})
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := r.backoff(i + 1); got != w {
			t.Errorf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"empty completion", fmt.Errorf("map: %w", ErrEmptyCompletion), false},
		{"status 429", &StatusError{StatusCode: 429}, true},
		{"status 429 daily quota", &StatusError{StatusCode: 429, Message: "Limit tokens per day reached"}, false},
		{"status 500", &StatusError{StatusCode: 500}, true},
		{"status 400", &StatusError{StatusCode: 400}, false},
		{"text 429", errors.New("429 Too Many Requests"), true},
		{"text TPD", errors.New("429: TPD exceeded"), false},
		{"text 503", errors.New("Service Unavailable"), true},
		{"text 404", errors.New("404 page"), false},
		{"unknown", errors.New("connection reset"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWrapWithRetry(t *testing.T) {
	if WrapWithRetry(nil, ProviderConfig{}) != nil {
		t.Fatal("expected nil for nil provider")
	}
	p := WrapWithRetry(&stubProvider{name: "s"}, ProviderConfig{MaxRetries: 5, Timeout: 10 * time.Second})
	r, ok := p.(*RetryProvider)
	if !ok {
		t.Fatalf("expected RetryProvider, got %T", p)
	}
	if r.config.MaxRetries != 5 || r.config.Timeout != 10*time.Second {
		t.Errorf("unexpected config %+v", r.config)
	}
	if r.config.RetryDelay != time.Second {
		t.Errorf("expected default retry delay, got %v", r.config.RetryDelay)
	}
}
