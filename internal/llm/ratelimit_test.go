package llm

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingProvider struct {
	calls      int64
	tokenUsage int
}

func (c *countingProvider) Name() string { return "counting" }

func (c *countingProvider) Complete(context.Context, *Prompt, *RequestOptions) (*Response, error) {
	atomic.AddInt64(&c.calls, 1)
	return &Response{Content: "ok", InputTokens: c.tokenUsage / 2, OutputTokens: c.tokenUsage / 2}, nil
}

func (c *countingProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt64(&c.calls, 1)
	return make([][]float32, len(texts)), nil
}

func TestRateLimitProvider_BurstPassesImmediately(t *testing.T) {
	inner := &countingProvider{tokenUsage: 10}
	rl := NewRateLimitProvider(inner, &RateLimitConfig{RequestsPerMinute: 60, BurstSize: 3})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := rl.Complete(context.Background(), &Prompt{}, nil); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("burst calls should not wait, took %v", elapsed)
	}

	stats := rl.Stats()
	if stats.Calls != 3 || stats.TokensUsed != 30 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestRateLimitProvider_WaitHonoursContext(t *testing.T) {
	rl := NewRateLimitProvider(&countingProvider{}, &RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1})

	if _, err := rl.Complete(context.Background(), &Prompt{}, nil); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := rl.Complete(ctx, &Prompt{}, nil); err == nil {
		t.Fatal("expected the second call to give up waiting")
	}
}

func TestRateLimitProvider_Unlimited(t *testing.T) {
	inner := &countingProvider{}
	rl := NewRateLimitProvider(inner, &RateLimitConfig{})
	for i := 0; i < 50; i++ {
		if _, err := rl.Embed(context.Background(), []string{"x"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if inner.calls != 50 {
		t.Errorf("expected 50 calls, got %d", inner.calls)
	}
}

func TestRateLimitConfig_Enabled(t *testing.T) {
	var nilCfg *RateLimitConfig
	if nilCfg.Enabled() {
		t.Error("nil config must be disabled")
	}
	if (&RateLimitConfig{}).Enabled() {
		t.Error("zero config must be disabled")
	}
	if !DefaultRateLimitConfig().Enabled() {
		t.Error("default config must be enabled")
	}
}

func TestWithRateLimit_Nil(t *testing.T) {
	if WithRateLimit(nil, nil) != nil {
		t.Fatal("expected nil for nil provider")
	}
}
