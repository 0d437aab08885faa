package llm

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures client-side throttling of an LLM provider.
type RateLimitConfig struct {
	// RequestsPerMinute limits API calls per minute (0 = unlimited).
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	// TokensPerMinute limits prompt+completion tokens per minute (0 = unlimited).
	TokensPerMinute int `mapstructure:"tokens_per_minute"`
	// BurstSize allows temporary bursts above the request rate.
	BurstSize int `mapstructure:"burst_size"`
}

// DefaultRateLimitConfig returns defaults suited to free-tier cloud APIs.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 25,
		TokensPerMinute:   25000,
		BurstSize:         3,
	}
}

// Enabled reports whether any limit is set.
func (c *RateLimitConfig) Enabled() bool {
	return c != nil && (c.RequestsPerMinute > 0 || c.TokensPerMinute > 0)
}

// RateLimitProvider throttles calls to the inner provider. The request limit
// is enforced before each call; token usage reported by the response is
// charged afterwards, delaying later calls once the minute budget is spent.
type RateLimitProvider struct {
	inner    Provider
	requests *rate.Limiter
	tokens   *rate.Limiter

	mu       sync.Mutex
	calls    int
	used     int
	lastCall time.Time
}

// NewRateLimitProvider creates a rate-limited provider wrapper.
func NewRateLimitProvider(inner Provider, config *RateLimitConfig) *RateLimitProvider {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	p := &RateLimitProvider{inner: inner}
	if config.RequestsPerMinute > 0 {
		burst := config.BurstSize
		if burst <= 0 {
			burst = 1
		}
		p.requests = rate.NewLimiter(rate.Limit(float64(config.RequestsPerMinute)/60), burst)
	}
	if config.TokensPerMinute > 0 {
		p.tokens = rate.NewLimiter(rate.Limit(float64(config.TokensPerMinute)/60), config.TokensPerMinute)
	}
	return p
}

// Name returns the underlying provider name.
func (r *RateLimitProvider) Name() string {
	return r.inner.Name()
}

// Complete waits for capacity and delegates to the inner provider.
func (r *RateLimitProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := r.inner.Complete(ctx, prompt, opts)
	if err == nil && resp != nil {
		r.charge(resp.InputTokens + resp.OutputTokens)
	}
	return resp, err
}

// Embed waits for capacity and delegates to the inner provider.
func (r *RateLimitProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

func (r *RateLimitProvider) wait(ctx context.Context) error {
	if r.requests != nil {
		if err := r.requests.Wait(ctx); err != nil {
			return err
		}
	}
	if r.tokens != nil {
		if err := r.tokens.Wait(ctx); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.calls++
	r.lastCall = time.Now()
	r.mu.Unlock()
	return nil
}

// charge debits used tokens. A reservation larger than the burst cannot be
// granted, so usage is clamped to one minute's budget.
func (r *RateLimitProvider) charge(used int) {
	r.mu.Lock()
	r.used += used
	r.mu.Unlock()

	if r.tokens == nil || used <= 1 {
		return
	}
	n := used - 1 // one token was taken by wait
	if b := r.tokens.Burst(); n > b {
		n = b
	}
	r.tokens.ReserveN(time.Now(), n)
}

// RateLimitStats summarizes traffic through a RateLimitProvider.
type RateLimitStats struct {
	Calls      int
	TokensUsed int
	LastCall   time.Time
}

// Stats returns counters accumulated since creation.
func (r *RateLimitProvider) Stats() RateLimitStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RateLimitStats{Calls: r.calls, TokensUsed: r.used, LastCall: r.lastCall}
}

// WithRateLimit wraps a provider with rate limiting.
func WithRateLimit(p Provider, config *RateLimitConfig) Provider {
	if p == nil {
		return nil
	}
	return NewRateLimitProvider(p, config)
}
