package llm

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures rate limiting for LLM providers.
type RateLimitConfig struct {
	// RequestsPerMinute limits the number of API calls per minute (0 = unlimited)
	RequestsPerMinute int
	// TokensPerMinute limits total tokens per minute (0 = unlimited)
	TokensPerMinute int
	// BurstSize allows temporary burst above the rate limit
	BurstSize int
}

// DefaultRateLimitConfig returns sensible defaults for most providers.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 25,    // conservative for free-tier cloud APIs (Groq etc.)
		TokensPerMinute:   25000, // Groq free tier: 6K-30K TPM depending on model
		BurstSize:         3,
	}
}

// RateLimitProvider wraps a provider with request and token budgets.
// Requests are paced by a token bucket; token usage is tracked per
// one-minute window from the usage each response reports.
type RateLimitProvider struct {
	inner   Provider
	config  *RateLimitConfig
	limiter *rate.Limiter // nil when requests are unlimited

	mu               sync.Mutex
	windowStart      time.Time
	requestsInWindow int
	tokensInWindow   int
}

// NewRateLimitProvider creates a rate-limited provider wrapper.
func NewRateLimitProvider(inner Provider, config *RateLimitConfig) *RateLimitProvider {
	if config == nil {
		config = DefaultRateLimitConfig()
	}

	r := &RateLimitProvider{
		inner:       inner,
		config:      config,
		windowStart: time.Now(),
	}
	if config.RequestsPerMinute > 0 {
		burst := config.BurstSize
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), burst)
	}
	return r
}

// Name returns the underlying provider name.
func (r *RateLimitProvider) Name() string {
	return r.inner.Name()
}

// Unwrap returns the wrapped provider.
func (r *RateLimitProvider) Unwrap() Provider {
	return r.inner
}

// Complete rate-limits and delegates to the inner provider.
func (r *RateLimitProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	if err := r.waitForCapacity(ctx); err != nil {
		return nil, err
	}

	resp, err := r.inner.Complete(ctx, prompt, opts)
	if err == nil && resp != nil {
		r.trackTokenUsage(resp.InputTokens + resp.OutputTokens)
	}
	return resp, err
}

// Stream rate-limits opening the stream and charges the usage reported on
// the final chunk.
func (r *RateLimitProvider) Stream(ctx context.Context, prompt *Prompt, opts *RequestOptions) (<-chan StreamChunk, error) {
	if err := r.waitForCapacity(ctx); err != nil {
		return nil, err
	}

	in, err := r.inner.Stream(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		for chunk := range in {
			if chunk.Done {
				r.trackTokenUsage(chunk.InputTokens + chunk.OutputTokens)
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Embed rate-limits and delegates to the inner provider.
func (r *RateLimitProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.waitForCapacity(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

// waitForCapacity blocks until both the request bucket and the token budget
// allow another call.
func (r *RateLimitProvider) waitForCapacity(ctx context.Context) error {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}

	for {
		r.mu.Lock()
		r.resetWindow()
		if r.config.TokensPerMinute == 0 || r.tokensInWindow < r.config.TokensPerMinute {
			r.requestsInWindow++
			r.mu.Unlock()
			return nil
		}
		wait := time.Minute - time.Since(r.windowStart)
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// resetWindow starts a new accounting window once a minute has passed.
// Callers hold r.mu.
func (r *RateLimitProvider) resetWindow() {
	if time.Since(r.windowStart) >= time.Minute {
		r.windowStart = time.Now()
		r.requestsInWindow = 0
		r.tokensInWindow = 0
	}
}

// trackTokenUsage records token consumption.
func (r *RateLimitProvider) trackTokenUsage(tokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokensInWindow += tokens
}

// Stats returns current rate limiting statistics.
func (r *RateLimitProvider) Stats() RateLimitStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	remainingTokens := 0
	if r.config.TokensPerMinute > 0 {
		remainingTokens = r.config.TokensPerMinute - r.tokensInWindow
		if remainingTokens < 0 {
			remainingTokens = 0
		}
	}
	remainingRequests := 0
	if r.limiter != nil {
		remainingRequests = int(r.limiter.Tokens())
	}

	return RateLimitStats{
		RequestsInWindow:  r.requestsInWindow,
		TokensInWindow:    r.tokensInWindow,
		RemainingRequests: remainingRequests,
		RemainingTokens:   remainingTokens,
		WindowStart:       r.windowStart,
	}
}

// RateLimitStats contains rate limiting statistics.
type RateLimitStats struct {
	RequestsInWindow  int
	TokensInWindow    int
	RemainingRequests int
	RemainingTokens   int
	WindowStart       time.Time
}

// WithRateLimit wraps a provider with rate limiting.
func WithRateLimit(p Provider, config *RateLimitConfig) Provider {
	if p == nil {
		return nil
	}
	return NewRateLimitProvider(p, config)
}
