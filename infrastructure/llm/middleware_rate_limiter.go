package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// rateLimitedLLM paces outgoing requests with a token bucket.
type rateLimitedLLM struct {
	next    CoreLLM
	limiter *rate.Limiter
}

// RateLimitMiddleware creates middleware that allows limit requests per
// second with the given burst. A non-positive limit disables pacing.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	return func(next CoreLLM) CoreLLM {
		if limit <= 0 {
			return next
		}
		return &rateLimitedLLM{
			next:    next,
			limiter: rate.NewLimiter(limit, max(burst, 1)),
		}
	}
}

// DoRequest blocks until the limiter admits the request or ctx is done.
func (r *rateLimitedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", 0, 0, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.DoRequest(ctx, prompt, opts)
}

// GetModel returns the model name from the wrapped implementation.
func (r *rateLimitedLLM) GetModel() string { return r.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (r *rateLimitedLLM) SetModel(m string) { r.next.SetModel(m) }
