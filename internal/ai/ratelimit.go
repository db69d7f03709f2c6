package ai

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited spaces calls to next and bounds each call with a timeout.
type RateLimited struct {
	next    Categorizer
	limiter *rate.Limiter
	timeout time.Duration
}

// NewRateLimited allows one call per interval with the given burst. A zero interval disables
// limiting and a zero timeout leaves the caller's deadline alone.
func NewRateLimited(next Categorizer, interval time.Duration, burst int, timeout time.Duration) *RateLimited {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst), timeout: timeout}
}

func (r *RateLimited) Ready() bool {
	return r.next != nil && r.next.Ready()
}

func (r *RateLimited) Categorize(ctx context.Context, description, industry string) (*Guess, error) {
	if !r.Ready() {
		return nil, ErrNotReady
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("RateLimited.Categorize: waiting for rate limiter: %w", err)
	}
	return r.next.Categorize(ctx, description, industry)
}
