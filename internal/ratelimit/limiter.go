// Package ratelimit counts requests per client key over a window.
package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of one Allow call
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a request for key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}
