package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const idleVisitorTTL = 30 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter keeps one token bucket per key in process memory. A bucket
// holds max tokens and refills max tokens per window.
type LocalLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	max       int
	lastPrune time.Time
	now       func() time.Time
}

// NewLocalLimiter allows bursts of max requests refilled over window
func NewLocalLimiter(max int, window time.Duration) *LocalLimiter {
	return &LocalLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(max) / window.Seconds()),
		max:      max,
		now:      time.Now,
	}
}

func (l *LocalLimiter) getLimiter(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) > time.Minute {
		cutoff := now.Add(-idleVisitorTTL)
		for k, v := range l.visitors {
			if v.lastSeen.Before(cutoff) {
				delete(l.visitors, k)
			}
		}
		l.lastPrune = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.max)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.now()
	lim := l.getLimiter(key, now)

	r := Result{Limit: l.max}
	res := lim.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		r.RetryAfter = delay
		return r, nil
	}
	r.Allowed = true
	r.Remaining = int(math.Floor(lim.TokensAt(now)))
	return r, nil
}

// Len reports the number of tracked keys
func (l *LocalLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}
