package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxIdleKeys triggers a sweep of idle buckets
const maxIdleKeys = 4096

// LocalLimiter keeps one token bucket per key in process memory.
// Used when Redis is not configured; limits are per replica.
type LocalLimiter struct {
	config Config
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter creates an in-memory limiter
func NewLocalLimiter(cfg Config) *LocalLimiter {
	return &LocalLimiter{
		config:  cfg.withDefaults(),
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow takes one token from key's bucket
func (l *LocalLimiter) Allow(_ context.Context, key string) (*Result, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= maxIdleKeys {
			l.sweep(now)
		}
		every := l.config.Window / time.Duration(l.config.Limit)
		b = &bucket{limiter: rate.NewLimiter(rate.Every(every), int(l.config.Limit))}
		l.buckets[key] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return &Result{
			Allowed:           false,
			CurrentCount:      l.config.Limit,
			Limit:             l.config.Limit,
			RetryAfterSeconds: int64(math.Ceil(delay.Seconds())),
		}, nil
	}

	used := l.config.Limit - int64(math.Floor(b.limiter.TokensAt(now)))
	return &Result{Allowed: true, CurrentCount: used, Limit: l.config.Limit}, nil
}

// sweep drops buckets idle for longer than a window; they would be full again anyway
func (l *LocalLimiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.config.Window {
			delete(l.buckets, key)
		}
	}
}
