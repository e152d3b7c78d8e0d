package ratelimiter

import (
	"time"

	"CaseForAI/backend/go/pkg/util"

	"golang.org/x/time/rate"
)

// RateLimiter is the interface for rate limiting.
// Allow returns true if a request identified by key may proceed.
type RateLimiter interface {
	Allow(key string) bool
}

// Keyed keeps one token bucket per key (client IP, user id ...).
// Buckets live in a bounded LRU so idle keys are dropped instead of growing without limit.
type Keyed struct {
	limit    rate.Limit
	burst    int
	limiters *util.LRUCache[string, *rate.Limiter]
}

// NewKeyed creates a keyed limiter allowing perSecond requests with the given burst per key.
// maxKeys bounds the number of tracked keys.
func NewKeyed(perSecond float64, burst, maxKeys int) *Keyed {
	if burst <= 0 {
		burst = 1
	}
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	cache, _ := util.NewLRU[string, *rate.Limiter](util.CacheConfig{Capacity: maxKeys, TTL: time.Hour})
	return &Keyed{limit: rate.Limit(perSecond), burst: burst, limiters: cache}
}

// PerMinute is a convenience constructor for limits expressed per minute.
func PerMinute(n, burst, maxKeys int) *Keyed {
	return NewKeyed(float64(n)/60.0, burst, maxKeys)
}

// Allow reports whether a request for key may proceed now.
func (k *Keyed) Allow(key string) bool {
	return k.limiter(key).Allow()
}

// RetryAfter returns how long the caller should wait before the next token for key.
func (k *Keyed) RetryAfter(key string) time.Duration {
	r := k.limiter(key).Reserve()
	d := r.Delay()
	r.Cancel()
	return d
}

func (k *Keyed) limiter(key string) *rate.Limiter {
	return k.limiters.GetOrCreate(key, func() *rate.Limiter {
		return rate.NewLimiter(k.limit, k.burst)
	})
}

var _ RateLimiter = (*Keyed)(nil)
