// Package ratelimit throttles in-progress score updates per user with a
// token bucket per key.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter gives each key its own limiter. Idle keys are dropped by
// Sweep so the map does not grow with every user ever seen.
type KeyedRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
}

// New returns nil when rps is not positive; a nil limiter allows everything.
func New(rps float64, burst int) *KeyedRateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &KeyedRateLimiter{
		limiters: make(map[string]*entry),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

func (krl *KeyedRateLimiter) Allow(key string) bool {
	if krl == nil {
		return true
	}
	return krl.AllowAt(key, time.Now())
}

func (krl *KeyedRateLimiter) AllowAt(key string, now time.Time) bool {
	if krl == nil {
		return true
	}

	krl.mu.Lock()
	e, ok := krl.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(krl.limit, krl.burst)}
		krl.limiters[key] = e
	}
	e.lastSeen = now
	krl.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// Sweep drops limiters not used since before cutoff and returns how many.
func (krl *KeyedRateLimiter) Sweep(cutoff time.Time) int {
	if krl == nil {
		return 0
	}

	krl.mu.Lock()
	defer krl.mu.Unlock()

	removed := 0
	for key, e := range krl.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(krl.limiters, key)
			removed++
		}
	}
	return removed
}

func (krl *KeyedRateLimiter) Len() int {
	if krl == nil {
		return 0
	}
	krl.mu.Lock()
	defer krl.mu.Unlock()
	return len(krl.limiters)
}
