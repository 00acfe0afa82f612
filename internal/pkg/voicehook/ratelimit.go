package voicehook

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/velora-app/velora/internal/pkg/cache"
	"github.com/velora-app/velora/internal/pkg/env"
)

// Best-effort per-source-IP limiter in front of signature verification. The
// counters live in Redis (INCR with a TTL) so the cap holds across process
// instances; a Redis outage fails open because rate limiting must never take
// down legitimate webhook delivery.

const rateWindow = time.Minute

const defaultRateCap = 120

// Counter abstracts the shared counter store so the limiter is testable
// without Redis.
type Counter interface {
	Incr(key string) (int64, error)
	Expire(key string, ttl time.Duration) error
}

type cacheCounter struct{}

func (cacheCounter) Incr(key string) (int64, error) { return cache.Incr(key) }
func (cacheCounter) Expire(key string, ttl time.Duration) error {
	return cache.Expire(key, ttl)
}

// RateLimiter caps webhook deliveries per source IP over a fixed one-minute
// window.
type RateLimiter struct {
	counter Counter
	cap     int64
	now     func() time.Time
}

// NewRateLimiter builds a limiter on the shared cache, with the cap taken
// from VOICE_WEBHOOK_RATE_LIMIT.
func NewRateLimiter() *RateLimiter {
	capacity := int64(defaultRateCap)
	if raw := env.GetEnv("VOICE_WEBHOOK_RATE_LIMIT", ""); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
			capacity = v
		}
	}
	return &RateLimiter{counter: cacheCounter{}, cap: capacity, now: time.Now}
}

// NewRateLimiterWithCounter builds a limiter on an injected counter store.
func NewRateLimiterWithCounter(counter Counter, capacity int64) *RateLimiter {
	return &RateLimiter{counter: counter, cap: capacity, now: time.Now}
}

// Allow reports whether a delivery from the source IP fits the current
// window.
func (rl *RateLimiter) Allow(sourceIP string) bool {
	window := rl.now().Unix() / int64(rateWindow.Seconds())
	key := fmt.Sprintf("voicehook:rl:%s:%d", sourceIP, window)

	n, err := rl.counter.Incr(key)
	if err != nil {
		log.Errorf("[VoiceHook] Rate limit counter unavailable, failing open: %v", err)
		return true
	}
	if n == 1 {
		// First hit in the window owns the TTL. Two windows so clock skew
		// between instances cannot orphan a counter.
		if err := rl.counter.Expire(key, 2*rateWindow); err != nil {
			log.Errorf("[VoiceHook] Could not set rate limit TTL: %v", err)
		}
	}
	return n <= rl.cap
}
