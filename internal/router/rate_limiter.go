package router

import (
	"sync"
	"time"
)

// maxEventsPerWindow caps one identity's inbound events per window. A
// continuous stroke at the client's 50ms coalescing cadence is 1200
// draw-actions a minute, so the cap sits above that; only a client flooding
// past its own debounce gets refused.
const (
	maxEventsPerWindow = 1500
	windowLength       = time.Minute
)

// RateLimiter implements per-identity rate limiting over a sliding window.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimit
}

type clientLimit struct {
	eventCount  int
	windowStart time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientLimit),
	}
}

// Allow checks whether the identity may send another event.
func (rl *RateLimiter) Allow(email string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	limit, exists := rl.clients[email]
	if !exists {
		rl.clients[email] = &clientLimit{eventCount: 1, windowStart: now}
		return true
	}

	if now.Sub(limit.windowStart) >= windowLength {
		limit.eventCount = 1
		limit.windowStart = now
		return true
	}

	if limit.eventCount >= maxEventsPerWindow {
		return false
	}

	limit.eventCount++
	return true
}

// Cleanup removes entries idle for more than five windows. Called
// periodically by the hub loop.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for email, limit := range rl.clients {
		if now.Sub(limit.windowStart) > 5*time.Minute {
			delete(rl.clients, email)
		}
	}
}
