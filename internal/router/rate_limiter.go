package router

import (
	"sync"
	"time"
)

const (
	rateLimit  = 100
	rateWindow = time.Minute
)

// RateLimiter enforces a per-user event budget over a fixed window.
// Disconnecting and reconnecting does not reset the window.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*userWindow
}

type userWindow struct {
	start time.Time
	count int
}

// NewRateLimiter creates a rate limiter with the default budget.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{windows: make(map[string]*userWindow)}
}

// Allow reports whether the user may send another event right now.
func (rl *RateLimiter) Allow(userID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.windows[userID]
	if !ok || now.Sub(w.start) >= rateWindow {
		rl.windows[userID] = &userWindow{start: now, count: 1}
		return true
	}
	if w.count >= rateLimit {
		return false
	}
	w.count++
	return true
}
