package security

import (
	"sync"
	"time"

	"github.com/raaihank/vibeguard/internal/config"
	"golang.org/x/time/rate"
)

// RateLimiter applies a token bucket per client IP
type RateLimiter struct {
	config  config.RateLimitConfig
	clients map[string]*clientLimiter
	mu      sync.Mutex
	now     func() time.Time
}

// clientLimiter is one client's bucket and when it was last used
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config:  cfg,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

// Allow checks if a request from the given client IP is allowed
func (r *RateLimiter) Allow(clientIP string) bool {
	if !r.config.Enabled {
		return true
	}

	now := r.now()
	return r.getLimiter(clientIP, now).AllowN(now, 1)
}

// getLimiter gets or creates the bucket for a client IP
func (r *RateLimiter) getLimiter(clientIP string, now time.Time) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[clientIP]; ok {
		c.lastSeen = now
		return c.limiter
	}

	burst := r.config.Burst
	if burst <= 0 {
		burst = 1
	}
	perSecond := rate.Limit(float64(r.config.RequestsPerMinute) / 60.0)

	c := &clientLimiter{
		limiter:  rate.NewLimiter(perSecond, burst),
		lastSeen: now,
	}
	r.clients[clientIP] = c
	return c.limiter
}

// Clients returns the number of tracked clients
func (r *RateLimiter) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// CleanupIdle removes buckets unused for longer than idle
func (r *RateLimiter) CleanupIdle(idle time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idle)
	for ip, c := range r.clients {
		if c.lastSeen.Before(cutoff) {
			delete(r.clients, ip)
		}
	}
}

// StartCleanupRoutine sweeps idle buckets until done is closed
func (r *RateLimiter) StartCleanupRoutine(done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.CleanupIdle(time.Hour)
			case <-done:
				return
			}
		}
	}()
}
