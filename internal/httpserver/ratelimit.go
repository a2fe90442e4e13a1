package httpserver

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fdg312/meal-planner/internal/apperr"
	"github.com/fdg312/meal-planner/internal/config"
	"golang.org/x/time/rate"
)

const limiterSweepEvery = 1000

// clientLimiters keeps one token bucket per client address.
type clientLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
	seen     atomic.Int64
}

func newClientLimiters(rps, burst int) *clientLimiters {
	return &clientLimiters{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (c *clientLimiters) allow(client string) bool {
	c.mu.Lock()
	lim, ok := c.limiters[client]
	if !ok {
		lim = rate.NewLimiter(c.rps, c.burst)
		c.limiters[client] = lim
	}
	if c.seen.Add(1)%limiterSweepEvery == 0 {
		c.sweepLocked()
	}
	c.mu.Unlock()

	return lim.Allow()
}

// sweepLocked drops idle clients, i.e. buckets that refilled completely.
func (c *clientLimiters) sweepLocked() {
	for client, lim := range c.limiters {
		if lim.Tokens() >= float64(c.burst) {
			delete(c.limiters, client)
		}
	}
}

func (c *clientLimiters) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.limiters)
}

// RateLimitMiddleware enforces a per-client token bucket.
// RATE_LIMIT_RPS <= 0 disables it.
func RateLimitMiddleware(cfg *config.Config, next http.Handler) http.Handler {
	if cfg.RateLimitRPS <= 0 {
		return next
	}

	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = cfg.RateLimitRPS
	}
	limiters := newClientLimiters(cfg.RateLimitRPS, burst)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		if !limiters.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			apperr.WriteError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop, then RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
