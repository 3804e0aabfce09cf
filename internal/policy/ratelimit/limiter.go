// Package ratelimit implements a per-host token bucket that budgets render
// requests. It never blocks: a request that finds the bucket empty is refused.
package ratelimit

import (
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/alsamah-store/storefront-edge/internal/metrics"
)

// Limiter manages per-host render budgets.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration. A DefaultRPS of zero or less
// disables the budget.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Allow reports whether a render for rawURL fits the host's budget, taking a
// token when it does.
func (l *Limiter) Allow(rawURL string) bool {
	if l == nil || l.defaultRate == rate.Inf {
		return true
	}
	host := hostKey(rawURL)
	l.mu.Lock()
	limiter, exists := l.limiters[host]
	if !exists {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	if limiter.Allow() {
		return true
	}
	metrics.ObserveBudgetRejection(host)
	return false
}

func hostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
