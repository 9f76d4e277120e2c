package server

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sirosfoundation/linesearch/pkg/config"
)

// RateLimiter applies a token bucket per remote IP
type RateLimiter struct {
	config config.RateLimitConfig

	mu      sync.Mutex
	clients map[string]*clientLimiter

	cleanupInterval time.Duration
	idleTimeout     time.Duration
	lastCleanup     time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter. Zero rate values are replaced by defaults.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	cfg.SetDefaults()
	return &RateLimiter{
		config:          cfg,
		clients:         make(map[string]*clientLimiter),
		cleanupInterval: 10 * time.Minute,
		idleTimeout:     30 * time.Minute,
		lastCleanup:     time.Now(),
	}
}

// Allow reports whether a connection from addr may be served now
func (r *RateLimiter) Allow(addr net.Addr) bool {
	if r == nil || !r.config.Enabled {
		return true
	}
	return r.getLimiter(clientIP(addr)).Allow()
}

func (r *RateLimiter) getLimiter(ip string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastCleanup) > r.cleanupInterval {
		r.cleanup(now)
	}

	if c, ok := r.clients[ip]; ok {
		c.lastSeen = now
		return c.limiter
	}

	c := &clientLimiter{
		limiter:  rate.NewLimiter(rate.Limit(float64(r.config.RequestsPerMinute)/60.0), r.config.BurstSize),
		lastSeen: now,
	}
	r.clients[ip] = c
	return c.limiter
}

// cleanup removes limiters idle for longer than idleTimeout
func (r *RateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-r.idleTimeout)
	for ip, c := range r.clients {
		if c.lastSeen.Before(cutoff) {
			delete(r.clients, ip)
		}
	}
	r.lastCleanup = now
}

// tracked returns the number of remote IPs with live limiters
func (r *RateLimiter) tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func clientIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
