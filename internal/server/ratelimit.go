package server

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const defaultMaxClients = 10000

// RateLimitConfig sizes the per client bucket. MaxClients bounds how many
// client buckets are kept; the least recently seen client is dropped first.
type RateLimitConfig struct {
	Requests   int
	Window     time.Duration
	MaxClients int
}

// clientLimiter keeps one token bucket per client IP. A bucket holds
// Requests tokens and refills over Window.
type clientLimiter struct {
	mu sync.Mutex
	m  *lru.Cache[string, *rate.Limiter]
	r  rate.Limit
	b  int
}

func newClientLimiter(cfg RateLimitConfig) (*clientLimiter, error) {
	if cfg.Requests == 0 && cfg.Window == 0 {
		return nil, nil
	}
	if cfg.Requests <= 0 || cfg.Window <= 0 {
		return nil, fmt.Errorf("rate limit needs positive requests and window")
	}
	size := cfg.MaxClients
	if size <= 0 {
		size = defaultMaxClients
	}
	cache, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, fmt.Errorf("rate limit cache: %w", err)
	}
	return &clientLimiter{
		m: cache,
		r: rate.Every(cfg.Window / time.Duration(cfg.Requests)),
		b: cfg.Requests,
	}, nil
}

func (cl *clientLimiter) limiterFor(key string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if lim, ok := cl.m.Get(key); ok {
		return lim
	}
	lim := rate.NewLimiter(cl.r, cl.b)
	cl.m.Add(key, lim)
	return lim
}

// middleware is a no-op on a nil limiter.
func (cl *clientLimiter) middleware(next http.Handler) http.Handler {
	if cl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lim := cl.limiterFor(clientIP(r))
		res := lim.Reserve()
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			respondStatusError(w, newAPIError(http.StatusTooManyRequests, "rate_limited", "too many requests", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP reads RemoteAddr. Forwarded headers only reach it when the
// server runs with TrustProxy, where chi's RealIP rewrites RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
