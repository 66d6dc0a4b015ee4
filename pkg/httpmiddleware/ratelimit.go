package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per Window. Zero disables
	// limiting.
	Max    int
	Window time.Duration
	// KeyFunc buckets requests. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
	// Skip exempts requests from limiting, e.g. health probes.
	Skip func(*http.Request) bool
}

// counter tracks the previous and current fixed windows of one key. The
// sliding estimate weights the previous window by its remaining overlap.
type counter struct {
	prev      float64
	curr      float64
	currStart time.Time
}

type limiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
}

func newLimiter(max int, window time.Duration) *limiter {
	return &limiter{
		max:      max,
		window:   window,
		now:      time.Now,
		counters: make(map[string]*counter),
	}
}

// take consumes one request for key if the limit allows it.
func (l *limiter) take(key string) (remaining int, reset time.Time, ok bool) {
	now := l.now()
	start := now.Truncate(l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	c, found := l.counters[key]
	switch {
	case !found:
		c = &counter{currStart: start}
		l.counters[key] = c
	case start.Sub(c.currStart) >= 2*l.window:
		c.prev, c.curr, c.currStart = 0, 0, start
	case start.After(c.currStart):
		c.prev, c.curr, c.currStart = c.curr, 0, start
	}

	overlap := 1 - float64(now.Sub(c.currStart))/float64(l.window)
	estimate := c.prev*overlap + c.curr
	reset = c.currStart.Add(l.window)
	if estimate >= float64(l.max) {
		return 0, reset, false
	}

	c.curr++
	return max(0, int(float64(l.max)-estimate-1)), reset, true
}

// evict drops counters idle for two windows.
func (l *limiter) evict() {
	cutoff := l.now().Add(-2 * l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.counters {
		if c.currStart.Before(cutoff) {
			delete(l.counters, key)
		}
	}
}

func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}

// RateLimit limits requests per key with a sliding window and answers 429
// once a key is exhausted. Responses carry X-RateLimit-* headers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return rateLimit(cfg, newLimiter(cfg.Max, cfg.Window))
}

// RateLimitWithCleanup is RateLimit plus a goroutine that evicts idle keys
// until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg.Max, cfg.Window)
	if cfg.Max > 0 && cfg.Window > 0 {
		go func() {
			ticker := time.NewTicker(2 * cfg.Window)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					l.evict()
				}
			}
		}()
	}
	return rateLimit(cfg, l)
}

func rateLimit(cfg RateLimitConfig, l *limiter) Middleware {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	limit := strconv.Itoa(cfg.Max)

	return func(next http.Handler) http.Handler {
		if cfg.Max <= 0 || cfg.Window <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			remaining, reset, ok := l.take(keyFunc(r))
			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !ok {
				wait := max(0, reset.Sub(l.now()).Seconds())
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
