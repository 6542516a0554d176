package httpmiddleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
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
	// Max is the number of requests a key may make per Window.
	Max int
	// Window is the length of the sliding window.
	Window time.Duration
	// KeyFunc buckets requests; defaults to the client IP.
	KeyFunc func(*http.Request) string
}

// counter holds the request counts of a key for the aligned window it was
// last seen in and the one before it.
type counter struct {
	window int64
	curr   int
	prev   int
}

// shift moves c to window w, carrying the current count over only when w
// directly follows the stored window.
func (c *counter) shift(w int64) {
	switch w - c.window {
	case 0:
		return
	case 1:
		c.prev, c.curr = c.curr, 0
	default:
		c.prev, c.curr = 0, 0
	}
	c.window = w
}

type decision struct {
	allowed   bool
	remaining int
	reset     time.Time
}

type limiter struct {
	max    int
	window time.Duration
	key    func(*http.Request) string

	mu       sync.Mutex
	counters map[string]*counter
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	return &limiter{
		max:      cfg.Max,
		window:   cfg.Window,
		key:      cfg.KeyFunc,
		counters: make(map[string]*counter),
	}
}

// take records a request for key at now unless the estimated rate over the
// trailing window already reaches max. The estimate weights the previous
// window's count by the share of it still inside the trailing window.
func (l *limiter) take(key string, now time.Time) decision {
	w := now.UnixNano() / int64(l.window)
	start := time.Unix(0, w*int64(l.window))
	reset := start.Add(l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[key]
	if !ok {
		c = &counter{window: w}
		l.counters[key] = c
	}
	c.shift(w)

	weight := 1 - float64(now.Sub(start))/float64(l.window)
	estimate := float64(c.prev)*weight + float64(c.curr)
	if estimate >= float64(l.max) {
		return decision{reset: reset}
	}

	c.curr++
	remaining := int(float64(l.max) - estimate - 1)
	return decision{allowed: true, remaining: max(remaining, 0), reset: reset}
}

// evict drops keys idle for two full windows.
func (l *limiter) evict(now time.Time) {
	w := now.UnixNano() / int64(l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.counters {
		if w-c.window >= 2 {
			delete(l.counters, key)
		}
	}
}

func (l *limiter) runEviction(ctx context.Context) {
	ticker := time.NewTicker(2 * l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.evict(now)
		}
	}
}

// RateLimit returns a middleware enforcing a per-key sliding window limit.
// Every response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset; rejected requests get 429 with Retry-After and the
// standard error body. Idle keys are never evicted, see RateLimitWithCleanup.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit plus a goroutine, bound to ctx, that
// evicts idle keys.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go l.runEviction(ctx)
	return l.middleware
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	limit := strconv.Itoa(l.max)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		d := l.take(l.key(r), now)

		h := w.Header()
		h.Set("X-RateLimit-Limit", limit)
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.reset.Unix(), 10))

		if !d.allowed {
			wait := max(d.reset.Sub(now), 0)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			WriteError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// APIKeyOrIP keys requests by a digest of the api_key header when present,
// so callers sharing a NAT get separate budgets, and by client IP otherwise.
func APIKeyOrIP(r *http.Request) string {
	if key := r.Header.Get("api_key"); key != "" {
		sum := sha256.Sum256([]byte(key))
		return "key:" + hex.EncodeToString(sum[:8])
	}
	return "ip:" + clientIP(r)
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection's remote host.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
