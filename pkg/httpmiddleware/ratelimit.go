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
	// Max requests per Window. A non-positive Max disables limiting.
	Max    int
	Window time.Duration
	// KeyFunc identifies the client. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
}

// window counts requests of one client in the current and previous fixed
// windows. The sliding count weights the previous window by its overlap.
type window struct {
	prev      float64
	curr      float64
	currStart time.Time
}

type limiter struct {
	max    int
	size   time.Duration
	mu     sync.Mutex
	window map[string]*window
}

func newLimiter(cfg RateLimitConfig) *limiter {
	return &limiter{
		max:    cfg.Max,
		size:   cfg.Window,
		window: make(map[string]*window),
	}
}

// take records a request for key if the limit allows it.
func (l *limiter) take(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(l.size)
	w, found := l.window[key]
	switch {
	case !found:
		w = &window{currStart: start}
		l.window[key] = w
	case start.Sub(w.currStart) >= 2*l.size:
		*w = window{currStart: start}
	case start.Sub(w.currStart) >= l.size:
		*w = window{prev: w.curr, currStart: start}
	}

	overlap := 1 - float64(now.Sub(w.currStart))/float64(l.size)
	count := w.prev*math.Max(overlap, 0) + w.curr
	reset = w.currStart.Add(l.size)
	if count >= float64(l.max) {
		return 0, reset, false
	}
	w.curr++
	return max(int(float64(l.max)-count-1), 0), reset, true
}

// sweep drops clients idle for two windows.
func (l *limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.window {
		if now.Sub(w.currStart) >= 2*l.size {
			delete(l.window, key)
		}
	}
}

func (l *limiter) sweepEvery(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.sweep(now)
		}
	}
}

// RateLimit enforces a per-client sliding window limit and answers 429 when it
// is exceeded. Idle clients are forgotten in the background until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	if cfg.Max <= 0 || cfg.Window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	l := newLimiter(cfg)
	go l.sweepEvery(ctx, 2*cfg.Window)

	limit := strconv.Itoa(cfg.Max)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			remaining, reset, ok := l.take(keyFunc(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				retry := max(reset.Sub(now), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP identifies the client by the first X-Forwarded-For hop, then
// X-Real-IP, then the connection address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
