package kit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter allows at most limit requests per key within a sliding window.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	key    func(*http.Request) string
	hits   map[string][]time.Time
	now    func() time.Time
}

func NewRateLimiter(limit int, window time.Duration, key func(*http.Request) string) *RateLimiter {
	if key == nil {
		key = ClientIP
	}
	return &RateLimiter{
		limit:  limit,
		window: window,
		key:    key,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// NewIPRateLimiter keys requests by client address.
func NewIPRateLimiter(limit int, window time.Duration) *RateLimiter {
	return NewRateLimiter(limit, window, ClientIP)
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		now := l.now()
		if l.recordAndCheck(l.key(r), now, now.Add(-l.window)) {
			w.Header().Set("Retry-After", retryAfter(l.window))
			WriteError(w, r, http.StatusTooManyRequests, "too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) recordAndCheck(key string, now, cutoff time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := prune(l.hits[key], cutoff)

	if len(ts) >= l.limit {
		l.hits[key] = ts
		return true
	}

	l.hits[key] = append(ts, now)
	return false
}

func prune(ts []time.Time, cutoff time.Time) []time.Time {
	n := 0
	for _, t := range ts {
		if t.After(cutoff) {
			ts[n] = t
			n++
		}
	}
	return ts[:n]
}

func retryAfter(d time.Duration) string {
	s := int(d.Seconds())
	if s < 1 {
		s = 1
	}
	return strconv.Itoa(s)
}

func ClientIP(r *http.Request) string {
	if ip := firstForwardedFor(r.Header.Get("X-Forwarded-For")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}

	return r.RemoteAddr
}

func firstForwardedFor(xff string) string {
	if xff == "" {
		return ""
	}

	p := strings.Split(xff, ",")
	if len(p) == 0 {
		return ""
	}

	return strings.TrimSpace(p[0])
}
