// Package ratelimit bounds how often one client may ask for a new map.
// The HTTP generate endpoint and websocket GENERATE share a Limiter, keyed
// by client address.
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Limiter admits at most limit requests per key in any sliding window.
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	hits      map[string][]time.Time // oldest first, all inside the window
	lastSweep time.Time
}

// New returns a Limiter. A limit of zero or less denies every request.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
}

// Allow records a request for key and reports whether it is admitted.
// Denied requests are not recorded.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)
	if l.limit <= 0 {
		return false
	}
	recent := l.expire(key, now)
	if len(recent) >= l.limit {
		return false
	}
	l.hits[key] = append(recent, now)
	return true
}

// RetryAfter returns how long key must wait before Allow can succeed.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.expire(key, now)
	if len(recent) < l.limit || len(recent) == 0 {
		return 0
	}
	return recent[len(recent)-l.limit].Add(l.window).Sub(now)
}

// expire drops hits that have left the window and returns the rest.
func (l *Limiter) expire(key string, now time.Time) []time.Time {
	ts := l.hits[key]
	cut := now.Add(-l.window)
	i := 0
	for i < len(ts) && !ts[i].After(cut) {
		i++
	}
	if i == len(ts) {
		delete(l.hits, key)
		return nil
	}
	ts = ts[i:]
	l.hits[key] = ts
	return ts
}

// sweep expires every key at most once per window.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for key := range l.hits {
		l.expire(key, now)
	}
}

// ClientIP returns the first X-Forwarded-For hop, or the remote host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header in whole seconds.
func Middleware(l *Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		if !l.Allow(ip) {
			wait := l.RetryAfter(ip)
			w.Header().Set("Retry-After", strconv.Itoa(int((wait+time.Second-1)/time.Second)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
