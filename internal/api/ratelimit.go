package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kanbanhq/kanban/internal/service"
)

// rateLimiter enforces a sliding 60 second window per client.
type rateLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	hits      map[string][]time.Time
	now       func() time.Time
	lastSweep time.Time
}

func newRateLimiter(limit int) *rateLimiter {
	return &rateLimiter{
		limit:  limit,
		window: time.Minute,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// allow records one hit for key and reports whether it fits the
// window, plus the remaining budget and the window reset time.
func (l *rateLimiter) allow(key string) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	l.sweep(now, cutoff)
	recent := l.hits[key]
	for len(recent) > 0 && recent[0].Before(cutoff) {
		recent = recent[1:]
	}
	if len(recent) >= l.limit {
		l.hits[key] = recent
		return 0, recent[0].Add(l.window), false
	}
	recent = append(recent, now)
	l.hits[key] = recent
	return l.limit - len(recent), recent[0].Add(l.window), true
}

// sweep evicts clients whose every hit has aged out of the window, so
// the table does not grow with the set of addresses ever seen. Runs at
// most once per window. Caller holds the lock.
func (l *rateLimiter) sweep(now, cutoff time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for key, hits := range l.hits {
		if len(hits) == 0 || hits[len(hits)-1].Before(cutoff) {
			delete(l.hits, key)
		}
	}
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, reset, ok := s.limiter.allow(clientKey(r))
		w.Header().Set("X-Rate-Limit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-Rate-Limit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if !ok {
			retry := time.Until(reset).Seconds()
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(retry)))
			respondErr(w, r, service.RateLimited("request rate exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
