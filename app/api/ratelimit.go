package api

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Window is one fixed rate-limit window for a key.
type Window struct {
	Start time.Time
	Count int
}

// RateStore holds rate-limit windows. The in-process map implementation below
// is the default; a shared store can be injected without touching the limiter.
// Counters may be lost on process restart; the database stays the system of
// record for quotas, so this only loosens short-term request smoothing.
type RateStore interface {
	Get(key string) (Window, bool)
	Set(key string, w Window)
	Evict(key string)
	Sweep(expiredBefore time.Time)
}

// MemoryStore is a process-local RateStore.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]Window
}

var _ RateStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: map[string]Window{}}
}

func (s *MemoryStore) Get(key string) (Window, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	return w, ok
}

func (s *MemoryStore) Set(key string, w Window) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[key] = w
}

func (s *MemoryStore) Evict(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
}

func (s *MemoryStore) Sweep(expiredBefore time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, w := range s.windows {
		if w.Start.Before(expiredBefore) {
			delete(s.windows, key)
		}
	}
}

func (s *MemoryStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

const (
	sweepEvery     = 64
	sweepSizeLimit = 10000
)

// Limiter enforces a fixed-window request limit per key. Expired windows are
// reset lazily on access; a periodic sweep keeps abandoned keys from
// accumulating.
type Limiter struct {
	store  RateStore
	limit  int
	window time.Duration

	mu     sync.Mutex
	checks int
}

func NewLimiter(store RateStore, limit int, window time.Duration) *Limiter {
	return &Limiter{store: store, limit: limit, window: window}
}

// Allow records one request against the key. Returns whether it is admitted,
// how many requests remain in the window, and how long until the window
// resets.
func (l *Limiter) Allow(key string, now time.Time) (bool, int, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checks++
	if l.checks%sweepEvery == 0 || l.storeSize() > sweepSizeLimit {
		l.store.Sweep(now.Add(-l.window))
	}

	w, ok := l.store.Get(key)
	if !ok || now.Sub(w.Start) >= l.window {
		w = Window{Start: now}
	}

	if w.Count >= l.limit {
		return false, 0, w.Start.Add(l.window).Sub(now)
	}

	w.Count++
	l.store.Set(key, w)
	return true, l.limit - w.Count, w.Start.Add(l.window).Sub(now)
}

func (l *Limiter) storeSize() int {
	if s, ok := l.store.(*MemoryStore); ok {
		return s.size()
	}
	return 0
}

// rateLimitMiddleware buckets requests per route group and caller. The caller
// key is the authenticated user when present, else the client IP.
func rateLimitMiddleware(limiter *Limiter, bucket string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetHeader(headerUserID)
		if caller == "" {
			caller = c.ClientIP()
		}

		allowed, remaining, retryAfter := limiter.Allow(bucket+":"+caller, time.Now())
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("rate limit exceeded, retry in %s", retryAfter.Round(time.Second)),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
