package ratelimit

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Limiter allows a fixed number of requests per client per window
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
	hits    atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
}

type window struct {
	start    time.Time
	requests int
}

// Config holds rate limiter configuration
type Config struct {
	Requests        int
	Window          time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig allows 60 writes per minute per client
func DefaultConfig() Config {
	return Config{
		Requests:        60,
		Window:          time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// NewLimiter creates a limiter and starts its cleanup loop; call Stop to end it.
func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.Requests <= 0 {
		cfg.Requests = def.Requests
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	l := &Limiter{
		clients: make(map[string]*window),
		limit:   cfg.Requests,
		period:  cfg.Window,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.cleanupLoop(cfg.CleanupInterval)
	return l
}

// Allow records a request from client and reports whether it is within
// the limit.
func (l *Limiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[client]
	if !ok || now.Sub(w.start) >= l.period {
		l.clients[client] = &window{start: now, requests: 1}
		return true
	}
	w.requests++
	if w.requests > l.limit {
		l.hits.Add(1)
		return false
	}
	return true
}

func (l *Limiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.period)
	for client, w := range l.clients {
		if w.start.Before(cutoff) {
			delete(l.clients, client)
		}
	}
}

// ActiveClients returns the number of currently tracked clients
func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Hits returns how many requests were rejected
func (l *Limiter) Hits() int64 {
	return l.hits.Load()
}

// Stop ends the cleanup loop
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Middleware rejects requests over the limit with 429. Only methods for
// which limited returns true are counted.
func (l *Limiter) Middleware(extractIP func(*http.Request) string, limited func(*http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limited != nil && !limited(r) {
				next.ServeHTTP(w, r)
				return
			}
			if !l.Allow(extractIP(r)) {
				w.Header().Set("Retry-After", "60")
				http.Error(w, "Demasiadas solicitudes. Inténtalo más tarde.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WritesOnly limits every method except GET, HEAD and OPTIONS.
func WritesOnly(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
