package server

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// rateLimiter allows max requests per client within a sliding window.
type rateLimiter struct {
	mu      sync.Mutex
	clients map[string][]time.Time
	now     func() time.Time
	max     int
	window  time.Duration
	swept   time.Time
}

func newRateLimiter(max int, window time.Duration, now func() time.Time) *rateLimiter {
	return &rateLimiter{
		clients: make(map[string][]time.Time),
		now:     now,
		max:     max,
		window:  window,
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)
	if now.Sub(rl.swept) >= rl.window {
		rl.sweep(cutoff)
		rl.swept = now
	}

	// Clean old entries
	var recent []time.Time
	for _, ts := range rl.clients[ip] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= rl.max {
		rl.clients[ip] = recent
		return false
	}

	rl.clients[ip] = append(recent, now)
	return true
}

// sweep forgets clients with no requests after cutoff.
func (rl *rateLimiter) sweep(cutoff time.Time) {
	for ip, times := range rl.clients {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func clientIP(r *http.Request) string {
	// Check X-Forwarded-For header (Cloud Run)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	// Fallback to RemoteAddr
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
