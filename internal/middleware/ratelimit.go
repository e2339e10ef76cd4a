package middleware

import (
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"go-admin-auth/pkg/apierror"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware is a coarse per-IP token bucket over the whole API.
// Login and refresh have their own sliding-window limits in the auth service.
type RateLimitMiddleware struct {
	rpm     int
	mu      sync.Mutex
	clients map[string]*clientLimiter
}

func NewRateLimitMiddleware(rpm int) *RateLimitMiddleware {
	if rpm <= 0 {
		rpm = 100
	}

	return &RateLimitMiddleware{
		rpm:     rpm,
		clients: map[string]*clientLimiter{},
	}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		reservation := m.getLimiter(ClientIP(r)).Reserve()
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			writeAPIError(w, apierror.RateLimited(int(math.Ceil(delay.Seconds()))))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) getLimiter(clientIP string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limiter, exists := m.clients[clientIP]; exists {
		limiter.lastSeen = time.Now()
		m.gcLocked()
		return limiter.limiter
	}

	created := &clientLimiter{
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(m.rpm)), m.rpm),
		lastSeen: time.Now(),
	}
	m.clients[clientIP] = created
	m.gcLocked()

	return created.limiter
}

func (m *RateLimitMiddleware) gcLocked() {
	if len(m.clients) < 1000 {
		return
	}

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, limiter := range m.clients {
		if limiter.lastSeen.Before(cutoff) {
			delete(m.clients, ip)
		}
	}
}
