package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/diagnosis/parkspot/internal/http/response"
	"github.com/diagnosis/parkspot/internal/repo"
	"github.com/diagnosis/parkspot/pkg/logger"
)

// RateLimitConfig defines rate limiting parameters
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	// KeyFunc returns every key the request is counted against.
	KeyFunc  func(r *http.Request) []string
	SkipFunc func(r *http.Request) bool
}

type RateLimiter struct {
	store  repo.RateLimitRepository
	config RateLimitConfig
}

// NewRateLimiter returns a limiter over store. A nil store disables limiting.
func NewRateLimiter(store repo.RateLimitRepository, config RateLimitConfig) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = ClientIPKeyFunc
	}
	return &RateLimiter{store: store, config: config}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.store == nil || (rl.config.SkipFunc != nil && rl.config.SkipFunc(r)) {
				next.ServeHTTP(w, r)
				return
			}

			for _, key := range rl.config.KeyFunc(r) {
				allowed, err := rl.store.CheckRateLimit(r.Context(), r.URL.Path+"|"+key, rl.config.Requests, rl.config.Window)
				if err != nil {
					// The store fails open; keep serving.
					logger.WarnContext(r.Context(), "Rate limit check failed", "error", err)
				}
				if !allowed {
					response.RateLimit(w, "Too many requests. Try again later.")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIPKeyFunc limits by client address.
func ClientIPKeyFunc(r *http.Request) []string {
	if ip := clientIP(r); ip != "" {
		return []string{"ip:" + ip}
	}
	return nil
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
