package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

// RateLimitConfig configures the ingress limiter.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
	// Prefix namespaces the limiter keys, e.g. "ratelimit:webhook:".
	Prefix string
	// TrustProxy honours X-Forwarded-For and X-Real-IP. Enable only behind
	// a proxy that overwrites them.
	TrustProxy bool
}

// RateLimit returns middleware that applies per-client rate limiting using the
// provided domain.RateLimiter. Limiter errors fail open and are logged.
func RateLimit(limiter domain.RateLimiter, cfg RateLimitConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(max(1, int(cfg.Window.Seconds())))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || cfg.Limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			clientIP := extractClientIP(r, cfg.TrustProxy)

			allowed, err := limiter.Allow(r.Context(), cfg.Prefix+clientIP, cfg.Limit, cfg.Window)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable, allowing request",
					slog.String("client_ip", clientIP),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				w.Header().Set("Retry-After", retryAfter)
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "rate_limit")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractClientIP returns the direct remote address, or the first proxy
// header value when trustProxy is set.
func extractClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.SplitN(xff, ",", 2)
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
