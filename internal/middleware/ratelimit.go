package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pixelrelay/pixelrelay/internal/cache"
	"github.com/pixelrelay/pixelrelay/internal/ident"
)

// IPLimiter consumes one token for a client address. *cache.Cache
// implements it; tests substitute a fake.
type IPLimiter interface {
	CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond float64, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig holds configuration for the per-IP rate limiter guarding
// the public tracking endpoints.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Cache   IPLimiter
	Enabled bool
	RPS     int
	Burst   int
}

// RateLimitIP returns middleware that rate limits requests per client IP.
// IPs are hashed before they reach Redis; the limiter never stores raw
// addresses. Limiter errors fail open: dropping a tracking event is better
// than blocking it behind a broken Redis.
func RateLimitIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || cfg.Cache == nil {
				next.ServeHTTP(w, r)
				return
			}

			ip, ok := ident.ClientIP(r.Header)
			if !ok {
				// Direct connection without proxy headers.
				ip = r.RemoteAddr
			}

			result, err := cfg.Cache.CheckIPRateLimit(r.Context(), ip, float64(cfg.RPS), cfg.Burst)
			if err != nil {
				cfg.Logger.Error("rate limit check failed",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !result.Allowed {
				retrySec := int(result.RetryAfter.Seconds())
				if result.RetryAfter > 0 && retrySec == 0 {
					retrySec = 1
				}

				cfg.Logger.Warn("rate limit exceeded",
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.Int("retry_after_seconds", retrySec),
					slog.String("request_id", GetRequestID(r.Context())),
				)

				w.Header().Set("Retry-After", strconv.Itoa(retrySec))
				writeRateLimitError(w, retrySec)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeRateLimitError writes a 429 Too Many Requests response.
func writeRateLimitError(w http.ResponseWriter, retrySec int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	msg := fmt.Sprintf(`{"ok":false,"error":"rate limit exceeded, retry after %d seconds"}`, retrySec)
	_, _ = w.Write([]byte(msg))
}
