package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/searchy/internal/web/ratelimit"
	"github.com/conduit-lang/searchy/internal/web/response"
)

// RateLimitConfig configures RateLimitWithConfig
type RateLimitConfig struct {
	Limiter ratelimit.Limiter
	// KeyFunc names the client a request counts against
	KeyFunc func(*http.Request) string
	// FailOpen lets requests through when the limiter errors
	FailOpen bool
	Logger   *zap.Logger
	Now      func() time.Time
}

// RateLimit limits requests per client IP and fails open
func RateLimit(limiter ratelimit.Limiter, logger *zap.Logger) Middleware {
	return RateLimitWithConfig(RateLimitConfig{
		Limiter:  limiter,
		KeyFunc:  IPKeyFunc,
		FailOpen: true,
		Logger:   logger,
	})
}

// RateLimitWithConfig limits requests with a custom configuration
func RateLimitWithConfig(cfg RateLimitConfig) Middleware {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPKeyFunc
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := cfg.KeyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			d, err := cfg.Limiter.Allow(r.Context(), key)
			if err != nil {
				cfg.Logger.Warn("rate limiter unavailable",
					zap.String("request_id", GetRequestID(r.Context())),
					zap.Bool("fail_open", cfg.FailOpen),
					zap.Error(err),
				)
				if cfg.FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				response.RenderError(w, http.StatusServiceUnavailable, fmt.Errorf("rate limiter unavailable"))
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retry := d.RetryAfter(cfg.Now())
				h.Set("Retry-After", strconv.Itoa(int(retry/time.Second)))
				response.RenderError(w, http.StatusTooManyRequests, fmt.Errorf("rate limit exceeded, retry in %s", retry))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPKeyFunc keys requests by the first X-Forwarded-For address, then
// X-Real-IP, then the remote address
func IPKeyFunc(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
