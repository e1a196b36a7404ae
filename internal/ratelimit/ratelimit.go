// Package ratelimit throttles the consent write path per client IP using a
// Redis fixed window. The limiter fails open: when Redis is down or not
// configured, requests pass through and the outage is logged, because
// consent writes must not depend on the cache tier.
package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"othertales/internal/platform/middleware"
	dErrors "othertales/pkg/domain-errors"
	"othertales/pkg/platform/httputil"
)

const window = time.Minute

// Counter is the slice of the Redis API the limiter needs. *redis.Client
// satisfies it.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Limiter counts requests per key in fixed one-minute windows.
type Limiter struct {
	client Counter
	limit  int
	logger *slog.Logger
}

// New builds a Limiter. client may be nil, in which case every check passes.
func New(client Counter, limit int, logger *slog.Logger) *Limiter {
	return &Limiter{client: client, limit: limit, logger: logger}
}

// Allow reports whether the key has requests left in the current window.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l.client == nil || l.limit <= 0 {
		return true
	}

	windowKey := "ratelimit:" + key + ":" + time.Now().UTC().Format("200601021504")
	count, err := l.client.Incr(ctx, windowKey).Result()
	if err != nil {
		l.logger.Warn("rate limit check failed, allowing request", "error", err)
		return true
	}
	if count == 1 {
		if err := l.client.Expire(ctx, windowKey, window).Err(); err != nil {
			l.logger.Warn("rate limit expire failed", "key", windowKey, "error", err)
		}
	}
	return count <= int64(l.limit)
}

// Middleware enforces the limit per client IP and answers 429 when exceeded.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := middleware.GetClientIP(r.Context())
		if ip == "" {
			ip = middleware.ClientIPFromRequest(r)
		}
		if !l.Allow(r.Context(), ip) {
			l.logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			httputil.WriteError(w, dErrors.New(dErrors.CodeTooManyRequests, "too many consent updates, retry later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
