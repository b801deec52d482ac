package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fleetops/devicecontrol/internal/database"
	apierrors "github.com/fleetops/devicecontrol/internal/pkg/errors"
	"github.com/fleetops/devicecontrol/internal/pkg/response"
)

// RateLimitConfig defines a fixed-window rate limit class.
type RateLimitConfig struct {
	// Name distinguishes the Redis key namespace for this class, e.g.
	// "signup", "reset", "general".
	Name   string
	Limit  int
	Window time.Duration
}

// Rate limit classes.
var (
	SignupRateLimit  = RateLimitConfig{Name: "signup", Limit: 3, Window: time.Minute}
	ResetRateLimit   = RateLimitConfig{Name: "reset", Limit: 3, Window: time.Hour}
	GeneralRateLimit = RateLimitConfig{Name: "general", Limit: 60, Window: time.Minute}
)

// RateLimit returns a per-IP fixed-window rate limiting middleware backed
// by Redis INCR+EXPIRE: the counter starts at a window's first request and
// resets when that window expires; it is not a sliding window, so up to
// twice the limit can pass across a window boundary. On a Redis error the
// request is allowed through
// (a rate limiter that becomes a hard outage defeats its own purpose).
func RateLimit(redis *database.Redis, cfg RateLimitConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := getRealIP(r)
			key := fmt.Sprintf("ratelimit:%s:%s", cfg.Name, clientID)

			ctx := r.Context()

			count, err := redis.IncrWithExpire(ctx, key, cfg.Window)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			remaining := cfg.Limit - int(count)
			if remaining < 0 {
				remaining = 0
			}
			resetTime := time.Now().Add(cfg.Window).Unix()

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime, 10))

			if int(count) > cfg.Limit {
				w.Header().Set("Retry-After", strconv.Itoa(int(cfg.Window.Seconds())))
				response.Error(w, apierrors.ErrRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodySize returns a middleware that rejects request bodies larger than
// limitBytes with 413, enforced before any JSON decoding.
func MaxBodySize(limitBytes int64) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limitBytes {
				response.Error(w, apierrors.ErrPayloadTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limitBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// getRealIP extracts the real client IP, considering proxies.
func getRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}
	return r.RemoteAddr
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// DeviceIDKey is the context key for the authenticated device id.
	DeviceIDKey contextKey = "device_id"
)
