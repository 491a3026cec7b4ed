// Package ratelimit throttles public endpoints with ulule/limiter.
package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/toko-rolepricing/internal/common"
)

// NewRedisStore returns a limiter store shared by every API instance.
func NewRedisStore(client *redis.Client, prefix string) (limiter.Store, error) {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
}

// New builds a limiter from a formatted rate such as "120-M".
func New(store limiter.Store, formatted string) (*limiter.Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}
	return limiter.New(store, rate), nil
}

// KeyFunc derives the bucket a request counts against.
type KeyFunc func(*http.Request) string

// ByUserOrIP keys authenticated callers by user id and visitors by client address.
func ByUserOrIP(r *http.Request) string {
	if userID, ok := common.UserID(r.Context()); ok {
		return "user:" + userID
	}
	return "ip:" + common.ClientIP(r)
}

// Handler enforces rate limits before delegating to the next handler.
type Handler struct {
	Limiter *limiter.Limiter
	Key     KeyFunc
	Logger  zerolog.Logger
}

// Middleware implements the http.Handler middleware interface. Store failures let the
// request through.
func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Limiter == nil {
		return next
	}
	key := h.Key
	if key == nil {
		key = ByUserOrIP
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lc, err := h.Limiter.Get(r.Context(), key(r))
		if err != nil {
			h.Logger.Warn().Err(err).Msg("rate limit store unavailable")
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(lc.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(lc.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(lc.Reset, 10))

		if lc.Reached {
			retryAfter := time.Until(time.Unix(lc.Reset, 0)).Seconds()
			if retryAfter < 0 {
				retryAfter = 0
			}
			headers.Set("Retry-After", strconv.Itoa(int(retryAfter)))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
