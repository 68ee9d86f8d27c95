package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/medtreasury/medtreasury/internal/account"
	"github.com/medtreasury/medtreasury/internal/httpx"
)

const rateLimitPrefix = "ratelimit:v1"

// NewLimiter builds a limiter for a formatted rate such as "300-M". Counters live in
// Redis when a client is given so every replica shares them, in memory otherwise.
func NewLimiter(rate string, cache *redis.Client) (*limiter.Limiter, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	var store limiter.Store
	if cache != nil {
		store, err = sredis.NewStoreWithOptions(cache, limiter.StoreOptions{Prefix: rateLimitPrefix, MaxRetry: 3})
		if err != nil {
			return nil, err
		}
	} else {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: rateLimitPrefix})
	}
	return limiter.New(store, r), nil
}

// RateLimit throttles requests per authenticated caller, or per client IP before
// authentication. Store failures fail open.
func RateLimit(l *limiter.Limiter, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := "ip:" + c.IP()
		if caller, _ := c.Locals(httpx.CallerKey).(account.Address); !caller.IsNull() {
			key = "caller:" + caller.String()
		}

		lctx, err := l.Get(c.UserContext(), key)
		if err != nil {
			logger.Error("rate limit lookup failed", slog.String("key", key), slog.Any("error", err))
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			logger.Warn("rate limit exceeded", slog.String("key", key), slog.Int64("limit", lctx.Limit))
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}
