package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/medtreasury/medtreasury/internal/account"
	"github.com/medtreasury/medtreasury/internal/httpx"
)

const (
	idempotencyKeyHeader      = "Idempotency-Key"
	idempotencyReplayedHeader = "Idempotent-Replayed"
	idempotencyPrefix         = "idempotency:v2:"
	inProgressMarker          = "__in_progress__"
	idempotencyStoreTimeout   = 2 * time.Second
)

var errReplayInProgress = errors.New("duplicate request currently processing")

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
}

// responseStore keeps one reservation or stored response per scoped key.
type responseStore struct {
	cache *redis.Client
	ttl   time.Duration
}

func (s responseStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), idempotencyStoreTimeout)
}

// lookup returns the stored response for key, or nil when the key is unseen.
func (s responseStore) lookup(key string) (*storedResponse, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	raw, err := s.cache.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if raw == inProgressMarker {
		return nil, errReplayInProgress
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("decode stored response: %w", err)
	}
	return &stored, nil
}

// reserve claims key for the running request. It reports false when another
// request claimed it first.
func (s responseStore) reserve(key string) (bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.cache.SetNX(ctx, key, inProgressMarker, s.ttl).Result()
}

func (s responseStore) save(key string, resp storedResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	ctx, cancel := s.ctx()
	defer cancel()
	return s.cache.Set(ctx, key, payload, s.ttl).Err()
}

func (s responseStore) release(key string) {
	ctx, cancel := s.ctx()
	defer cancel()
	s.cache.Del(ctx, key)
}

// idempotencyKey scopes the client key by caller and route, so the same key sent to
// an approval and to a release never replays one outcome for the other.
func idempotencyKey(c *fiber.Ctx, clientKey string) string {
	caller, _ := c.Locals(httpx.CallerKey).(account.Address)
	return idempotencyPrefix + caller.String() + ":" + c.Method() + ":" + c.Path() + ":" + clientKey
}

// Idempotency replays the first successful response of an unsafe request whose
// Idempotency-Key was already seen for the same caller and route. A retried
// approval, funding or release therefore returns its first outcome instead of
// failing with an invalid status or moving funds twice. Failed requests are not
// stored and may be retried with the same key.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	store := responseStore{cache: cache, ttl: ttl}
	return func(c *fiber.Ctx) error {
		switch strings.ToUpper(c.Method()) {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		clientKey := c.Get(idempotencyKeyHeader)
		if clientKey == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing Idempotency-Key header")
		}
		key := idempotencyKey(c, clientKey)

		stored, err := store.lookup(key)
		switch {
		case errors.Is(err, errReplayInProgress):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case err != nil:
			logger.Error("idempotency lookup failed", slog.String("key", clientKey), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		case stored != nil:
			c.Set(idempotencyReplayedHeader, "true")
			if stored.ContentType != "" {
				c.Set(fiber.HeaderContentType, stored.ContentType)
			}
			return c.Status(stored.Status).SendString(stored.Body)
		}

		reserved, err := store.reserve(key)
		if err != nil {
			logger.Error("idempotency reservation failed", slog.String("key", clientKey), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency reservation failure")
		}
		if !reserved {
			return fiber.NewError(fiber.StatusConflict, errReplayInProgress.Error())
		}

		if err := c.Next(); err != nil {
			store.release(key)
			return err
		}
		status := c.Response().StatusCode()
		if status >= fiber.StatusBadRequest {
			store.release(key)
			return nil
		}

		resp := storedResponse{
			Status:      status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        string(c.Response().Body()),
		}
		if err := store.save(key, resp); err != nil {
			logger.Error("failed to persist idempotent response", slog.String("key", clientKey), slog.Any("error", err))
			store.release(key)
		}
		return nil
	}
}
