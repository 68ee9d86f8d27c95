package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/medtreasury/medtreasury/internal/account"
	"github.com/medtreasury/medtreasury/internal/httpx"
	"github.com/medtreasury/medtreasury/internal/logging"
)

const testCallerHeader = "X-Test-Caller"

func setupTestApp(t *testing.T) (*fiber.App, *atomic.Int32, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler})
	logger := logging.Discard()
	app.Use(func(c *fiber.Ctx) error {
		if caller := c.Get(testCallerHeader); caller != "" {
			c.Locals(httpx.CallerKey, account.Address(caller))
		}
		return c.Next()
	})
	app.Use(Idempotency(cache, time.Minute, logger))

	var calls atomic.Int32
	app.Post("/resource", func(c *fiber.Ctx) error {
		n := calls.Add(1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "call": n})
	})
	app.Post("/other", func(c *fiber.Ctx) error {
		n := calls.Add(1)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"other": true, "call": n})
	})
	app.Post("/rejected", func(c *fiber.Ctx) error {
		calls.Add(1)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "insufficient balance"})
	})
	app.Post("/failing", func(c *fiber.Ctx) error {
		calls.Add(1)
		return fiber.NewError(http.StatusConflict, "invalid status")
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}

	return app, &calls, cleanup
}

func post(t *testing.T, app *fiber.App, path, key, caller string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	if caller != "" {
		req.Header.Set(testCallerHeader, caller)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()
	return resp, string(body)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app, _, cleanup := setupTestApp(t)
	defer cleanup()

	resp, _ := post(t, app, "/resource", "", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, resp.StatusCode)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	resp, payload := post(t, app, "/resource", "abc123", "alice")
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, resp.StatusCode)
	}

	// Second request should return the cached response without invoking handler again.
	resp2, cachedPayload := post(t, app, "/resource", "abc123", "alice")
	if resp2.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, resp2.StatusCode)
	}
	if cachedPayload != payload {
		t.Fatalf("expected cached payload %s got %s", payload, cachedPayload)
	}
	if calls.Load() != 1 {
		t.Fatalf("handler should run once, ran %d times", calls.Load())
	}
	if resp.Header.Get(idempotencyReplayedHeader) != "" {
		t.Fatalf("first response must not be marked as replayed")
	}
	if resp2.Header.Get(idempotencyReplayedHeader) != "true" {
		t.Fatalf("expected replayed header on the cached response")
	}
	if ct := resp2.Header.Get(fiber.HeaderContentType); !strings.HasPrefix(ct, fiber.MIMEApplicationJSON) {
		t.Fatalf("expected json content type on replay, got %q", ct)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(cachedPayload), &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencyKeysAreScopedByCaller(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	post(t, app, "/resource", "shared", "alice")
	_, body := post(t, app, "/resource", "shared", "bob")
	if calls.Load() != 2 {
		t.Fatalf("each caller should reach the handler, got %d calls", calls.Load())
	}
	if !strings.Contains(body, `"call":2`) {
		t.Fatalf("bob must not receive alice's response: %s", body)
	}
}

func TestIdempotencyDoesNotCacheErrors(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		resp, _ := post(t, app, "/failing", "retry-me", "alice")
		if resp.StatusCode != fiber.StatusConflict {
			t.Fatalf("expected %d got %d", fiber.StatusConflict, resp.StatusCode)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("failed requests should be retried, got %d calls", calls.Load())
	}
}

func TestIdempotencyKeysAreScopedByRoute(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	post(t, app, "/resource", "same-key", "alice")
	resp, body := post(t, app, "/other", "same-key", "alice")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected %d got %d", fiber.StatusOK, resp.StatusCode)
	}
	if !strings.Contains(body, `"other":true`) {
		t.Fatalf("second route must run its own handler: %s", body)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestIdempotencyDoesNotCacheUnsuccessfulStatus(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		resp, _ := post(t, app, "/rejected", "retry-me", "alice")
		if resp.StatusCode != fiber.StatusUnprocessableEntity {
			t.Fatalf("expected %d got %d", fiber.StatusUnprocessableEntity, resp.StatusCode)
		}
		if resp.Header.Get(idempotencyReplayedHeader) != "" {
			t.Fatalf("unsuccessful responses must not be replayed")
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("expected handler to run twice, got %d calls", calls.Load())
	}
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler})
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/resource", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	if err := mr.Set(idempotencyPrefix+":POST:/resource:busy", inProgressMarker); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}
	resp, _ := post(t, app, "/resource", "busy", "")
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("expected %d got %d", fiber.StatusConflict, resp.StatusCode)
	}
}
