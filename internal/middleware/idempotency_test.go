package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hsportal/portal/internal/logging"
)

func setupTestApp(t *testing.T, required bool) (*fiber.App, *atomic.Int32) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	var calls atomic.Int32
	app := fiber.New()
	app.Use(Idempotency(cache, IdempotencyConfig{TTL: time.Minute, Required: required, Logger: logging.Discard()}))
	app.Post("/resource", func(c *fiber.Ctx) error {
		n := calls.Add(1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "call": n})
	})
	return app, &calls
}

func postResource(t *testing.T, app *fiber.App, key string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/resource", strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app, _ := setupTestApp(t, true)

	if status, _ := postResource(t, app, ""); status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}
}

func TestIdempotencyOptionalHeaderPassesThrough(t *testing.T) {
	app, calls := setupTestApp(t, false)

	postResource(t, app, "")
	postResource(t, app, "")
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected handler to run twice without a key, ran %d times", n)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, calls := setupTestApp(t, false)

	status, payload := postResource(t, app, "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}

	// The second request is answered from Redis.
	status, cached := postResource(t, app, "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status)
	}
	if cached != payload {
		t.Fatalf("expected cached payload %s got %s", payload, cached)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected handler to run once, ran %d times", n)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(cached), &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencyWithoutRedisIsNoop(t *testing.T) {
	app := fiber.New()
	app.Use(Idempotency(nil, IdempotencyConfig{Required: true}))
	app.Post("/resource", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	if status, _ := postResource(t, app, ""); status != fiber.StatusNoContent {
		t.Fatalf("expected passthrough, got %d", status)
	}
}
