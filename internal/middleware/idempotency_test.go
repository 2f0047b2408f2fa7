package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/renmo-pay/renmo/internal/logging"
)

func setupTestApp(t *testing.T, status int) (*fiber.App, *int32) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})

	var calls int32
	app := fiber.New()
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/payments", func(c *fiber.Ctx) error {
		n := atomic.AddInt32(&calls, 1)
		if status >= fiber.StatusBadRequest {
			return fiber.NewError(status, "failed")
		}
		return c.Status(status).JSON(fiber.Map{"call": n})
	})
	return app, &calls
}

func post(t *testing.T, app *fiber.App, key string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/payments", strings.NewReader("{}"))
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

func TestIdempotencyWithoutKeyPassesThrough(t *testing.T) {
	app, calls := setupTestApp(t, fiber.StatusCreated)
	post(t, app, "")
	post(t, app, "")
	if *calls != 2 {
		t.Fatalf("expected handler to run twice, ran %d", *calls)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, calls := setupTestApp(t, fiber.StatusCreated)

	status, first := post(t, app, "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}
	status, second := post(t, app, "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status)
	}
	if first != second {
		t.Fatalf("expected cached payload %s got %s", first, second)
	}
	if *calls != 1 {
		t.Fatalf("expected handler to run once, ran %d", *calls)
	}
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	app, calls := setupTestApp(t, fiber.StatusBadGateway)

	post(t, app, "retry-me")
	status, _ := post(t, app, "retry-me")
	if status != fiber.StatusBadGateway {
		t.Fatalf("expected %d got %d", fiber.StatusBadGateway, status)
	}
	if *calls != 2 {
		t.Fatalf("expected a retry after a server error, ran %d", *calls)
	}
}

func TestIdempotencyStoresClientErrors(t *testing.T) {
	app, calls := setupTestApp(t, fiber.StatusConflict)

	post(t, app, "conflict")
	status, _ := post(t, app, "conflict")
	if status != fiber.StatusConflict {
		t.Fatalf("expected %d got %d", fiber.StatusConflict, status)
	}
	if *calls != 1 {
		t.Fatalf("expected stored client error to be replayed, ran %d", *calls)
	}
}
