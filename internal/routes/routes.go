package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/renmo-pay/renmo/internal/config"
	"github.com/renmo-pay/renmo/internal/middleware"
	"github.com/renmo-pay/renmo/internal/state"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	Facade *state.Facade
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Facade == nil {
		return fmt.Errorf("session facade is required")
	}
	if !d.Cfg.IsDev() && d.Cfg.JWTSecret == "" {
		return fmt.Errorf("API_JWT_SECRET is required when APP_ENV=%s", d.Cfg.AppEnv)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.GetRequestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	protected := api
	if d.Cfg.JWTSecret != "" {
		protected = api.Group("", middleware.JWTAuth([]byte(d.Cfg.JWTSecret)))
	}

	h := state.NewHandler(d.Facade)
	RegisterSessionRoutes(protected, h)
	RegisterWalletRoutes(protected, h, d.Cache)
	RegisterPaymentRoutes(protected, h, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	return nil
}

// RegisterSessionRoutes wires connection and state endpoints.
func RegisterSessionRoutes(r fiber.Router, h *state.Handler) {
	r.Get("/session", h.State)
	r.Get("/session/events", h.Events)
	r.Post("/session/connect", h.Connect)
	r.Post("/session/disconnect", h.Disconnect)
}

// RegisterWalletRoutes wires wallet management endpoints. Creating wallets
// hits the faucet and revealing secrets is sensitive, so both are rate limited.
func RegisterWalletRoutes(r fiber.Router, h *state.Handler, cache *redis.Client) {
	r.Get("/wallets", h.ListWallets)
	r.Post("/wallets", middleware.RateLimit(cache, "wallets", 5), h.AddWallet)
	r.Put("/wallets/active", h.SwitchWallet)
	r.Delete("/wallets/:address", h.RemoveWallet)
	r.Get("/wallets/:address/secret", middleware.RateLimit(cache, "secret", 10), h.SecretKey)
}

// RegisterPaymentRoutes wires balance, history and submission endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *state.Handler, idempotent fiber.Handler) {
	r.Get("/balance", h.Balance)
	r.Get("/transactions", h.History)
	r.Post("/payments", idempotent, h.SendPayment)
	r.Post("/trustline", idempotent, h.SetupTrustline)
}
