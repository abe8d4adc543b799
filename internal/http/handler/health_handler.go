package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const healthPingTimeout = 2 * time.Second

// HealthDeps groups the infrastructure clients probed by the health endpoint.
type HealthDeps struct {
	Postgres *pgxpool.Pool
	Redis    *redis.Client
	NATS     *nats.Conn
}

// HealthHandler reports per-component liveness.
type HealthHandler struct {
	deps HealthDeps
}

// NewHealthHandler creates a health handler with the provided dependencies.
func NewHealthHandler(deps HealthDeps) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// Register wires health routes onto the provided router.
func (h *HealthHandler) Register(router fiber.Router) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)
}

// Health handles GET /health with component pings. A degraded component turns
// the overall status but the endpoint still answers 200, so orchestration can
// distinguish "process up" from "dependencies up".
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	components := fiber.Map{}
	healthy := true

	mark := func(name string, ok bool) {
		if ok {
			components[name] = "up"
		} else {
			components[name] = "down"
			healthy = false
		}
	}

	ctx := userContext(c)

	if h.deps.Postgres != nil {
		pingCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
		mark("postgres", h.deps.Postgres.Ping(pingCtx) == nil)
		cancel()
	}
	if h.deps.Redis != nil {
		pingCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
		mark("redis", h.deps.Redis.Ping(pingCtx).Err() == nil)
		cancel()
	}
	if h.deps.NATS != nil {
		mark("nats", h.deps.NATS.IsConnected())
	}

	status := "ok"
	if !healthy {
		status = "degraded"
	}

	return c.JSON(fiber.Map{
		"service":    "promptview",
		"status":     status,
		"components": components,
		"time":       time.Now().UTC().Format(time.RFC3339),
	})
}
