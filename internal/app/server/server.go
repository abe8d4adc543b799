package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gongdel/promptview/internal/app/service"
	inthttp "github.com/gongdel/promptview/internal/http/handler"
	"github.com/gongdel/promptview/internal/http/middleware"
)

// Dependencies bundles infrastructure and services required by the HTTP server.
type Dependencies struct {
	Logger        *zap.Logger
	Postgres      *pgxpool.Pool
	Redis         *redis.Client
	NATS          *nats.Conn
	JetStream     nats.JetStreamContext
	PromptService service.PromptService
	ViewService   service.ViewService
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with default routes.
func New(deps Dependencies) *Server {
	app := fiber.New()

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	logger := s.deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Recovery(logger))
	s.app.Use(middleware.Logger(logger))
	s.app.Use(middleware.CORS())
	if s.deps.Redis != nil {
		s.app.Use(middleware.RateLimit(s.deps.Redis, middleware.DefaultRateLimitConfig(), logger))
	}
}

func (s *Server) registerRoutes() {
	healthHandler := inthttp.NewHealthHandler(inthttp.HealthDeps{
		Postgres: s.deps.Postgres,
		Redis:    s.deps.Redis,
		NATS:     s.deps.NATS,
	})
	healthHandler.Register(s.app)

	// View routes first: /api/prompts/top must win over /api/prompts/:uuid.
	viewHandler := inthttp.NewViewHandler(inthttp.ViewDeps{
		Logger:        s.deps.Logger,
		PromptService: s.deps.PromptService,
		ViewService:   s.deps.ViewService,
	})
	viewHandler.Register(s.app)

	promptHandler := inthttp.NewPromptHandler(inthttp.PromptDeps{
		Logger:        s.deps.Logger,
		PromptService: s.deps.PromptService,
	})
	promptHandler.Register(s.app)
}
