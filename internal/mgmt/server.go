// Package mgmt exposes the management API: ticket inspection, blacklist
// and snippet administration, stats, and probe endpoints.
package mgmt

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/modmail-agent/internal/metrics"
)

// ServerConfig holds configuration for the management API server.
type ServerConfig struct {
	ListenAddr  string
	AuthConfig  AuthConfig
	RateLimit   RateLimitConfig
	CORSOrigins string
}

// Server is the management API Fiber application.
type Server struct {
	app      *fiber.App
	handlers *Handlers
	logger   zerolog.Logger
	config   ServerConfig
}

// NewServer creates and configures a management API server.
func NewServer(
	cfg ServerConfig,
	handlers *Handlers,
	metricsCollector *metrics.Metrics,
	logger zerolog.Logger,
) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	s := &Server{
		app:      app,
		handlers: handlers,
		logger:   logger.With().Str("component", "mgmt_server").Logger(),
		config:   cfg,
	}

	s.setupMiddleware(cfg, logger)
	s.setupRoutes(handlers, metricsCollector)

	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig, logger zerolog.Logger) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request ID middleware. A caller-provided ID is propagated so API
	// requests can be correlated across services; otherwise one is minted.
	s.app.Use(func(c *fiber.Ctx) error {
		reqID := c.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set("X-Request-ID", reqID)
		c.Locals("request_id", reqID)
		return c.Next()
	})

	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
		}))
	}

	if cfg.RateLimit.RPS > 0 {
		s.app.Use(NewRateLimitMiddleware(cfg.RateLimit))
	}

	s.app.Use(NewAuthMiddleware(cfg.AuthConfig, logger))

	// Audit middleware (log every request)
	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		// Skip noisy probe logging
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}

		logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Str("request_id", fmt.Sprintf("%v", c.Locals("request_id"))).
			Msg("mgmt api request")

		return c.Next()
	})
}

func (s *Server) setupRoutes(h *Handlers, metricsCollector *metrics.Metrics) {
	// Probe endpoints (no auth required, handled in auth middleware)
	s.app.Get("/healthz", h.Liveness)
	s.app.Get("/readyz", h.Readiness)

	if metricsCollector != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(metricsCollector.Handler()))
	} else {
		s.app.Get("/metrics", func(c *fiber.Ctx) error {
			return c.SendString("# No metrics collector configured\n")
		})
	}

	v1 := s.app.Group("/api/v1")

	// Ticket endpoints
	v1.Get("/tickets", h.ListTickets)
	v1.Get("/tickets/:channel_id", h.GetTicket)
	v1.Delete("/tickets/:channel_id", requireRole(RoleOperator), h.CloseTicket)

	// Blacklist administration
	v1.Get("/blacklist", h.GetBlacklist)
	v1.Post("/blacklist", requireRole(RoleAdmin), h.AddToBlacklist)
	v1.Delete("/blacklist/:user_id", requireRole(RoleAdmin), h.RemoveFromBlacklist)

	// Snippet administration
	v1.Get("/snippets", h.ListSnippets)
	v1.Get("/snippets/:name", h.GetSnippet)
	v1.Put("/snippets/:name", requireRole(RoleAdmin), h.PutSnippet)
	v1.Delete("/snippets/:name", requireRole(RoleAdmin), h.DeleteSnippet)

	// Scheduled closures
	v1.Get("/closures", h.ListClosures)

	// Stats, health, config
	v1.Get("/stats", h.GetStats)
	v1.Get("/health", h.HealthDetail)
	v1.Get("/config", h.GetConfig)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8090"
	}

	s.logger.Info().Str("addr", addr).Msg("management API server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("management API server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		detail := err.Error()
		if code == fiber.StatusInternalServerError {
			detail = "An internal error occurred"
		}

		return c.Status(code).JSON(ProblemDetail{
			Type:     "internal_error",
			Title:    "Internal Server Error",
			Status:   code,
			Detail:   detail,
			Instance: c.Path(),
		})
	}
}
