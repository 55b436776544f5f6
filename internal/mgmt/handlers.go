package mgmt

import (
	"context"
	goerrors "errors"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/modmail-agent/internal/config"
	"github.com/p-blackswan/modmail-agent/internal/errors"
	"github.com/p-blackswan/modmail-agent/internal/health"
	"github.com/p-blackswan/modmail-agent/internal/sched"
	"github.com/p-blackswan/modmail-agent/internal/stats"
	"github.com/p-blackswan/modmail-agent/internal/store"
	"github.com/p-blackswan/modmail-agent/internal/ticket"
)

// APIActorID is the actor identity used for store mutations made through
// the management API. The store's admin policy must recognize it; the role
// middleware has already authorized the caller by the time it is used.
const APIActorID = "mgmt-api"

// Closer closes a ticket on behalf of an API caller. Implemented by the
// event router.
type Closer interface {
	Close(ctx context.Context, channelID string, actor ticket.StaffRef, reason string) error
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	cfg       *config.Config
	registry  *ticket.Registry
	store     *store.Store
	stats     *stats.Aggregator
	sched     *sched.Manager
	checker   *health.Checker
	closer    Closer
	logger    zerolog.Logger
	startTime time.Time
}

// NewHandlers creates a Handlers instance.
func NewHandlers(
	cfg *config.Config,
	registry *ticket.Registry,
	st *store.Store,
	agg *stats.Aggregator,
	scheduler *sched.Manager,
	checker *health.Checker,
	closer Closer,
	logger zerolog.Logger,
) *Handlers {
	return &Handlers{
		cfg:       cfg,
		registry:  registry,
		store:     st,
		stats:     agg,
		sched:     scheduler,
		checker:   checker,
		closer:    closer,
		logger:    logger.With().Str("component", "handlers").Logger(),
		startTime: time.Now(),
	}
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	if !h.checker.IsReady(c.Context()) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready"})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

// HealthDetail handles GET /api/v1/health.
func (h *Handlers) HealthDetail(c *fiber.Ctx) error {
	results := h.checker.RunAll(c.Context())

	overall := "ok"
	checks := make(map[string]string, len(results))
	for name, s := range results {
		checks[name] = string(s)
		if s == health.StatusDown {
			overall = "down"
		} else if s == health.StatusDegraded && overall == "ok" {
			overall = "degraded"
		}
	}

	return c.JSON(HealthDetailResponse{
		Status: overall,
		Checks: checks,
		Uptime: time.Since(h.startTime).Round(time.Second).String(),
	})
}

// GetStats handles GET /api/v1/stats.
func (h *Handlers) GetStats(c *fiber.Ctx) error {
	snap := h.stats.Snapshot()
	return c.JSON(StatsResponse{
		Total:             snap.Total,
		Closed:            snap.Closed,
		Open:              h.registry.Len(),
		Responded:         snap.Responded,
		AvgResponseTimeMs: snap.AvgResponseTime,
		AvgCloseTimeMs:    snap.AvgCloseTime,
		BlacklistedUsers:  h.store.BlacklistCount(),
		UsersWithNotes:    h.store.UsersWithNotes(),
		Snippets:          h.store.SnippetCount(),
	})
}

// ListTickets handles GET /api/v1/tickets.
func (h *Handlers) ListTickets(c *fiber.Ctx) error {
	sessions := h.registry.OpenSessions()
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].TicketNumber < sessions[j].TicketNumber
	})

	views := make([]TicketView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, ticketView(s))
	}
	return c.JSON(TicketListResponse{Tickets: views, Total: len(views)})
}

// GetTicket handles GET /api/v1/tickets/:channel_id.
func (h *Handlers) GetTicket(c *fiber.Ctx) error {
	session, err := h.registry.ByChannel(c.Params("channel_id"))
	if err != nil {
		return problemResponse(c, fiber.StatusNotFound,
			"ticket_not_found", "Not Found",
			"No open ticket for that channel")
	}
	return c.JSON(ticketView(session))
}

// CloseTicket handles DELETE /api/v1/tickets/:channel_id.
func (h *Handlers) CloseTicket(c *fiber.Ctx) error {
	var req CloseTicketRequest
	// Body is optional; an empty delete closes with defaults.
	_ = c.BodyParser(&req)
	if req.Reason == "" {
		req.Reason = "Closed via management API"
	}
	actor := ticket.StaffRef{ID: APIActorID, Name: "Management API"}
	if req.Actor != "" {
		actor.Name = req.Actor
	}

	if err := h.closer.Close(c.Context(), c.Params("channel_id"), actor, req.Reason); err != nil {
		if goerrors.Is(err, errors.ErrSessionNotFound) {
			return problemResponse(c, fiber.StatusNotFound,
				"ticket_not_found", "Not Found",
				"No open ticket for that channel")
		}
		return problemResponse(c, fiber.StatusInternalServerError,
			"close_failed", "Internal Server Error",
			"Failed to close the ticket")
	}
	return c.JSON(fiber.Map{"status": "closed"})
}

// GetBlacklist handles GET /api/v1/blacklist.
func (h *Handlers) GetBlacklist(c *fiber.Ctx) error {
	users := h.store.Blacklisted()
	return c.JSON(BlacklistResponse{Users: users, Total: len(users)})
}

// AddToBlacklist handles POST /api/v1/blacklist.
func (h *Handlers) AddToBlacklist(c *fiber.Ctx) error {
	var req BlacklistRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"user_id is required")
	}
	if err := h.store.Block(APIActorID, req.UserID); err != nil {
		h.logger.Error().Err(err).Str("user_id", req.UserID).Msg("blacklist add failed")
		return problemResponse(c, fiber.StatusInternalServerError,
			"persist_failed", "Internal Server Error",
			"Failed to persist the blacklist")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "blocked", "user_id": req.UserID})
}

// RemoveFromBlacklist handles DELETE /api/v1/blacklist/:user_id.
func (h *Handlers) RemoveFromBlacklist(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	err := h.store.Unblock(APIActorID, userID)
	if goerrors.Is(err, errors.ErrNoChange) {
		return problemResponse(c, fiber.StatusNotFound,
			"not_blacklisted", "Not Found",
			"User is not blacklisted")
	}
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("blacklist remove failed")
		return problemResponse(c, fiber.StatusInternalServerError,
			"persist_failed", "Internal Server Error",
			"Failed to persist the blacklist")
	}
	return c.JSON(fiber.Map{"status": "unblocked", "user_id": userID})
}

// ListSnippets handles GET /api/v1/snippets.
func (h *Handlers) ListSnippets(c *fiber.Ctx) error {
	names := h.store.SnippetNames()
	return c.JSON(SnippetsResponse{Names: names, Total: len(names)})
}

// GetSnippet handles GET /api/v1/snippets/:name.
func (h *Handlers) GetSnippet(c *fiber.Ctx) error {
	name := c.Params("name")
	content, ok := h.store.Snippet(name)
	if !ok {
		return problemResponse(c, fiber.StatusNotFound,
			"snippet_not_found", "Not Found",
			"No snippet with that name")
	}
	return c.JSON(fiber.Map{"name": name, "content": content})
}

// PutSnippet handles PUT /api/v1/snippets/:name.
func (h *Handlers) PutSnippet(c *fiber.Ctx) error {
	var req SnippetRequest
	if err := c.BodyParser(&req); err != nil || req.Content == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"content is required")
	}
	if err := h.store.SetSnippet(APIActorID, c.Params("name"), req.Content); err != nil {
		h.logger.Error().Err(err).Msg("snippet save failed")
		return problemResponse(c, fiber.StatusInternalServerError,
			"persist_failed", "Internal Server Error",
			"Failed to persist the snippet")
	}
	return c.JSON(fiber.Map{"status": "saved"})
}

// DeleteSnippet handles DELETE /api/v1/snippets/:name.
func (h *Handlers) DeleteSnippet(c *fiber.Ctx) error {
	err := h.store.RemoveSnippet(APIActorID, c.Params("name"))
	if goerrors.Is(err, errors.ErrNoChange) {
		return problemResponse(c, fiber.StatusNotFound,
			"snippet_not_found", "Not Found",
			"No snippet with that name")
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("snippet remove failed")
		return problemResponse(c, fiber.StatusInternalServerError,
			"persist_failed", "Internal Server Error",
			"Failed to persist the snippet")
	}
	return c.JSON(fiber.Map{"status": "removed"})
}

// ListClosures handles GET /api/v1/closures.
func (h *Handlers) ListClosures(c *fiber.Ctx) error {
	pending := h.sched.Pending()
	views := make([]ClosureView, 0, len(pending))
	for _, p := range pending {
		views = append(views, ClosureView{ChannelID: p.ChannelID, FireAt: p.FireAt})
	}
	return c.JSON(ClosureListResponse{Closures: views, Total: len(views)})
}

// GetConfig handles GET /api/v1/config. Secrets are never echoed.
func (h *Handlers) GetConfig(c *fiber.Ctx) error {
	return c.JSON(ConfigResponse{
		Environment:       h.cfg.Environment,
		LogLevel:          h.cfg.LogLevel,
		CommandPrefix:     h.cfg.CommandPrefix,
		TicketCategory:    h.cfg.TicketCategory,
		MaxTicketsPerUser: h.cfg.MaxTicketsPerUser,
		RequireCategory:   h.cfg.RequireCategory,
		AnonymousMode:     h.cfg.AnonymousMode,
		AuthMode:          h.cfg.MgmtAuthMode,
	})
}
