// Package router dispatches inbound events (user DMs, staff commands,
// interactive components, timers) to the session registry and stores, and
// drives the outbound notifications each transition requires.
package router

import (
	"context"
	goerrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/modmail-agent/internal/config"
	"github.com/p-blackswan/modmail-agent/internal/errors"
	"github.com/p-blackswan/modmail-agent/internal/metrics"
	"github.com/p-blackswan/modmail-agent/internal/platform"
	"github.com/p-blackswan/modmail-agent/internal/ratelimit"
	"github.com/p-blackswan/modmail-agent/internal/sched"
	"github.com/p-blackswan/modmail-agent/internal/stats"
	"github.com/p-blackswan/modmail-agent/internal/store"
	"github.com/p-blackswan/modmail-agent/internal/ticket"
	"github.com/p-blackswan/modmail-agent/internal/transcript"
)

// SystemActor closes tickets on behalf of timers and the inactivity sweep.
var SystemActor = ticket.StaffRef{ID: "system", Name: "Modmail"}

var channelNameSanitizer = regexp.MustCompile(`[^a-z0-9]`)

// Router wires the gates, the registry, the stores, and the platform
// client together. One Router instance serves all event sources.
type Router struct {
	cfg      *config.Config
	client   platform.Client
	registry *ticket.Registry
	limiter  *ratelimit.Limiter
	store    *store.Store
	stats    *stats.Aggregator
	sched    *sched.Manager
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	nowFunc  func() time.Time
}

// New creates a Router.
func New(
	cfg *config.Config,
	client platform.Client,
	registry *ticket.Registry,
	limiter *ratelimit.Limiter,
	st *store.Store,
	agg *stats.Aggregator,
	scheduler *sched.Manager,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Router {
	return &Router{
		cfg:      cfg,
		client:   client,
		registry: registry,
		limiter:  limiter,
		store:    st,
		stats:    agg,
		sched:    scheduler,
		metrics:  m,
		logger:   logger.With().Str("component", "router").Logger(),
		nowFunc:  time.Now,
	}
}

// HandleUserMessage processes one inbound DM from an end user: gate,
// resolve or create the session, and mirror the message into the ticket
// channel.
func (r *Router) HandleUserMessage(ctx context.Context, userID, username, content string) {
	if !r.limiter.Allow(userID) {
		r.metrics.RateLimited.Inc()
		r.dm(ctx, userID, "You're sending messages too quickly. Please slow down.")
		return
	}

	if _, open := r.registry.Get(userID); !open && r.cfg.RequireCategory {
		if err := r.client.PromptCategory(ctx, userID, r.cfg.Categories); err != nil {
			r.externalError("promptCategory", err)
		}
		return
	}

	r.forwardUserMessage(ctx, userID, username, content, r.cfg.DefaultCategory())
}

// HandleCategorySelect processes a category chosen from the DM prompt.
func (r *Router) HandleCategorySelect(ctx context.Context, userID, username, category string) {
	if !r.cfg.ValidCategory(category) {
		r.dm(ctx, userID, "That category is no longer available. Please send your message again.")
		return
	}

	session, isNew, err := r.openTicket(ctx, userID, username, category)
	if err != nil {
		r.reportOpenFailure(ctx, userID, err)
		return
	}
	if isNew {
		r.dm(ctx, userID, fmt.Sprintf(
			"Ticket #%d created in the %s category!\n\nPlease send your message now, and our staff team will respond shortly.",
			session.TicketNumber, category))
	}
}

// forwardUserMessage ensures a session exists and mirrors the DM into it.
// A stale session (channel destroyed externally) is purged and replaced,
// and the same message is forwarded into the replacement ticket.
func (r *Router) forwardUserMessage(ctx context.Context, userID, username, content, category string) {
	line := fmt.Sprintf("%s: %s", username, displayContent(content))

	for attempt := 0; attempt < 2; attempt++ {
		session, isNew, err := r.openTicket(ctx, userID, username, category)
		if err != nil {
			r.reportOpenFailure(ctx, userID, err)
			return
		}

		session, err = r.registry.RecordInboundMessage(session.ChannelID)
		if err != nil {
			// Closed between openTicket and here; the next DM starts over.
			r.logger.Warn().Str("user_id", userID).Msg("session closed while forwarding")
			return
		}

		if err := r.client.SendMessage(ctx, session.ChannelID, line); err != nil {
			if goerrors.Is(err, platform.ErrChannelNotFound) && attempt == 0 {
				r.logger.Warn().
					Str("user_id", userID).
					Str("channel_id", session.ChannelID).
					Msg("backing channel gone, replacing stale session")
				r.registry.Purge(userID)
				continue
			}
			r.externalError("sendMessage", err)
			r.dm(ctx, userID, "An error occurred. Please try again.")
			return
		}
		r.metrics.MessagesForwarded.WithLabelValues("inbound").Inc()

		if isNew {
			r.dm(ctx, userID, fmt.Sprintf(
				"Your ticket (#%d) has been created in the %s category.\n\nOur staff team will respond as soon as possible!",
				session.TicketNumber, session.Category))
		}
		return
	}
}

// openTicket returns the user's session, creating channel and session when
// none exists. Creation order matters: the channel is created before the
// registry entry so a failed external call never leaves a partial session.
func (r *Router) openTicket(ctx context.Context, userID, username, category string) (ticket.Session, bool, error) {
	if r.store.IsBlocked(userID) {
		r.metrics.BlockedAttempts.Inc()
		return ticket.Session{}, false, errors.ErrBlocked
	}

	if session, ok := r.registry.Get(userID); ok {
		return session, false, nil
	}

	if r.registry.CountByUser(userID) >= r.cfg.MaxTicketsPerUser {
		return ticket.Session{}, false, errors.ErrQuotaExceeded
	}

	number := r.stats.RecordOpen()
	name := fmt.Sprintf("ticket-%d-%s", number, sanitizeChannelName(username))
	topic := topicLine(number, userID, category, ticket.PriorityNormal, nil)

	channelID, err := r.client.CreateChannel(ctx, name, r.cfg.TicketCategory, topic)
	if err != nil {
		// The minted ticket number is burned; numbers stay unique.
		r.externalError("createChannel", err)
		return ticket.Session{}, false, errors.External("createChannel", err)
	}

	session, err := r.registry.Create(userID, channelID, number, category)
	if err != nil {
		// Lost a creation race for the same user. Drop the extra channel.
		if delErr := r.client.DeleteChannel(ctx, channelID); delErr != nil {
			r.externalError("deleteChannel", delErr)
		}
		if existing, ok := r.registry.Get(userID); ok {
			return existing, false, nil
		}
		return ticket.Session{}, false, err
	}

	if err := r.store.SaveStats(r.stats.Snapshot()); err != nil {
		r.logger.Error().Err(err).Msg("failed to persist stats after open")
	}
	r.metrics.TicketsOpened.WithLabelValues(category).Inc()
	r.metrics.OpenTickets.Set(float64(r.registry.Len()))

	r.announceNewTicket(ctx, session, username)

	r.logger.Info().
		Str("user_id", userID).
		Str("channel_id", channelID).
		Int("ticket", number).
		Str("category", category).
		Msg("ticket opened")

	return session, true, nil
}

// announceNewTicket posts the channel header (user context plus recent
// notes) and the log-channel notice. Both are best-effort.
func (r *Router) announceNewTicket(ctx context.Context, session ticket.Session, username string) {
	var lines []string
	lines = append(lines, fmt.Sprintf("New modmail ticket #%d", session.TicketNumber))
	lines = append(lines, fmt.Sprintf("User: %s (%s)", username, session.UserID))
	lines = append(lines, fmt.Sprintf("Category: %s | Priority: %s", session.Category, session.Priority))

	if profile, err := r.client.ResolveUser(ctx, session.UserID); err == nil {
		member := "No"
		if profile.Member {
			member = "Yes"
		}
		if profile.CreatedAt.IsZero() {
			lines = append(lines, "Workspace member: "+member)
		} else {
			lines = append(lines, fmt.Sprintf("Account created: %s | Workspace member: %s",
				profile.CreatedAt.Format("2006-01-02"), member))
		}
	}

	notes := r.store.RecentNotes(session.UserID, 3)
	if len(notes) == 0 {
		lines = append(lines, "Recent notes: none")
	} else {
		lines = append(lines, "Recent notes:")
		for i, n := range notes {
			lines = append(lines, fmt.Sprintf("  %d. %s by %s (%s)",
				i+1, n.Text, n.Staff, time.UnixMilli(n.Timestamp).Format("2006-01-02")))
		}
	}
	lines = append(lines, fmt.Sprintf("Use %shelp to see all commands.", r.cfg.CommandPrefix))

	if err := r.client.SendMessage(ctx, session.ChannelID, strings.Join(lines, "\n")); err != nil {
		r.externalError("sendMessage", err)
	}
	if err := r.client.PostTicketControls(ctx, session.ChannelID, session.TicketNumber); err != nil {
		r.externalError("postTicketControls", err)
	}

	r.logToChannel(ctx, fmt.Sprintf("Ticket #%d opened by %s (%s), category %s.",
		session.TicketNumber, username, session.UserID, session.Category))
}

// closeTicket is the single close entry point. Text commands, buttons,
// scheduled timers, and the inactivity sweep all route through it, so the
// registry's in-flight guard applies uniformly.
func (r *Router) closeTicket(ctx context.Context, channelID string, closer ticket.StaffRef, reason, kind string) error {
	session, err := r.registry.BeginClose(channelID)
	if err != nil {
		return err
	}

	now := r.nowFunc()
	duration := now.Sub(session.CreatedAt)

	userName := session.UserID
	if profile, perr := r.client.ResolveUser(ctx, session.UserID); perr == nil {
		userName = profile.Username
	}

	messages, err := r.client.FetchRecentMessages(ctx, channelID, r.cfg.TranscriptLimit)
	if err != nil {
		r.externalError("fetchRecentMessages", err)
		messages = nil // transcript with header only is better than no record
	}

	claimer := ""
	if session.Claimer != nil {
		claimer = session.Claimer.Name
	}
	closerName := closer.Name
	if r.cfg.AnonymousMode {
		closerName = "Staff Team"
	}

	text := transcript.Render(transcript.Meta{
		TicketNumber:      session.TicketNumber,
		User:              userName,
		UserID:            session.UserID,
		Category:          session.Category,
		Priority:          session.Priority,
		Tags:              session.Tags,
		OpenedAt:          session.CreatedAt,
		ClosedAt:          now,
		Duration:          duration,
		Claimer:           claimer,
		Closer:            closer.Name,
		Reason:            reason,
		MessageCount:      session.MessageCount,
		StaffResponses:    session.StaffResponses,
		FirstResponseTime: session.FirstResponseTime,
	}, messages)

	path := r.writeTranscript(session, text)

	r.dm(ctx, session.UserID, fmt.Sprintf(
		"Your ticket (#%d) has been closed.\nCategory: %s | Duration: %s | Closed by: %s\nReason: %s\n\nThank you for contacting us! Feel free to DM me again if you need help.",
		session.TicketNumber, session.Category, transcript.FormatDuration(duration), closerName, reason))

	r.stats.RecordClose(duration, session.FirstResponseTime)
	if err := r.store.SaveStats(r.stats.Snapshot()); err != nil {
		r.logger.Error().Err(err).Msg("failed to persist stats after close")
	}

	r.sched.Cancel(channelID)

	// Final, irrevocable step: after this no event can see the session.
	r.registry.CompleteClose(channelID)

	r.metrics.TicketsClosed.WithLabelValues(kind).Inc()
	r.metrics.OpenTickets.Set(float64(r.registry.Len()))
	r.metrics.CloseDuration.Observe(duration.Seconds())

	if err := r.client.DeleteChannel(ctx, channelID); err != nil {
		r.externalError("deleteChannel", err)
	}

	r.logToChannel(ctx, fmt.Sprintf(
		"Ticket #%d closed by %s. User: %s | Category: %s | Priority: %s | Duration: %s | Messages: %d | Staff responses: %d | Reason: %s\nTranscript: %s",
		session.TicketNumber, closer.Name, session.UserID, session.Category, session.Priority,
		transcript.FormatDuration(duration), session.MessageCount, session.StaffResponses, reason, path))

	r.logger.Info().
		Int("ticket", session.TicketNumber).
		Str("user_id", session.UserID).
		Str("closed_by", closer.Name).
		Str("kind", kind).
		Dur("duration", duration).
		Msg("ticket closed")

	return nil
}

// writeTranscript stores the rendered transcript on disk and returns the
// path, or empty on failure (logged, close proceeds).
func (r *Router) writeTranscript(session ticket.Session, text string) string {
	if err := os.MkdirAll(r.cfg.TranscriptsDir, 0o755); err != nil {
		r.logger.Error().Err(err).Msg("failed to create transcripts dir")
		return ""
	}
	name := fmt.Sprintf("ticket-%d-%s-%s.txt", session.TicketNumber, session.UserID, uuid.NewString())
	path := filepath.Join(r.cfg.TranscriptsDir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		r.logger.Error().Err(err).Msg("failed to write transcript")
		return ""
	}
	return path
}

// scheduleClose arms (or replaces) the channel's delayed close.
func (r *Router) scheduleClose(ctx context.Context, channelID string, delay time.Duration) (time.Time, error) {
	if _, err := r.registry.ByChannel(channelID); err != nil {
		return time.Time{}, err
	}
	fireAt := r.sched.Schedule(channelID, delay, func(ch string) {
		// Timer fires on its own goroutine; go through the common close
		// path so the idempotence guard applies.
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := r.closeTicket(closeCtx, ch, SystemActor, "Scheduled closure", "scheduled"); err != nil {
			r.logger.Warn().Err(err).Str("channel_id", ch).Msg("scheduled close found no session")
		}
	})
	return fireAt, nil
}

// Close closes a ticket on behalf of an external caller (the management
// API). It satisfies the mgmt.Closer interface.
func (r *Router) Close(ctx context.Context, channelID string, actor ticket.StaffRef, reason string) error {
	return r.closeTicket(ctx, channelID, actor, reason, "api")
}

// RunInactivitySweep closes tickets idle past the configured threshold.
// Blocks until ctx is cancelled.
func (r *Router) RunInactivitySweep(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.InactivitySweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepInactive(ctx)
		}
	}
}

func (r *Router) sweepInactive(ctx context.Context) {
	cutoff := r.nowFunc().Add(-r.cfg.AutoCloseInactiveAfter)
	for _, session := range r.registry.OpenSessions() {
		if session.LastActivity.After(cutoff) {
			continue
		}
		if err := r.closeTicket(ctx, session.ChannelID, SystemActor,
			"Automatically closed due to inactivity", "inactivity"); err != nil {
			r.logger.Warn().Err(err).
				Str("channel_id", session.ChannelID).
				Msg("inactivity close found no session")
		}
	}
}

// dm sends a best-effort direct message: delivery failures are logged and
// swallowed, never propagated.
func (r *Router) dm(ctx context.Context, userID, content string) {
	if err := r.client.SendDirectMessage(ctx, userID, content); err != nil {
		r.logger.Warn().Err(err).Str("user_id", userID).Msg("could not DM user")
		r.metrics.ExternalErrors.WithLabelValues("sendDirectMessage").Inc()
	}
}

// logToChannel posts a best-effort notice to the configured log channel.
func (r *Router) logToChannel(ctx context.Context, content string) {
	if r.cfg.LogChannel == "" {
		return
	}
	channelID, err := r.client.ResolveChannelByName(ctx, r.cfg.LogChannel)
	if err != nil {
		r.logger.Warn().Err(err).Str("channel", r.cfg.LogChannel).Msg("log channel unavailable")
		return
	}
	if err := r.client.SendMessage(ctx, channelID, content); err != nil {
		r.externalError("sendMessage", err)
	}
}

func (r *Router) externalError(capability string, err error) {
	r.logger.Error().Err(err).Str("capability", capability).Msg("external call failed")
	r.metrics.ExternalErrors.WithLabelValues(capability).Inc()
}

func (r *Router) reportOpenFailure(ctx context.Context, userID string, err error) {
	switch {
	case goerrors.Is(err, errors.ErrBlocked):
		r.dm(ctx, userID, "You are currently blocked from creating modmail tickets. Please contact an administrator.")
	case goerrors.Is(err, errors.ErrQuotaExceeded):
		r.dm(ctx, userID, fmt.Sprintf(
			"You already have %d open tickets. Please close an existing ticket before opening a new one.",
			r.cfg.MaxTicketsPerUser))
	default:
		r.logger.Error().Err(err).Str("user_id", userID).Msg("ticket creation failed")
		r.dm(ctx, userID, "An error occurred creating your ticket. Please try again.")
	}
}

func topicLine(number int, userID, category string, priority ticket.Priority, claimer *ticket.StaffRef) string {
	topic := fmt.Sprintf("Ticket #%d | User: %s | Category: %s | Priority: %s",
		number, userID, category, priority)
	if claimer != nil {
		topic += " | Claimed by: " + claimer.Name
	}
	return topic
}

func (r *Router) refreshTopic(ctx context.Context, session ticket.Session) {
	topic := topicLine(session.TicketNumber, session.UserID, session.Category, session.Priority, session.Claimer)
	if err := r.client.SetChannelTopic(ctx, session.ChannelID, topic); err != nil {
		r.externalError("setChannelTopic", err)
	}
}

func sanitizeChannelName(username string) string {
	return channelNameSanitizer.ReplaceAllString(strings.ToLower(username), "")
}

func displayContent(content string) string {
	if strings.TrimSpace(content) == "" {
		return "[No text content]"
	}
	return content
}
