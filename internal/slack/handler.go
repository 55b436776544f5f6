package slack

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/p-blackswan/modmail-agent/internal/platform"
	"github.com/p-blackswan/modmail-agent/internal/ticket"
)

// EventSink receives the semantic events translated from Slack payloads.
// Implemented by the ticket router.
type EventSink interface {
	HandleUserMessage(ctx context.Context, userID, username, content string)
	HandleCategorySelect(ctx context.Context, userID, username, category string)
	HandleStaffMessage(ctx context.Context, channelID string, staff ticket.StaffRef, content string)
	HandleClaimAction(ctx context.Context, channelID string, staff ticket.StaffRef)
	HandleCloseAction(ctx context.Context, channelID string, staff ticket.StaffRef)
	HandlePrioritySelect(ctx context.Context, channelID, value string)
	HandleScheduleSelect(ctx context.Context, channelID string, delay time.Duration)
}

// UserDirectory resolves Slack user IDs to profiles. Implemented by Client.
type UserDirectory interface {
	ResolveUser(ctx context.Context, userID string) (platform.UserProfile, error)
}

// Handler translates Socket Mode events into EventSink calls. DMs become
// user messages, channel messages become staff messages, and block actions
// become the matching ticket transitions.
type Handler struct {
	sink      EventSink
	directory UserDirectory
	socket    *socketmode.Client
	botUserID string
	logger    zerolog.Logger
}

// NewHandler creates an event handler.
func NewHandler(sink EventSink, directory UserDirectory, logger zerolog.Logger) *Handler {
	return &Handler{
		sink:      sink,
		directory: directory,
		logger:    logger.With().Str("component", "slack.handler").Logger(),
	}
}

// SetSocket sets the Socket Mode client for acknowledging events.
func (h *Handler) SetSocket(s *socketmode.Client) {
	h.socket = s
}

// SetBotUserID records the bot's own user ID so its messages are skipped.
func (h *Handler) SetBotUserID(id string) {
	h.botUserID = id
}

// HandleEvent routes Socket Mode events to the appropriate handler.
func (h *Handler) HandleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		h.handleEventsAPI(ctx, evt)
	case socketmode.EventTypeInteractive:
		h.handleInteraction(ctx, evt)
	default:
		h.logger.Debug().Str("type", string(evt.Type)).Msg("unhandled event type")
	}
}

func (h *Handler) handleEventsAPI(ctx context.Context, evt socketmode.Event) {
	// Slack requires an ack within 3 seconds.
	if h.socket != nil && evt.Request != nil {
		h.socket.Ack(*evt.Request)
	}

	eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		h.logger.Warn().Str("type", string(evt.Type)).Msg("failed to cast events_api data")
		return
	}
	if eventsAPIEvent.Type != slackevents.CallbackEvent {
		return
	}

	switch ev := eventsAPIEvent.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		h.handleMessage(ctx, ev)
	default:
		h.logger.Debug().
			Str("inner_type", eventsAPIEvent.InnerEvent.Type).
			Msg("unhandled callback event type")
	}
}

func (h *Handler) handleMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	// Skip bot messages and message_changed/deleted subtypes.
	if ev.User == "" || ev.User == h.botUserID || ev.BotID != "" || ev.SubType != "" {
		return
	}

	if ev.ChannelType == "im" {
		h.logger.Debug().Str("user", ev.User).Msg("DM received")
		h.sink.HandleUserMessage(ctx, ev.User, h.userName(ctx, ev.User), ev.Text)
		return
	}

	h.sink.HandleStaffMessage(ctx, ev.Channel, h.staffRef(ctx, ev.User), ev.Text)
}

func (h *Handler) handleInteraction(ctx context.Context, evt socketmode.Event) {
	if h.socket != nil && evt.Request != nil {
		h.socket.Ack(*evt.Request)
	}

	callback, ok := evt.Data.(slack.InteractionCallback)
	if !ok {
		return
	}

	for _, action := range callback.ActionCallback.BlockActions {
		h.logger.Info().
			Str("action", action.ActionID).
			Str("user", callback.User.ID).
			Msg("interaction received")

		switch action.ActionID {
		case actionCategorySelect:
			h.sink.HandleCategorySelect(ctx, callback.User.ID,
				h.userName(ctx, callback.User.ID), action.SelectedOption.Value)
		case actionClaim:
			h.sink.HandleClaimAction(ctx, callback.Channel.ID, h.staffRef(ctx, callback.User.ID))
		case actionClose:
			h.sink.HandleCloseAction(ctx, callback.Channel.ID, h.staffRef(ctx, callback.User.ID))
		case actionPriority:
			h.sink.HandlePrioritySelect(ctx, callback.Channel.ID, action.SelectedOption.Value)
		case actionSchedule:
			delay, err := time.ParseDuration(action.SelectedOption.Value)
			if err != nil {
				h.logger.Warn().Str("value", action.SelectedOption.Value).Msg("bad schedule option")
				continue
			}
			h.sink.HandleScheduleSelect(ctx, callback.Channel.ID, delay)
		}
	}
}

func (h *Handler) userName(ctx context.Context, userID string) string {
	profile, err := h.directory.ResolveUser(ctx, userID)
	if err != nil {
		h.logger.Warn().Err(err).Str("user", userID).Msg("could not resolve user")
		return userID
	}
	if profile.DisplayName != "" {
		return profile.DisplayName
	}
	return profile.Username
}

func (h *Handler) staffRef(ctx context.Context, userID string) ticket.StaffRef {
	return ticket.StaffRef{ID: userID, Name: h.userName(ctx, userID)}
}
