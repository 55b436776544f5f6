// Package platform defines the chat-platform capabilities the core invokes.
// Adapters (internal/slack) implement Client; the core never imports a
// platform SDK directly.
package platform

import (
	"context"
	"errors"
	"time"
)

// ErrChannelNotFound is returned by adapters when a capability targets a
// channel that no longer exists on the platform. The core uses it to
// detect stale sessions.
var ErrChannelNotFound = errors.New("channel not found")

// ErrDMClosed is returned by adapters when a user cannot receive direct
// messages.
var ErrDMClosed = errors.New("user direct messages unavailable")

// Message is one message in a ticket channel's history.
type Message struct {
	AuthorID  string
	Author    string
	Content   string
	Timestamp time.Time
}

// UserProfile is the resolved identity of an end user.
type UserProfile struct {
	ID          string
	Username    string
	DisplayName string
	CreatedAt   time.Time
	Member      bool // member of the support workspace/guild
}

// Client is the set of platform capabilities the core depends on.
type Client interface {
	// CreateChannel creates a staff-visible ticket channel under the given
	// parent category and returns its ID.
	CreateChannel(ctx context.Context, name, parent, topic string) (string, error)

	// SendMessage posts content into a channel.
	SendMessage(ctx context.Context, channelID, content string) error

	// SendDirectMessage delivers content to a user's DM conversation.
	SendDirectMessage(ctx context.Context, userID, content string) error

	// FetchRecentMessages returns up to limit messages from a channel,
	// oldest first.
	FetchRecentMessages(ctx context.Context, channelID string, limit int) ([]Message, error)

	// DeleteChannel removes (or archives, depending on platform) a channel.
	DeleteChannel(ctx context.Context, channelID string) error

	// SetChannelTopic replaces a channel's topic line.
	SetChannelTopic(ctx context.Context, channelID, topic string) error

	// ResolveUser looks up a user's profile by ID.
	ResolveUser(ctx context.Context, userID string) (UserProfile, error)

	// ResolveChannelByName finds a channel ID by its display name
	// (used for the transcript log channel).
	ResolveChannelByName(ctx context.Context, name string) (string, error)

	// PromptCategory asks a user to pick a ticket category, using
	// whatever selection UI the platform offers.
	PromptCategory(ctx context.Context, userID string, categories []string) error

	// PostTicketControls posts the interactive staff controls (claim,
	// close, priority, delayed close) into a ticket channel. Platforms
	// without interactive components may make this a no-op.
	PostTicketControls(ctx context.Context, channelID string, ticketNumber int) error
}
