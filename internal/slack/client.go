// Package slack adapts the Slack API (Socket Mode plus Web API) to the
// platform capabilities the ticket router depends on.
package slack

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/p-blackswan/modmail-agent/internal/platform"
	"github.com/p-blackswan/modmail-agent/internal/retry"
)

// API is the subset of the Slack Web API the client uses.
type API interface {
	CreateConversationContext(ctx context.Context, params slack.CreateConversationParams) (*slack.Channel, error)
	ArchiveConversationContext(ctx context.Context, channelID string) error
	SetTopicOfConversationContext(ctx context.Context, channelID, topic string) (*slack.Channel, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	GetConversationsContext(ctx context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
}

// Client implements platform.Client on top of the Slack Web API.
//
// Slack has no channel categories and bots cannot delete channels, so the
// parent parameter is ignored and DeleteChannel archives instead.
type Client struct {
	api      API
	logger   zerolog.Logger
	retryCfg retry.Config

	mu      sync.Mutex
	dmCache map[string]string // userID -> IM channel ID
}

// NewClient creates a Client over the given Slack API.
func NewClient(api API, logger zerolog.Logger) *Client {
	return &Client{
		api:      api,
		logger:   logger.With().Str("component", "slack.client").Logger(),
		retryCfg: retry.Config{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Jitter: true},
		dmCache:  make(map[string]string),
	}
}

// post sends a message with backoff on Slack rate limiting.
func (c *Client) post(ctx context.Context, channelID string, opts ...slack.MsgOption) error {
	err := retry.Do(ctx, c.retryCfg, isRateLimited, func(ctx context.Context) error {
		_, _, err := c.api.PostMessageContext(ctx, channelID, opts...)
		return err
	})
	return mapError(err)
}

func isRateLimited(err error) bool {
	var rle *slack.RateLimitedError
	return errors.As(err, &rle)
}

// CreateChannel creates a private channel for a ticket.
func (c *Client) CreateChannel(ctx context.Context, name, _, topic string) (string, error) {
	channel, err := c.api.CreateConversationContext(ctx, slack.CreateConversationParams{
		ChannelName: name,
		IsPrivate:   true,
	})
	if err != nil {
		return "", mapError(err)
	}
	if topic != "" {
		if _, err := c.api.SetTopicOfConversationContext(ctx, channel.ID, topic); err != nil {
			c.logger.Warn().Err(err).Str("channel_id", channel.ID).Msg("could not set topic")
		}
	}
	return channel.ID, nil
}

func (c *Client) SendMessage(ctx context.Context, channelID, content string) error {
	return c.post(ctx, channelID, slack.MsgOptionText(content, false))
}

func (c *Client) SendDirectMessage(ctx context.Context, userID, content string) error {
	dm, err := c.dmChannel(ctx, userID)
	if err != nil {
		return err
	}
	return c.post(ctx, dm, slack.MsgOptionText(content, false))
}

func (c *Client) dmChannel(ctx context.Context, userID string) (string, error) {
	c.mu.Lock()
	if id, ok := c.dmCache[userID]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	channel, _, _, err := c.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{userID},
	})
	if err != nil {
		return "", mapError(err)
	}

	c.mu.Lock()
	c.dmCache[userID] = channel.ID
	c.mu.Unlock()
	return channel.ID, nil
}

// FetchRecentMessages returns up to limit channel messages, oldest first.
func (c *Client) FetchRecentMessages(ctx context.Context, channelID string, limit int) ([]platform.Message, error) {
	resp, err := c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     limit,
	})
	if err != nil {
		return nil, mapError(err)
	}

	out := make([]platform.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		author := m.User
		if author == "" {
			author = m.Username
		}
		out = append(out, platform.Message{
			AuthorID:  m.User,
			Author:    author,
			Content:   m.Text,
			Timestamp: parseSlackTimestamp(m.Timestamp),
		})
	}
	// History arrives newest first.
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// DeleteChannel archives the channel. Slack bots cannot hard-delete.
func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	return mapError(c.api.ArchiveConversationContext(ctx, channelID))
}

func (c *Client) SetChannelTopic(ctx context.Context, channelID, topic string) error {
	_, err := c.api.SetTopicOfConversationContext(ctx, channelID, topic)
	return mapError(err)
}

func (c *Client) ResolveUser(ctx context.Context, userID string) (platform.UserProfile, error) {
	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return platform.UserProfile{}, mapError(err)
	}

	display := user.Profile.DisplayName
	if display == "" {
		display = user.RealName
	}
	return platform.UserProfile{
		ID:          user.ID,
		Username:    user.Name,
		DisplayName: display,
		Member:      !user.Deleted && !user.IsStranger,
	}, nil
}

// ResolveChannelByName pages through the workspace channel list.
func (c *Client) ResolveChannelByName(ctx context.Context, name string) (string, error) {
	cursor := ""
	for {
		channels, next, err := c.api.GetConversationsContext(ctx, &slack.GetConversationsParameters{
			Types:           []string{"public_channel", "private_channel"},
			Cursor:          cursor,
			Limit:           200,
			ExcludeArchived: true,
		})
		if err != nil {
			return "", mapError(err)
		}
		for _, ch := range channels {
			if ch.Name == name {
				return ch.ID, nil
			}
		}
		if next == "" {
			return "", platform.ErrChannelNotFound
		}
		cursor = next
	}
}

// PromptCategory DMs the user a category select menu.
func (c *Client) PromptCategory(ctx context.Context, userID string, categories []string) error {
	dm, err := c.dmChannel(ctx, userID)
	if err != nil {
		return err
	}
	return c.post(ctx, dm, slack.MsgOptionBlocks(BuildCategoryPrompt(categories)...))
}

// PostTicketControls posts the interactive staff controls into a ticket channel.
func (c *Client) PostTicketControls(ctx context.Context, channelID string, ticketNumber int) error {
	return c.post(ctx, channelID, slack.MsgOptionBlocks(BuildTicketControls(ticketNumber)...))
}

// parseSlackTimestamp converts a Slack "seconds.micros" timestamp.
func parseSlackTimestamp(ts string) time.Time {
	parts := strings.SplitN(ts, ".", 2)
	secs, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}
	}
	var micros int64
	if len(parts) == 2 {
		micros, _ = strconv.ParseInt(parts[1], 10, 64)
	}
	return time.Unix(secs, micros*int64(time.Microsecond))
}

// mapError normalizes Slack API errors onto the platform sentinels the
// router branches on. Slack reports errors as bare strings.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch err.Error() {
	case "channel_not_found", "is_archived", "not_in_channel":
		return platform.ErrChannelNotFound
	case "cannot_dm_bot", "user_disabled", "messages_tab_disabled", "user_not_found":
		return platform.ErrDMClosed
	}
	return err
}
