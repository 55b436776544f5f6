package slack

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/modmail-agent/internal/platform"
)

// fakeAPI is an in-memory Slack Web API.
type fakeAPI struct {
	channels    map[string]slack.Channel
	posted      map[string][]string
	history     map[string][]slack.Message
	users       map[string]slack.User
	dmOpened    []string
	nextChannel int

	createErr    error
	postErr      error
	postFailures int // fail this many posts before succeeding
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		channels: make(map[string]slack.Channel),
		posted:   make(map[string][]string),
		history:  make(map[string][]slack.Message),
		users:    make(map[string]slack.User),
	}
}

func (f *fakeAPI) CreateConversationContext(_ context.Context, params slack.CreateConversationParams) (*slack.Channel, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextChannel++
	ch := slack.Channel{}
	ch.ID = "C" + params.ChannelName
	ch.Name = params.ChannelName
	f.channels[ch.ID] = ch
	return &ch, nil
}

func (f *fakeAPI) ArchiveConversationContext(_ context.Context, channelID string) error {
	if _, ok := f.channels[channelID]; !ok {
		return errors.New("channel_not_found")
	}
	delete(f.channels, channelID)
	return nil
}

func (f *fakeAPI) SetTopicOfConversationContext(_ context.Context, channelID, topic string) (*slack.Channel, error) {
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, errors.New("channel_not_found")
	}
	return &ch, nil
}

func (f *fakeAPI) PostMessageContext(_ context.Context, channelID string, _ ...slack.MsgOption) (string, string, error) {
	if f.postFailures > 0 {
		f.postFailures--
		return "", "", &slack.RateLimitedError{RetryAfter: time.Millisecond}
	}
	if f.postErr != nil {
		return "", "", f.postErr
	}
	f.posted[channelID] = append(f.posted[channelID], "msg")
	return channelID, "1.0", nil
}

func (f *fakeAPI) OpenConversationContext(_ context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error) {
	f.dmOpened = append(f.dmOpened, params.Users[0])
	ch := slack.Channel{}
	ch.ID = "D" + params.Users[0]
	return &ch, false, false, nil
}

func (f *fakeAPI) GetConversationHistoryContext(_ context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
	return &slack.GetConversationHistoryResponse{
		Messages: f.history[params.ChannelID],
	}, nil
}

func (f *fakeAPI) GetConversationsContext(_ context.Context, _ *slack.GetConversationsParameters) ([]slack.Channel, string, error) {
	out := make([]slack.Channel, 0, len(f.channels))
	for _, ch := range f.channels {
		out = append(out, ch)
	}
	return out, "", nil
}

func (f *fakeAPI) GetUserInfoContext(_ context.Context, user string) (*slack.User, error) {
	u, ok := f.users[user]
	if !ok {
		return nil, errors.New("user_not_found")
	}
	return &u, nil
}

func TestClient_CreateChannel(t *testing.T) {
	api := newFakeAPI()
	c := NewClient(api, zerolog.Nop())

	id, err := c.CreateChannel(context.Background(), "ticket-1-alice", "ignored", "topic")
	require.NoError(t, err)
	assert.Equal(t, "Cticket-1-alice", id)
}

func TestClient_SendDirectMessage_CachesDMChannel(t *testing.T) {
	api := newFakeAPI()
	c := NewClient(api, zerolog.Nop())

	require.NoError(t, c.SendDirectMessage(context.Background(), "U1", "hello"))
	require.NoError(t, c.SendDirectMessage(context.Background(), "U1", "again"))

	assert.Equal(t, []string{"U1"}, api.dmOpened, "conversations.open called once")
	assert.Len(t, api.posted["DU1"], 2)
}

func TestClient_FetchRecentMessages_OldestFirst(t *testing.T) {
	api := newFakeAPI()
	newMsg := func(user, text, ts string) slack.Message {
		var m slack.Message
		m.User = user
		m.Text = text
		m.Timestamp = ts
		return m
	}
	api.history["C1"] = []slack.Message{
		newMsg("U2", "newest", "1700000200.000100"),
		newMsg("U1", "oldest", "1700000100.000100"),
	}
	c := NewClient(api, zerolog.Nop())

	msgs, err := c.FetchRecentMessages(context.Background(), "C1", 100)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "oldest", msgs[0].Content)
	assert.Equal(t, "newest", msgs[1].Content)
}

func TestClient_DeleteChannelArchives(t *testing.T) {
	api := newFakeAPI()
	c := NewClient(api, zerolog.Nop())
	id, err := c.CreateChannel(context.Background(), "ticket-2-bob", "", "")
	require.NoError(t, err)

	require.NoError(t, c.DeleteChannel(context.Background(), id))
	err = c.DeleteChannel(context.Background(), id)
	assert.ErrorIs(t, err, platform.ErrChannelNotFound)
}

func TestClient_ResolveChannelByName(t *testing.T) {
	api := newFakeAPI()
	c := NewClient(api, zerolog.Nop())
	id, err := c.CreateChannel(context.Background(), "transcripts", "", "")
	require.NoError(t, err)

	got, err := c.ResolveChannelByName(context.Background(), "transcripts")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = c.ResolveChannelByName(context.Background(), "missing")
	assert.ErrorIs(t, err, platform.ErrChannelNotFound)
}

func TestClient_ResolveUser(t *testing.T) {
	api := newFakeAPI()
	u := slack.User{ID: "U1", Name: "alice"}
	u.Profile.DisplayName = "Alice A."
	api.users["U1"] = u
	c := NewClient(api, zerolog.Nop())

	profile, err := c.ResolveUser(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, "Alice A.", profile.DisplayName)
	assert.True(t, profile.Member)

	_, err = c.ResolveUser(context.Background(), "U404")
	assert.ErrorIs(t, err, platform.ErrDMClosed)
}

func TestClient_PostRetriesRateLimit(t *testing.T) {
	api := newFakeAPI()
	api.postFailures = 2
	c := NewClient(api, zerolog.Nop())
	c.retryCfg.BaseDelay = time.Millisecond
	c.retryCfg.Jitter = false

	require.NoError(t, c.SendMessage(context.Background(), "C1", "hello"))
	assert.Len(t, api.posted["C1"], 1)
}

func TestMapError(t *testing.T) {
	assert.Nil(t, mapError(nil))
	assert.ErrorIs(t, mapError(errors.New("channel_not_found")), platform.ErrChannelNotFound)
	assert.ErrorIs(t, mapError(errors.New("is_archived")), platform.ErrChannelNotFound)
	assert.ErrorIs(t, mapError(errors.New("messages_tab_disabled")), platform.ErrDMClosed)

	opaque := errors.New("internal_error")
	assert.Equal(t, opaque, mapError(opaque))
}

func TestParseSlackTimestamp(t *testing.T) {
	ts := parseSlackTimestamp("1700000100.000500")
	assert.Equal(t, time.Unix(1700000100, 500*int64(time.Microsecond)), ts)
	assert.True(t, parseSlackTimestamp("garbage").IsZero())
}
