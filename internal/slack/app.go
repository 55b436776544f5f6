package slack

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

// App is the Slack connection using Socket Mode.
type App struct {
	api     *slack.Client
	socket  *socketmode.Client
	client  *Client
	handler *Handler
	logger  zerolog.Logger
}

// NewApp creates the Slack app: Web API client, Socket Mode client, and the
// platform adapter. The event handler is attached via Attach once the sink
// exists (the sink needs the platform client first).
func NewApp(botToken, appToken string, logger zerolog.Logger) *App {
	api := slack.New(
		botToken,
		slack.OptionAppLevelToken(appToken),
	)
	socket := socketmode.New(api)

	return &App{
		api:    api,
		socket: socket,
		client: NewClient(api, logger),
		logger: logger.With().Str("component", "slack").Logger(),
	}
}

// Client returns the platform adapter backed by this app's API client.
func (a *App) Client() *Client {
	return a.client
}

// Attach wires the event sink in and prepares the handler.
func (a *App) Attach(sink EventSink) {
	a.handler = NewHandler(sink, a.client, a.logger)
	a.handler.SetSocket(a.socket)
}

// Run starts the Socket Mode event loop. Blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.handler == nil {
		return fmt.Errorf("slack app started without an event sink")
	}

	auth, err := a.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	a.handler.SetBotUserID(auth.UserID)
	a.logger.Info().Str("bot_user", auth.UserID).Msg("starting Slack Socket Mode connection")

	go func() {
		for evt := range a.socket.Events {
			a.handler.HandleEvent(ctx, evt)
		}
	}()

	go func() {
		<-ctx.Done()
		a.logger.Info().Msg("shutting down Slack Socket Mode")
	}()

	if err := a.socket.RunContext(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("socket mode error: %w", err)
	}
	return nil
}
