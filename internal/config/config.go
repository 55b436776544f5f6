// Package config loads modmail bridge configuration from the environment
// and an optional YAML bot profile.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Chat platform (Slack Socket Mode)
	BotToken string `envconfig:"MODMAIL_BOT_TOKEN"`
	AppToken string `envconfig:"MODMAIL_APP_TOKEN"` // xapp- token for Socket Mode

	// Ticketing
	CommandPrefix     string `envconfig:"MODMAIL_PREFIX" default:"-"`
	TicketCategory    string `envconfig:"MODMAIL_CATEGORY" default:"Call-Center"`
	LogChannel        string `envconfig:"MODMAIL_LOG_CHANNEL" default:"transcripts"`
	AdminUsers        string `envconfig:"MODMAIL_ADMIN_USERS"` // comma-separated user IDs
	MaxTicketsPerUser int    `envconfig:"MODMAIL_MAX_TICKETS_PER_USER" default:"3"`
	RequireCategory   bool   `envconfig:"MODMAIL_REQUIRE_CATEGORY" default:"true"`
	AnonymousMode     bool   `envconfig:"MODMAIL_ANONYMOUS" default:"false"`

	// Rate limiting (per-user DM throttle)
	RateLimitMessages int           `envconfig:"MODMAIL_RATE_LIMIT_MESSAGES" default:"5"`
	RateLimitWindow   time.Duration `envconfig:"MODMAIL_RATE_LIMIT_WINDOW" default:"60s"`

	// Automatic closure
	AutoCloseInactiveAfter time.Duration `envconfig:"MODMAIL_AUTO_CLOSE_AFTER" default:"72h"`
	InactivitySweepEvery   time.Duration `envconfig:"MODMAIL_INACTIVITY_SWEEP" default:"1h"`

	// Storage
	DataDir        string `envconfig:"MODMAIL_DATA_DIR" default:"data"`
	TranscriptsDir string `envconfig:"MODMAIL_TRANSCRIPTS_DIR" default:"transcripts"`
	ProfilePath    string `envconfig:"MODMAIL_PROFILE" default:""` // optional YAML bot profile

	// Transcript history fetch cap
	TranscriptLimit int `envconfig:"MODMAIL_TRANSCRIPT_LIMIT" default:"100"`

	// Management API
	MgmtListenAddr     string `envconfig:"MGMT_LISTEN_ADDR" default:":8090"`
	MgmtAuthMode       string `envconfig:"MGMT_AUTH_MODE" default:"api-key"` // "api-key", "jwt", "none"
	MgmtAPIKey         string `envconfig:"MGMT_API_KEY"`
	MgmtJWTSecret      string `envconfig:"MGMT_JWT_SECRET"`
	MgmtRateLimitRPS   int    `envconfig:"MGMT_RATE_LIMIT_RPS" default:"100"`
	MgmtRateLimitBurst int    `envconfig:"MGMT_RATE_LIMIT_BURST" default:"200"`
	MgmtCORSOrigins    string `envconfig:"MGMT_CORS_ORIGINS"`

	// Profile-shaped settings, populated by the YAML profile when present.
	// Defaults match a bare deployment with no profile file.
	Categories   []string          `ignored:"true"`
	SeedSnippets map[string]string `ignored:"true"`
}

// Load reads configuration from the environment, then overlays the YAML
// bot profile if one is configured.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	cfg.Categories = defaultCategories()

	if cfg.ProfilePath != "" {
		if err := cfg.applyProfile(cfg.ProfilePath); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.MaxTicketsPerUser < 1 {
		return fmt.Errorf("MODMAIL_MAX_TICKETS_PER_USER must be >= 1, got %d", c.MaxTicketsPerUser)
	}
	if c.RateLimitMessages < 1 {
		return fmt.Errorf("MODMAIL_RATE_LIMIT_MESSAGES must be >= 1, got %d", c.RateLimitMessages)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("MODMAIL_RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimitWindow)
	}
	if c.RequireCategory && len(c.Categories) == 0 {
		return fmt.Errorf("MODMAIL_REQUIRE_CATEGORY is set but no categories are configured")
	}
	switch c.MgmtAuthMode {
	case "api-key", "jwt", "none":
	default:
		return fmt.Errorf("unknown MGMT_AUTH_MODE %q", c.MgmtAuthMode)
	}
	if c.MgmtAuthMode == "jwt" && c.MgmtJWTSecret == "" {
		return fmt.Errorf("MGMT_AUTH_MODE=jwt requires MGMT_JWT_SECRET")
	}
	return nil
}

// PlatformEnabled returns true if chat-platform tokens are configured.
// Without them the bridge starts in mgmt-only mode.
func (c *Config) PlatformEnabled() bool {
	return c.BotToken != "" && c.AppToken != ""
}

// AdminUserList returns the parsed list of admin user IDs.
func (c *Config) AdminUserList() []string {
	if c.AdminUsers == "" {
		return nil
	}
	parts := strings.Split(c.AdminUsers, ",")
	admins := make([]string, 0, len(parts))
	for _, id := range parts {
		id = strings.TrimSpace(id)
		if id != "" {
			admins = append(admins, id)
		}
	}
	return admins
}

// IsAdmin reports whether userID is a configured admin.
func (c *Config) IsAdmin(userID string) bool {
	for _, id := range c.AdminUserList() {
		if id == userID {
			return true
		}
	}
	return false
}

// ValidCategory reports whether name is one of the configured categories.
func (c *Config) ValidCategory(name string) bool {
	for _, cat := range c.Categories {
		if cat == name {
			return true
		}
	}
	return false
}

// DefaultCategory is the category assigned when selection is not required.
func (c *Config) DefaultCategory() string {
	if len(c.Categories) > 0 {
		return c.Categories[0]
	}
	return "General Support"
}

func defaultCategories() []string {
	return []string{
		"General Support",
		"Technical Issue",
		"Report User",
		"Partnership",
		"Other",
	}
}
