package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "-", cfg.CommandPrefix)
	assert.Equal(t, 3, cfg.MaxTicketsPerUser)
	assert.Equal(t, 5, cfg.RateLimitMessages)
	assert.Equal(t, 60*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, 72*time.Hour, cfg.AutoCloseInactiveAfter)
	assert.True(t, cfg.RequireCategory)
	assert.False(t, cfg.AnonymousMode)
	assert.Equal(t, "api-key", cfg.MgmtAuthMode)
	assert.Contains(t, cfg.Categories, "Technical Issue")
	assert.False(t, cfg.PlatformEnabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MODMAIL_PREFIX", "!")
	t.Setenv("MODMAIL_MAX_TICKETS_PER_USER", "1")
	t.Setenv("MODMAIL_ADMIN_USERS", "U100, U200")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "!", cfg.CommandPrefix)
	assert.Equal(t, 1, cfg.MaxTicketsPerUser)
	assert.Equal(t, []string{"U100", "U200"}, cfg.AdminUserList())
	assert.True(t, cfg.IsAdmin("U200"))
	assert.False(t, cfg.IsAdmin("U300"))
}

func TestLoad_InvalidAuthMode(t *testing.T) {
	t.Setenv("MGMT_AUTH_MODE", "kerberos")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MGMT_AUTH_MODE")
}

func TestLoad_JWTModeRequiresSecret(t *testing.T) {
	t.Setenv("MGMT_AUTH_MODE", "jwt")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MGMT_JWT_SECRET")
}

func TestLoad_Profile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	profile := `
categories:
  - Billing
  - Abuse
admins:
  - U900
snippets:
  Greeting: "Hello! How can we help?"
`
	require.NoError(t, os.WriteFile(path, []byte(profile), 0o644))
	t.Setenv("MODMAIL_PROFILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"Billing", "Abuse"}, cfg.Categories)
	assert.True(t, cfg.ValidCategory("Abuse"))
	assert.False(t, cfg.ValidCategory("Technical Issue"))
	assert.Equal(t, "Billing", cfg.DefaultCategory())
	assert.True(t, cfg.IsAdmin("U900"))
	assert.Equal(t, "Hello! How can we help?", cfg.SeedSnippets["greeting"])
}

func TestLoad_ProfileEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("admins: [U900]\n"), 0o644))
	t.Setenv("MODMAIL_PROFILE", path)
	t.Setenv("MODMAIL_ADMIN_USERS", "U111")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsAdmin("U111"))
	assert.False(t, cfg.IsAdmin("U900"))
}
