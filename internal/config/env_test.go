package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable FromEnv reads so the host environment
// does not leak into assertions.
func clearEnv(t *testing.T) {
	for _, k := range []string{
		"ADDR", "PORT", "SITE_URL", "BASE_PATH", "ALLOWED_ORIGINS",
		"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "JWT_SECRET", "ALLOWED_EMAILS",
		"GITHUB_TOKEN", "GITHUB_REPO", "GITHUB_BRANCH", "GITHUB_API_URL", "GITHUB_MAX_ATTEMPTS",
		"STORAGE", "GCP_PROJECT", "FIRESTORE_DATABASE", "FIRESTORE_COLLECTION_PREFIX",
		"ENCRYPTION_KEY", "REPLAY_PROTECTION", "SESSION_TTL", "CLEANUP_INTERVAL",
	} {
		t.Setenv(k, "")
	}
}

func TestFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SITE_URL", "https://studio.example")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ALLOWED_EMAILS", "a@x.com,B@x.com")
	t.Setenv("GITHUB_REPO", "studio/site")
	t.Setenv("GITHUB_BRANCH", "live")
	t.Setenv("PORT", "9000")
	t.Setenv("SESSION_TTL", "1h")

	cfg, err := FromEnv(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, Secret("secret"), cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"a@x.com", "B@x.com"}, cfg.Auth.AllowedEmails)
	assert.Equal(t, "live", cfg.GitHub.Branch)
	assert.Equal(t, time.Hour, cfg.Auth.SessionTTL)
	assert.True(t, cfg.Auth.ReplayProtection)
	assert.Empty(t, cfg.GitHub.Token, "missing values stay empty")
}

func TestFromEnvLoadsDotenv(t *testing.T) {
	clearEnv(t)
	// godotenv does not override variables that are already set, even to "".
	require.NoError(t, os.Unsetenv("GOOGLE_CLIENT_ID"))
	require.NoError(t, os.Unsetenv("REPLAY_PROTECTION"))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("GOOGLE_CLIENT_ID=from-dotenv\nREPLAY_PROTECTION=false\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("GOOGLE_CLIENT_ID")
		_ = os.Unsetenv("REPLAY_PROTECTION")
	})

	cfg, err := FromEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Auth.GoogleClientID)
	assert.False(t, cfg.Auth.ReplayProtection)
}

func TestFromEnvInvalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORAGE", "redis")

	_, err := FromEnv(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.kind")
}
