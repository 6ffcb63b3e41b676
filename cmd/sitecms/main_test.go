package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/studio-arteamo/sitecms/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratedConfigValidatesAndLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, generateDefaultConfig(path))

	var out bytes.Buffer
	require.NoError(t, validateConfig(&out, path))
	assert.Contains(t, out.String(), "Result: PASS")

	t.Setenv("SITE_URL", "https://studio.example")
	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "client-secret")
	t.Setenv("JWT_SECRET", "a-signing-secret-that-is-long-enough")
	t.Setenv("ALLOWED_EMAILS", "a@x.com, b@x.com")
	t.Setenv("GITHUB_TOKEN", "ghp_token")
	t.Setenv("GITHUB_REPO", "studio/site")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://studio.example", cfg.SiteURL)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, cfg.Auth.AllowedEmails)
	assert.Equal(t, "studio/site", cfg.GitHub.Repo)
	assert.True(t, cfg.Auth.ReplayProtection)
}

func TestValidateConfigReportsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"v0","auth":{},"github":{"repo":"$GITHUB_REPO"}}`), 0o644))

	var out bytes.Buffer
	err := validateConfig(&out, path)
	require.Error(t, err)
	assert.Contains(t, out.String(), "Result: FAIL")
	assert.Contains(t, out.String(), "github.repo")
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "validate", "config-init", "version", "push"})

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, BuildVersion+"\n", out.String())
}

func TestPushRequiresSession(t *testing.T) {
	t.Setenv("SITECMS_SESSION", "")
	file := filepath.Join(t.TempDir(), "project-config.js")
	require.NoError(t, os.WriteFile(file, []byte("export default {}"), 0o644))

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"push", "--url", "https://studio.example", "--file", file})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session token is required")
}
