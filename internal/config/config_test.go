// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"RAGCHAT_URL", "RAGCHAT_TOKEN", "RAGCHAT_DOC_TYPE", "RAGCHAT_NO_HISTORY", "RAGCHAT_NO_CACHE", "RAGCHAT_THEME", "RAGCHAT_LOG"} {
		t.Setenv(k, "")
	}
	t.Setenv("RAGCHAT_HOME", t.TempDir())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// =============================================================================
// DEFAULTS
// =============================================================================

func TestConfig_Default(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 30, cfg.Backend.TimeoutSecs)
	assert.True(t, cfg.Chat.IncludeHistory)
	assert.Equal(t, "all", cfg.Chat.DocType)
	assert.Equal(t, 2000, cfg.Documents.PollIntervalMs)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "auto", cfg.UI.Theme)
	assert.NoError(t, cfg.Validate())

	opts := cfg.PollOptions()
	assert.Equal(t, 2*time.Second, opts.Interval)
	assert.Equal(t, 5*time.Minute, opts.MaxWait)
}

// =============================================================================
// LOADING
// =============================================================================

func TestLoadFromPath_TOML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, `
[backend]
url = "https://rag.example.com/"
token = "secret-token"

[chat]
doc_type = "meeting"

[cache]
path = "/tmp/ragchat-test.db"
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "https://rag.example.com", cfg.Backend.URL, "trailing slash trimmed")
	assert.Equal(t, "secret-token", cfg.Backend.Token)
	assert.Equal(t, "meeting", cfg.Chat.DocType)
	assert.True(t, cfg.Chat.IncludeHistory, "unset keys keep defaults")
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Timeout())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "permissions tightened on load")
}

func TestLoadFromPath_JSON(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"backend":{"url":"http://localhost:8000"},"ui":{"theme":"light","show_timings":true}}`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.Backend.URL)
	assert.Equal(t, "light", cfg.UI.Theme)
	assert.True(t, cfg.UI.ShowTimings)
	assert.True(t, cfg.UI.Markdown)
}

func TestLoadFromPath_UnknownKey(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[backend]\nurl = \"http://x\"\nmodel = \"gpt\"\n")

	_, err := LoadFromPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend.model")
}

func TestLoad_PrefersTOMLThenJSONThenDefaults(t *testing.T) {
	clearEnv(t)
	dir := os.Getenv("RAGCHAT_HOME")

	cfg, path, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.toml"), path)
	assert.Empty(t, cfg.Backend.URL)

	writeFile(t, filepath.Join(dir, "config.json"), `{"backend":{"url":"http://json"}}`)
	cfg, path, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "http://json", cfg.Backend.URL)
	assert.True(t, strings.HasSuffix(path, "config.json"))

	writeFile(t, filepath.Join(dir, "config.toml"), "[backend]\nurl = \"http://toml\"\n")
	cfg, _, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "http://toml", cfg.Backend.URL)
}

func TestApplyEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RAGCHAT_URL", "https://env.example.com")
	t.Setenv("RAGCHAT_TOKEN", "env-token")
	t.Setenv("RAGCHAT_NO_HISTORY", "true")
	t.Setenv("RAGCHAT_NO_CACHE", "1")
	t.Setenv("RAGCHAT_THEME", "dark")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "https://env.example.com", cfg.Backend.URL)
	assert.Equal(t, "env-token", cfg.Backend.Token)
	assert.False(t, cfg.Chat.IncludeHistory)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "dark", cfg.UI.Theme)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		fields []string
	}{
		{"defaults", func(*Config) {}, nil},
		{"bad scheme", func(c *Config) { c.Backend.URL = "ftp://host" }, []string{"backend.url"}},
		{"no host", func(c *Config) { c.Backend.URL = "http://" }, []string{"backend.url"}},
		{"timeout", func(c *Config) { c.Backend.TimeoutSecs = 0 }, []string{"backend.timeout_secs"}},
		{"doc type", func(c *Config) { c.Chat.DocType = "spreadsheet" }, []string{"chat.doc_type"}},
		{"poll interval", func(c *Config) { c.Documents.PollIntervalMs = 10 }, []string{"documents.poll_interval_ms"}},
		{"theme", func(c *Config) { c.UI.Theme = "neon" }, []string{"ui.theme"}},
		{
			"collects all",
			func(c *Config) { c.UI.Theme = "neon"; c.Documents.MaxWaitSecs = -1 },
			[]string{"documents.max_wait_secs", "ui.theme"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}

			var errs ValidateErrors
			require.True(t, errors.As(err, &errs), "got %T", err)
			var fields []string
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.Equal(t, tt.fields, fields)
		})
	}
}

// =============================================================================
// SAVE / GET / SET
// =============================================================================

func TestSaveTOML_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Backend.URL = "https://rag.example.com"
	cfg.Backend.Token = "tok"
	cfg.UI.ShowTimings = true
	require.NoError(t, Save(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("backend.url", "https://x.example.com"))
	require.NoError(t, cfg.Set("documents.max_wait_secs", "60"))
	require.NoError(t, cfg.Set("ui.show_timings", "true"))

	v, err := cfg.Get("backend.url")
	require.NoError(t, err)
	assert.Equal(t, "https://x.example.com", v)
	assert.Equal(t, 60, cfg.Documents.MaxWaitSecs)
	assert.True(t, cfg.UI.ShowTimings)

	assert.Error(t, cfg.Set("documents.max_wait_secs", "soon"))
	assert.Error(t, cfg.Set("backend.model", "x"))
	assert.Error(t, cfg.Set("backend", "x"))
	_, err = cfg.Get("nope")
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "backend.token")
	assert.Contains(t, keys, "documents.poll_interval_ms")
	assert.Len(t, keys, 15)

	cfg := Default()
	for _, k := range keys {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
}

func TestString_MasksToken(t *testing.T) {
	cfg := Default()
	cfg.Backend.Token = "supersecret-abcd"
	out := cfg.String()
	assert.NotContains(t, out, "supersecret")
	assert.Contains(t, out, "****abcd")
	assert.Equal(t, "supersecret-abcd", cfg.Backend.Token, "original untouched")
}

// =============================================================================
// WATCH
// =============================================================================

func TestWatch_ReloadsOnChange(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[backend]\nurl = \"http://before\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	errs := make(chan error, 4)
	require.NoError(t, Watch(ctx, path, func(c *Config) { changes <- c }, func(err error) { errs <- err }))

	require.NoError(t, SaveTOML(&Config{
		Backend:   BackendConfig{URL: "http://after", Token: "rotated", TimeoutSecs: 30},
		Chat:      ChatConfig{DocType: "all"},
		Documents: Default().Documents,
		UI:        UIConfig{Theme: "auto"},
	}, path))

	select {
	case cfg := <-changes:
		assert.Equal(t, "http://after", cfg.Backend.URL)
		assert.Equal(t, "rotated", cfg.Backend.Token)
	case err := <-errs:
		t.Fatalf("reload failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestWatch_InvalidEditReportsError(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[backend]\nurl = \"http://before\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := make(chan error, 4)
	require.NoError(t, Watch(ctx, path, func(*Config) {}, func(err error) { errs <- err }))

	writeFile(t, path, "[ui]\ntheme = \"neon\"\n")

	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "ui.theme")
	case <-time.After(5 * time.Second):
		t.Fatal("no error after invalid write")
	}
}
