// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets the override variables for the duration of a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CHATSTREAM_BASE_URL", "CHATSTREAM_USE_SEARCH", "CHATSTREAM_LOG_LEVEL", "CHATSTREAM_CONFIG", "NO_COLOR"} {
		if v, ok := os.LookupEnv(k); ok {
			os.Unsetenv(k)
			t.Cleanup(func() { os.Setenv(k, v) })
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultBaseURL, cfg.Server.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout.Duration)
	assert.Zero(t, cfg.Server.StreamIdleTimeout.Duration)
	assert.Equal(t, 5, cfg.Chat.SearchResults)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromFile_PartialKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, `
[server]
base_url = "https://chat.example.com/api"
stream_idle_timeout = "45s"

[ui]
theme = "dark"
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com/api", cfg.Server.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.Server.StreamIdleTimeout.Duration)
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout.Duration)
	assert.Equal(t, "dark", cfg.UI.Theme)
	assert.Equal(t, 30, cfg.UI.MaxFPS)
}

func TestLoadFromFile_Errors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[server\n", "failed to decode"},
		{"unknown key", "[server]\nbase_uri = \"x\"\n", "unknown keys: server.base_uri"},
		{"bad duration", "[server]\ntimeout = \"soon\"\n", "invalid duration"},
		{"invalid value", "[ui]\nmax_fps = 0\n", "ui.max_fps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".toml")
			writeFile(t, path, tt.content)
			_, err := LoadFromFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := LoadFromFile(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Server.StreamIdleTimeout = Duration{90 * time.Second}
	cfg.Chat.UseSearch = true
	cfg.Logging.Format = "json"
	require.NoError(t, Save(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.BaseURL = "ftp://example.com"
	cfg.Server.Timeout = Duration{-time.Second}
	cfg.Chat.SearchResults = 50
	cfg.UI.Theme = "neon"
	cfg.Logging.Level = "verbose"

	err := cfg.Validate()
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	fields := make([]string, len(verrs))
	for i, v := range verrs {
		fields[i] = v.Field
	}
	assert.ElementsMatch(t, []string{
		"server.base_url", "server.timeout", "chat.search_results", "ui.theme", "logging.level",
	}, fields)

	cfg = Default()
	cfg.Server.BaseURL = "localhost:8000"
	assert.Error(t, cfg.Validate())
}

func TestApplyEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHATSTREAM_BASE_URL", "http://10.0.0.5:9000/api")
	t.Setenv("CHATSTREAM_USE_SEARCH", "yes")
	t.Setenv("CHATSTREAM_LOG_LEVEL", "DEBUG")
	t.Setenv("NO_COLOR", "")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "http://10.0.0.5:9000/api", cfg.Server.BaseURL)
	assert.True(t, cfg.Chat.UseSearch)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.UI.Markdown)
}

func TestDefaultPath_Env(t *testing.T) {
	clearEnv(t)
	assert.Equal(t, FileName, filepath.Base(DefaultPath()))

	t.Setenv("CHATSTREAM_CONFIG", "/etc/chatstream.toml")
	assert.Equal(t, "/etc/chatstream.toml", DefaultPath())
}

func TestGetSet(t *testing.T) {
	cfg := Default()

	v, err := cfg.Get("server.base_url")
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, v)

	require.NoError(t, cfg.Set("ui.max_fps", "60"))
	assert.Equal(t, 60, cfg.UI.MaxFPS)

	require.NoError(t, cfg.Set("chat.use_search", "on"))
	assert.True(t, cfg.Chat.UseSearch)

	require.NoError(t, cfg.Set("server.timeout", "2m"))
	assert.Equal(t, 2*time.Minute, cfg.Server.Timeout.Duration)

	require.NoError(t, cfg.Set("server.stream-idle-timeout", 5*time.Second))
	assert.Equal(t, 5*time.Second, cfg.Server.StreamIdleTimeout.Duration)

	require.NoError(t, cfg.Set("ui.word_wrap", 80))
	assert.Equal(t, 80, cfg.UI.WordWrap)

	assert.Error(t, cfg.Set("ui.max_fps", "fast"))
	assert.Error(t, cfg.Set("chat.use_search", "maybe"))
	assert.Error(t, cfg.Set("ui.nope", "1"))
	assert.Error(t, cfg.Set("ui", "1"))
	assert.Error(t, cfg.Set("", "1"))

	_, err = cfg.Get("server.base_url.host")
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "server.base_url")
	assert.Contains(t, keys, "server.stream_idle_timeout")
	assert.Contains(t, keys, "logging.file")

	cfg := Default()
	for _, k := range keys {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration)

	require.NoError(t, d.UnmarshalText([]byte("0")))
	assert.Zero(t, d.Duration)

	b, err := Duration{2 * time.Second}.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2s", string(b))
}

func TestClone_Independent(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.UI.Theme = "light"
	assert.Equal(t, "auto", cfg.UI.Theme)

	out, err := cfg.TOML()
	require.NoError(t, err)
	assert.Contains(t, out, `base_url = "http://localhost:8000/api"`)
	assert.Contains(t, cfg.String(), `"timeout": "30s"`)
}

// =============================================================================
// WATCHER TESTS
// =============================================================================

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, Save(Default(), path))

	var (
		mu      sync.Mutex
		themes  []string
		errs    []error
		changed = make(chan struct{}, 4)
	)
	w, err := NewWatcher(path, func(c *Config) {
		mu.Lock()
		themes = append(themes, c.UI.Theme)
		mu.Unlock()
		changed <- struct{}{}
	}, func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
		changed <- struct{}{}
	})
	require.NoError(t, err)
	w.WithDebounce(20 * time.Millisecond)
	t.Cleanup(func() { _ = w.Close() })

	cfg := Default()
	cfg.UI.Theme = "light"
	require.NoError(t, Save(cfg, path))

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after write")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Empty(t, errs)
	assert.Equal(t, "light", themes[len(themes)-1])
}

func TestWatcher_ReportsInvalidFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, Save(Default(), path))

	errCh := make(chan error, 4)
	w, err := NewWatcher(path, nil, func(err error) { errCh <- err })
	require.NoError(t, err)
	w.WithDebounce(20 * time.Millisecond)
	t.Cleanup(func() { _ = w.Close() })

	writeFile(t, path, "[ui]\ntheme = \"neon\"\n")

	select {
	case err := <-errCh:
		assert.Contains(t, err.Error(), "ui.theme")
	case <-time.After(3 * time.Second):
		t.Fatal("no error reported for invalid file")
	}
}

func TestWatcher_CloseIsPrompt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	w, err := NewWatcher(path, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, path, w.Path())

	done := make(chan struct{})
	go func() {
		_ = w.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}

func TestReadFile_IgnoresEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHATSTREAM_BASE_URL", "http://env.example:9000/api")

	path := filepath.Join(t.TempDir(), FileName)
	cfg, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, cfg.Server.BaseURL)

	writeFile(t, path, "[chat]\nsearch_results = 7\n")
	cfg, err = ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Chat.SearchResults)
	assert.Equal(t, DefaultBaseURL, cfg.Server.BaseURL)
}
