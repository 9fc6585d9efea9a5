package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"GOOGLE_NEWS_HL", "GOOGLE_NEWS_GL", "GOOGLE_NEWS_CEID", "RESOLVE_CONCURRENCY", "DB_HOST"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "es", cfg.HL)
	assert.Equal(t, "ES", cfg.GL)
	assert.Equal(t, "ES:es", cfg.CEID)
	assert.Equal(t, 5, cfg.Concurrency)
	assert.Equal(t, 20*time.Second, cfg.NetworkTimeout)
	assert.Equal(t, 25*time.Second, cfg.NavigationTimeout)
	assert.Equal(t, 15*time.Second, cfg.SettleTimeout)
	assert.Equal(t, 10, cfg.MaxRedirects)
	assert.True(t, cfg.Headless)
	assert.False(t, cfg.StoreEnabled())
	assert.Empty(t, cfg.Warnings)
}

func TestLoadScriptSettings(t *testing.T) {
	for _, key := range []string{"NEWSPEAKER_BACKEND", "NEWSPEAKER_BASE_URL", "SCRIPT_MODEL", "SCRIPT_STYLE", "SCRIPT_MAX_ITEMS", "OLLAMA_URL"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	assert.Equal(t, "auto", cfg.ScriptBackend)
	assert.Empty(t, cfg.ScriptBaseURL)
	assert.Equal(t, "llama3", cfg.ScriptModel)
	assert.Equal(t, "educativo", cfg.ScriptStyle)
	assert.Equal(t, 10, cfg.ScriptMaxItems)
	assert.Equal(t, "http://127.0.0.1:11434", cfg.OllamaURL)

	t.Setenv("NEWSPEAKER_BACKEND", "Ollama")
	t.Setenv("NEWSPEAKER_BASE_URL", " http://127.0.0.1:1234/v1 ")
	t.Setenv("SCRIPT_MAX_ITEMS", "3")
	cfg = Load()
	assert.Equal(t, "ollama", cfg.ScriptBackend)
	assert.Equal(t, "http://127.0.0.1:1234/v1", cfg.ScriptBaseURL)
	assert.Equal(t, 3, cfg.ScriptMaxItems)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GOOGLE_NEWS_HL", "en")
	t.Setenv("GOOGLE_NEWS_GL", "US")
	t.Setenv("GOOGLE_NEWS_CEID", "US:en")
	t.Setenv("RESOLVE_CONCURRENCY", "12")
	t.Setenv("BROWSER_HEADLESS", "false")
	t.Setenv("SETTLE_TIMEOUT_SECONDS", "3")

	cfg := Load()

	assert.Equal(t, "en", cfg.HL)
	assert.Equal(t, "US", cfg.GL)
	assert.Equal(t, "US:en", cfg.CEID)
	assert.Equal(t, 12, cfg.Concurrency)
	assert.False(t, cfg.Headless)
	assert.Equal(t, 3*time.Second, cfg.SettleTimeout)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("RESOLVE_CONCURRENCY", "-3")
	t.Setenv("BROWSER_HEADLESS", "maybe")

	cfg := Load()

	assert.Equal(t, 5, cfg.Concurrency)
	assert.True(t, cfg.Headless)
	require.Len(t, cfg.Warnings, 2)
	assert.Contains(t, cfg.Warnings[0], "RESOLVE_CONCURRENCY")
}
