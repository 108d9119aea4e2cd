package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment does not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"HTTP_ADDR", "LOG_LEVEL", "LLM_PROVIDER", "LLM_MODEL", "LLM_FALLBACK_MODELS",
		"OPENROUTER_API_KEY", "OPENROUTER_BASE_URL", "GEMINI_API_KEY", "LLM_TIMEOUT",
		"LLM_FALLBACK", "SESSION_STORE", "DATABASE_URL", "REDIS_URL", "REDIS_PREFIX",
		"SESSION_TTL", "SESSION_CACHE_SIZE",
	} {
		t.Setenv(k, "")
	}
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-test")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, slog.LevelInfo, c.LogLevel)
	assert.Equal(t, ProviderOpenRouter, c.LLMProvider)
	assert.Equal(t, 30*time.Second, c.LLMTimeout)
	assert.True(t, c.LLMFallback)
	assert.Equal(t, StoreMemory, c.SessionStore)
	assert.Equal(t, 24*time.Hour, c.SessionTTL)
	assert.Equal(t, 10000, c.SessionCacheSize)
	assert.Nil(t, c.LLMFallbackModels)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LLM_TIMEOUT", "5s")
	t.Setenv("LLM_FALLBACK", "false")
	t.Setenv("LLM_FALLBACK_MODELS", " a/b , ,c/d ")
	t.Setenv("SESSION_STORE", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SESSION_TTL", "90m")
	t.Setenv("SESSION_CACHE_SIZE", "50")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", c.LLMModel)
	assert.Equal(t, slog.LevelDebug, c.LogLevel)
	assert.Equal(t, 5*time.Second, c.LLMTimeout)
	assert.False(t, c.LLMFallback)
	assert.Equal(t, []string{"a/b", "c/d"}, c.LLMFallbackModels)
	assert.Equal(t, StoreRedis, c.SessionStore)
	assert.Equal(t, 90*time.Minute, c.SessionTTL)
	assert.Equal(t, 50, c.SessionCacheSize)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing openrouter key", map[string]string{}, "OPENROUTER_API_KEY"},
		{"missing gemini key", map[string]string{"LLM_PROVIDER": "gemini"}, "GEMINI_API_KEY"},
		{"unknown provider", map[string]string{"LLM_PROVIDER": "oracle"}, "LLM_PROVIDER"},
		{"bad timeout", map[string]string{"LLM_PROVIDER": "none", "LLM_TIMEOUT": "soon"}, "LLM_TIMEOUT"},
		{"bad level", map[string]string{"LLM_PROVIDER": "none", "LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"bad fallback", map[string]string{"LLM_PROVIDER": "none", "LLM_FALLBACK": "maybe"}, "LLM_FALLBACK"},
		{"bad cache size", map[string]string{"LLM_PROVIDER": "none", "SESSION_CACHE_SIZE": "0"}, "SESSION_CACHE_SIZE"},
		{"postgres without url", map[string]string{"LLM_PROVIDER": "none", "SESSION_STORE": "postgres"}, "DATABASE_URL"},
		{"redis without url", map[string]string{"LLM_PROVIDER": "none", "SESSION_STORE": "redis"}, "REDIS_URL"},
		{"unknown store", map[string]string{"LLM_PROVIDER": "none", "SESSION_STORE": "disk"}, "SESSION_STORE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"Info":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := parseLogLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
