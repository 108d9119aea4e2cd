package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LLM providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
	ProviderNone       = "none"
)

// Session stores.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	HTTPAddr          string
	LogLevel          slog.Level
	LLMProvider       string
	LLMModel          string
	LLMFallbackModels []string
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	GeminiAPIKey      string
	LLMTimeout        time.Duration
	// LLMFallback replaces failed interpretations with the built-in one.
	LLMFallback bool

	SessionStore     string
	DatabaseURL      string
	RedisURL         string
	RedisPrefix      string
	SessionTTL       time.Duration
	SessionCacheSize int
}

// Load reads the configuration from the environment. Variables from a .env
// file in the working directory are applied first; they never override the
// real environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	c := Config{
		HTTPAddr:          envOr("HTTP_ADDR", ":8080"),
		LLMProvider:       envOr("LLM_PROVIDER", ProviderOpenRouter),
		LLMModel:          envOr("LLM_MODEL", "qwen/qwen3-4b:free"),
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterBaseURL: envOr("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		LLMFallbackModels: parseFallbackModels(os.Getenv("LLM_FALLBACK_MODELS")),
		LLMTimeout:        30 * time.Second,
		LLMFallback:       true,
		SessionStore:      envOr("SESSION_STORE", StoreMemory),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		RedisPrefix:       envOr("REDIS_PREFIX", "divination"),
		SessionTTL:        24 * time.Hour,
		SessionCacheSize:  10000,
	}

	var err error
	if c.LLMTimeout, err = durationEnv("LLM_TIMEOUT", c.LLMTimeout); err != nil {
		return Config{}, err
	}
	if c.SessionTTL, err = durationEnv("SESSION_TTL", c.SessionTTL); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("LLM_FALLBACK"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LLM_FALLBACK %q: %w", v, err)
		}
		c.LLMFallback = b
	}
	if v := os.Getenv("SESSION_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid SESSION_CACHE_SIZE %q", v)
		}
		c.SessionCacheSize = n
	}

	level, err := parseLogLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}
	c.LogLevel = level

	switch c.LLMProvider {
	case ProviderOpenRouter:
		if c.OpenRouterAPIKey == "" {
			return Config{}, fmt.Errorf("OPENROUTER_API_KEY is required when LLM_PROVIDER=openrouter")
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return Config{}, fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
		if os.Getenv("LLM_MODEL") == "" {
			c.LLMModel = "gemini-2.0-flash"
		}
	case ProviderNone:
	default:
		return Config{}, fmt.Errorf("invalid LLM_PROVIDER %q", c.LLMProvider)
	}

	switch c.SessionStore {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required when SESSION_STORE=postgres")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL is required when SESSION_STORE=redis")
		}
	default:
		return Config{}, fmt.Errorf("invalid SESSION_STORE %q", c.SessionStore)
	}

	return c, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func parseFallbackModels(s string) []string {
	if s == "" {
		return nil
	}
	var models []string
	for _, m := range strings.Split(s, ",") {
		m = strings.TrimSpace(m)
		if m != "" {
			models = append(models, m)
		}
	}
	return models
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid LOG_LEVEL %q", s)
	}
}
