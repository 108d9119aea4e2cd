package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Yanchun-Li/ai-divination/internal/adapters/decks"
	httpadapter "github.com/Yanchun-Li/ai-divination/internal/adapters/http"
	"github.com/Yanchun-Li/ai-divination/internal/adapters/llm/gemini"
	"github.com/Yanchun-Li/ai-divination/internal/adapters/llm/openrouter"
	"github.com/Yanchun-Li/ai-divination/internal/adapters/sessions"
	"github.com/Yanchun-Li/ai-divination/internal/app"
	"github.com/Yanchun-Li/ai-divination/internal/config"
	"github.com/Yanchun-Li/ai-divination/internal/metrics"
	"github.com/Yanchun-Li/ai-divination/internal/ports"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closer, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open session store", "store", cfg.SessionStore, "error", err)
		os.Exit(1)
	}
	defer closer.Close()

	interp, err := newInterpreter(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build interpreter", "provider", cfg.LLMProvider, "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	opts := []app.Option{app.WithMetrics(m)}
	if !cfg.LLMFallback {
		opts = append(opts, app.WithoutFallback())
	}
	svc := app.NewDivinationService(store, decks.NewEmbeddedStore(), interp, logger, opts...)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(httpadapter.RequestIDMiddleware())
	e.Use(httpadapter.LoggingMiddleware(logger))
	e.Use(httpadapter.MetricsMiddleware(m))

	handler := httpadapter.NewHandler(svc, m, logger)
	handler.Register(e)

	go func() {
		logger.Info("starting server",
			"addr", cfg.HTTPAddr,
			"store", cfg.SessionStore,
			"provider", cfg.LLMProvider,
			"model", cfg.LLMModel,
		)
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openStore(ctx context.Context, cfg config.Config) (ports.SessionStore, io.Closer, error) {
	switch cfg.SessionStore {
	case config.StorePostgres:
		s, err := sessions.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.StoreRedis:
		s := sessions.NewRedisStore(sessions.NewRedisPool(cfg.RedisURL), cfg.RedisPrefix, cfg.SessionTTL)
		return s, s, nil
	default:
		return sessions.NewMemoryStore(cfg.SessionCacheSize, cfg.SessionTTL), nopCloser{}, nil
	}
}

// newInterpreter returns nil for ProviderNone; the service then always uses
// the built-in interpretation.
func newInterpreter(ctx context.Context, cfg config.Config, logger *slog.Logger) (ports.Interpreter, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		return gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.LLMModel, logger)
	case config.ProviderOpenRouter:
		return openrouter.NewClient(
			&http.Client{Timeout: cfg.LLMTimeout},
			cfg.OpenRouterAPIKey,
			cfg.OpenRouterBaseURL,
			cfg.LLMModel,
			cfg.LLMFallbackModels,
			logger,
		), nil
	default:
		return nil, nil
	}
}
