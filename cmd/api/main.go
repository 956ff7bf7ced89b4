package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/refnexus/platform/internal/app"
	"github.com/refnexus/platform/internal/assistant"
	"github.com/refnexus/platform/internal/auth"
	"github.com/refnexus/platform/internal/guard"
	"github.com/refnexus/platform/internal/infra"
	"github.com/refnexus/platform/internal/ingest"
	"github.com/refnexus/platform/internal/projection"
	"github.com/refnexus/platform/internal/provider"
	"github.com/refnexus/platform/internal/search"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if cfg.RunMigrations {
		if err := infra.RunMigrations(cfg.DSN(), cfg.MigrationsDir, logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	pool, err := infra.NewPostgresPool(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	var statsStore projection.Store = projection.NewInMemoryStore()
	if cfg.RedisURL != "" {
		client, err := projection.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		statsStore = projection.NewRedisStore(client)
		logger.Info("stats cache backed by redis")
	} else {
		logger.Info("stats cache kept in process")
	}

	var (
		interpreter search.Interpreter = provider.DisabledAI{}
		chatModel   assistant.Model    = provider.DisabledAI{}
		extractor   ingest.Extractor   = provider.DisabledAI{}
	)
	if cfg.AIAPIKey != "" {
		client := provider.NewOpenAIClient(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel, cfg.AITimeout, logger)
		interpreter, chatModel, extractor = client, client, client
		logger.Info("ai features enabled", "model", cfg.AIModel)
	} else {
		logger.Warn("AI_API_KEY not set, ai search, chat and schedule extraction disabled")
	}

	hub := infra.NewWSHub(logger)
	aiLimiter := guard.NewRateLimiter(cfg.AIRateLimit, cfg.AIRateWindow)
	router := app.NewRouter(app.RouterDeps{
		Pool:           pool,
		JWTMgr:         auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiry),
		Logger:         logger,
		Hub:            hub,
		StatsStore:     statsStore,
		StatsTTL:       cfg.StatsCacheTTL,
		Geocoder:       provider.NewNominatimGeocoder(cfg.GeocoderBaseURL, cfg.GeocoderUserAgent, cfg.GeocoderTimeout, logger),
		Interpreter:    interpreter,
		AssistantModel: chatModel,
		Extractor:      extractor,
		AITimeout:      cfg.AITimeout,
		AILimiter:      aiLimiter,
		AIRateLimit:    cfg.AIRateLimit,
		AIRateWindow:   cfg.AIRateWindow,
		AIFailures:     cfg.AIFailures,
		AICircuitReset: cfg.AICircuitReset,
		AllowedOrigins: cfg.AllowedOrigins(),
	})

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		aiLimiter.RunPruner(gctx, cfg.AIRateWindow)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		// Hijacked WebSocket connections are not tracked by Shutdown.
		hub.Shutdown(shutdownCtx)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}
