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

	"github.com/Heinvv10/gaztime-sub001/internal/cache"
	"github.com/Heinvv10/gaztime-sub001/internal/cart"
	"github.com/Heinvv10/gaztime-sub001/internal/config"
	"github.com/Heinvv10/gaztime-sub001/internal/events"
	"github.com/Heinvv10/gaztime-sub001/internal/httpapi"
	"github.com/Heinvv10/gaztime-sub001/internal/logging"
	"github.com/Heinvv10/gaztime-sub001/internal/service"
	"github.com/Heinvv10/gaztime-sub001/internal/store"
	"github.com/Heinvv10/gaztime-sub001/internal/store/memory"
	pgstore "github.com/Heinvv10/gaztime-sub001/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Error("invalid security configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	handler, closers, err := buildApp(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("gaztime backend listening", "addr", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", "error", err)
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", "error", err)
		}
	}
	logger.Info("server stopped")
}

// buildApp wires the store, Redis-backed helpers and HTTP API. A configured
// DATABASE_URL that cannot be reached is fatal; Redis falls back to
// in-process implementations.
func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (http.Handler, []func() error, error) {
	closers := make([]func() error, 0, 2)
	healthChecks := make(map[string]httpapi.HealthCheck, 2)

	var repo store.Repository
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set, refusing in-memory fallback: %w", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		healthChecks["postgres"] = pg.Ping
		logger.Info("repository selected", "backend", "postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository selected", "backend", "memory")
	}

	cartTTL := time.Duration(cfg.CartTTLMinutes) * time.Minute
	opts := service.Options{
		CatalogCache: cache.NoopCatalogCache{},
		CatalogTTL:   time.Duration(cfg.CatalogCacheTTLSeconds) * time.Second,
		Carts:        cart.NewMemorySessionStore(cartTTL),
		Events:       events.NewHub(),
		Logger:       logger,
		DefaultPodID: cfg.DefaultPodID,
		CountryCode:  cfg.DefaultCountryCode,
	}

	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, using in-process cache, carts and events", "addr", cfg.RedisAddr, "error", err)
			_ = client.Close()
		} else {
			opts.CatalogCache = cache.NewRedisCatalogCache(client)
			opts.Carts = cache.NewRedisCartSessions(client, cartTTL)
			opts.Events = events.NewRedisBroker(client, logger)
			closers = append(closers, client.Close)
			healthChecks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
			logger.Info("redis connected", "addr", cfg.RedisAddr)
		}
	}

	svc := service.New(repo, opts)
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo, logger)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)
	for name, check := range healthChecks {
		api.AddHealthCheck(name, check)
	}
	return api.Handler(), closers, nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AllowedOrigin == "*" && cfg.DatabaseURL != "" {
		return fmt.Errorf("ALLOWED_ORIGIN must name an origin when running against postgres")
	}
	return nil
}
