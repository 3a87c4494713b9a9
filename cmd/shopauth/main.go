// Package main runs the shop account security service.
//
// Configuration comes from the environment (see pkg/config). The account store is picked with
// ACCOUNT_STORE: memory keeps everything in process and loses it on restart, postgres expects the
// schema in migrations/account.sql, redis keeps accounts as JSON documents. Set TRUST_PROXY_HEADERS
// only when a proxy in front rewrites X-Forwarded-For.
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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/shop-auth/pkg/account"
	"github.com/tendant/shop-auth/pkg/accountsecurity"
	"github.com/tendant/shop-auth/pkg/accountsecurity/api"
	"github.com/tendant/shop-auth/pkg/config"
	"github.com/tendant/shop-auth/pkg/notification"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		slog.Error("Server stopped with error", "err", err)
		os.Exit(1)
	}
}

func newLogger(format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier, closeNotifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := closeNotifier(drainCtx); err != nil {
			slog.Warn("Pending notifications were not delivered", "err", err)
		}
	}()

	codec, err := cfg.JWT.NewTokenCodec(cfg.Security, time.Now)
	if err != nil {
		return fmt.Errorf("failed to create token codec: %w", err)
	}
	opts, err := cfg.Security.ToServiceOptions()
	if err != nil {
		return err
	}
	opts = append(opts, accountsecurity.WithLogger(logger.With("service", "accountsecurity")))

	service := accountsecurity.NewService(
		repo,
		cfg.Security.NewPasswordHasher(),
		codec,
		cfg.Security.NewTotpGenerator(time.Now),
		notifier,
		opts...,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handle := api.NewHandle(service,
		api.WithMetrics(api.NewMetrics(registry)),
		api.WithCookieSetter(cfg.JWT.NewCookieSetter()),
		api.WithLogger(logger.With("component", "accountsecurity.api")),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Mount("/auth", handle.Routes())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Listening", "addr", cfg.HTTPAddr, "store", cfg.AccountStore)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config) (account.Repository, func(), error) {
	switch cfg.AccountStore {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.Database.ToDatabaseURL())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to reach database: %w", err)
		}
		return account.NewPostgresRepository(pool), pool.Close, nil

	case config.StoreRedis:
		client := redis.NewClient(cfg.Redis.ToOptions())
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to reach redis: %w", err)
		}
		repo := account.NewRedisRepository(client, account.WithKeyPrefix(cfg.Redis.KeyPrefix))
		return repo, func() { _ = client.Close() }, nil

	default:
		slog.Warn("Using in-memory account store, data is lost on restart")
		return account.NewInMemoryRepository(), func() {}, nil
	}
}

// newNotifier sends mail through a queue so that a reset request for an existing account takes as
// long as one for an unknown address.
func newNotifier(cfg config.Config, logger *slog.Logger) (notification.AccountNotifier, func(context.Context) error, error) {
	if !cfg.Email.Enabled() {
		return notification.NewLogNotifier(logger), func(context.Context) error { return nil }, nil
	}
	d, err := cfg.Security.Durations()
	if err != nil {
		return nil, nil, err
	}
	email, err := notification.NewEmailNotifier(cfg.Email.ToSMTPConfig(), cfg.Email.ToLinkConfig(d))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create email notifier: %w", err)
	}
	async := notification.NewAsyncNotifier(email, notification.WithAsyncLogger(logger))
	return async, async.Close, nil
}
