package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"gastos/internal/backend"
	"gastos/internal/cli"
	"gastos/internal/feed"
	apphttp "gastos/internal/http"
	"gastos/internal/log"
	"gastos/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid timezone", log.FieldError, err)
		os.Exit(1)
	}

	result, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize feed backend", log.FieldError, err, "backend", cfg.FeedBackend)
		os.Exit(1)
	}

	st := store.New(context.Background(), result.Feed, store.Config{
		Query:    feed.ExpensesByDate(cfg.Collection),
		Location: loc,
		Logger:   logger,
	})

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Store:      st,
		Writer:     result.Writer,
		Collection: cfg.Collection,
		PageSize:   cfg.PageSize,
		Logger:     logger,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		st.UnsubscribeFromFeed()
		if err := result.Close(); err != nil {
			logger.Error("Failed to close feed backend", log.FieldError, err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting gastos server", "port", cfg.Port, "backend", cfg.FeedBackend, "collection", cfg.Collection)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on :%s: %w", cfg.Port, err)
		}
		return nil
	})
	g.Go(func() error {
		state, err := st.AwaitReady(gctx)
		switch {
		case err != nil:
			return nil
		case state.Failed():
			logger.Warn("Expenses unavailable", log.FieldError, state.Error)
		default:
			logger.Info("Expenses loaded", log.FieldDocuments, len(state.Data))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
