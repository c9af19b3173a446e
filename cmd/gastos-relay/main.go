package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"gastos/internal/backend"
	"gastos/internal/cli"
	"gastos/internal/feed"
	"gastos/internal/feed/amqp"
	"gastos/internal/log"
	"gastos/internal/relay"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	if err := cfg.ValidateRelay(); err != nil {
		logger.Error("Relay configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	sourceCfg, err := backend.RelaySourceFromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid relay source configuration", log.FieldError, err)
		os.Exit(1)
	}

	source, err := backend.NewFactory(logger).CreateBackend(context.Background(), sourceCfg)
	if err != nil {
		logger.Error("Failed to initialize relay source", log.FieldError, err, "source", cfg.RelaySource)
		os.Exit(1)
	}
	defer source.Close()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, logger.WithComponent(log.ComponentAMQP).Logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()
	closed := client.NotifyClose()

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, nil)

	r := relay.New(source.Feed, client, feed.ExpensesByDate(cfg.Collection), cfg.RepublishInterval, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-closed:
			return fmt.Errorf("AMQP connection closed: %v", err)
		}
	})

	logger.Info("Starting gastos-relay", "source", cfg.RelaySource, "exchange", cfg.AMQPExchange, "collection", cfg.Collection)
	if err := g.Wait(); err != nil {
		logger.Error("Relay stopped", log.FieldError, err)
		client.Close()
		source.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Relay stopped gracefully")
}
