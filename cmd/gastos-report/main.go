package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/GiGurra/boa/pkg/boa"

	"gastos/internal/backend"
	"gastos/internal/cli"
	"gastos/internal/config"
	"gastos/internal/feed"
	"gastos/internal/log"
	"gastos/internal/report"
	"gastos/internal/store"
)

type Params struct {
	Format   string `descr:"Output format" alts:"table,json,xlsx" strict:"true" default:"table"`
	Output   string `descr:"Workbook path for xlsx output" default:"gastos.xlsx"`
	Page     int    `descr:"Page of expenses to show" default:"1"`
	Currency string `descr:"ISO 4217 code used to format amounts" default:"EUR"`
	Wait     int    `descr:"Seconds to wait for the first snapshot" default:"30"`
}

func main() {
	boa.NewCmdT[Params]("gastos-report").
		WithShort("Print the current expense views").
		WithLong("Subscribes to the configured feed, waits for the first snapshot and prints the current page together with the monthly, yearly, daily and weekly totals as tables or JSON, or writes them to an xlsx workbook.").
		WithRunFunc(func(params *Params) {
			if err := run(params); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}).
		Run()
}

func run(params *Params) error {
	if params.Page < 1 {
		return fmt.Errorf("page must be at least 1, got %d", params.Page)
	}

	cli.LoadEnvFile()
	logCfg := log.DefaultConfig()
	logCfg.Level = slog.LevelWarn
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		logCfg.Level = log.ParseLevel(level)
	}
	logCfg.Output = os.Stderr
	logger := log.New(logCfg).WithComponent(log.ComponentReport)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("create %s backend: %w", cfg.FeedBackend, err)
	}
	defer result.Close()

	st := store.New(ctx, result.Feed, store.Config{
		Query:    feed.ExpensesByDate(cfg.Collection),
		Location: loc,
		Logger:   logger,
	})
	defer st.UnsubscribeFromFeed()

	waitCtx, cancel := context.WithTimeout(ctx, time.Duration(params.Wait)*time.Second)
	defer cancel()
	state, err := st.AwaitReady(waitCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("no snapshot from %s within %ds", cfg.FeedBackend, params.Wait)
	}
	if err != nil {
		return err
	}

	cur := report.GetCurrency(params.Currency)
	r := report.Build(state, params.Page, cfg.PageSize, time.Now(), loc, cur)

	switch strings.ToLower(params.Format) {
	case "json":
		if err := report.WriteJSON(os.Stdout, r); err != nil {
			return err
		}
	case "xlsx":
		if err := report.WriteXLSX(params.Output, r, state.Data); err != nil {
			return err
		}
		logger.Info("Report written", "path", params.Output, log.FieldOperation, log.OpExport)
		fmt.Printf("Informe guardado en %s\n", params.Output)
	default:
		report.WriteTable(os.Stdout, r, cur)
	}

	if state.Failed() {
		return errors.New(state.Error)
	}
	return nil
}
