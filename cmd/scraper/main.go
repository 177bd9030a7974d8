package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"jobpulse/internal/app"
	"jobpulse/internal/config"
	"jobpulse/internal/pkg/logger"
	"jobpulse/internal/usecase"

	"go.uber.org/zap"
)

type options struct {
	mode       string
	dryRun     bool
	limit      int
	staleAfter time.Duration
	migrate    bool
	force      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.mode, "mode", "crawl", "crawl|validate|sweep|reactivate|backfill|stats")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "report what sweep or reactivate would change without writing")
	flag.IntVar(&opts.limit, "limit", 0, "cap on postings processed (0 = no cap)")
	flag.DurationVar(&opts.staleAfter, "stale-after", 0, "override the retention threshold for sweep")
	flag.BoolVar(&opts.migrate, "migrate", true, "apply migrations before running")
	flag.BoolVar(&opts.force, "force", false, "validate postings even if checked recently")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.App.Environment, cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	if err := run(cfg, opts, zl); err != nil {
		zl.Error("run failed", zap.String("mode", opts.mode), zap.Error(err))
		_ = zl.Sync()
		os.Exit(1)
	}
	_ = zl.Sync()
}

func run(cfg config.Config, opts options, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := app.NewContainer(ctx, cfg, zl)
	if err != nil {
		return fmt.Errorf("init container: %w", err)
	}
	defer func() { _ = c.Close() }()

	if opts.migrate {
		migCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		err := c.Migrate(migCtx)
		cancel()
		if err != nil {
			return err
		}
	}

	var out any
	p := c.Pipeline
	switch strings.ToLower(strings.TrimSpace(opts.mode)) {
	case "crawl":
		out, err = p.Crawl(ctx)
	case "validate":
		out, err = p.Validate(ctx, usecase.ValidationParams{Limit: opts.limit, Force: opts.force})
	case "sweep":
		out, err = p.Sweep(ctx, usecase.SweepParams{StaleAfter: opts.staleAfter, DryRun: opts.dryRun})
	case "reactivate":
		out, err = p.Reactivate(ctx, usecase.ReactivationParams{Limit: opts.limit, DryRun: opts.dryRun})
	case "backfill":
		out, err = p.Backfill(ctx, usecase.BackfillParams{Limit: opts.limit})
	case "stats":
		out, err = c.Status.Get(ctx)
	default:
		return fmt.Errorf("unknown mode %q", opts.mode)
	}

	if out != nil {
		b, mErr := json.MarshalIndent(out, "", "  ")
		if mErr == nil {
			fmt.Println(string(b))
		}
	}
	return err
}
