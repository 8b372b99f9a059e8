package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dealfanatics/rss-pipeline/internal/app"
	"github.com/dealfanatics/rss-pipeline/internal/platform/config"
)

func main() {
	mode := flag.String("mode", app.ModeAll, "Service mode (poller, consumer, keywords, all)")
	once := flag.Bool("once", false, "Run a single cycle, batch or scan and exit")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := app.OpenBackend(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage backend")
	}
	defer backend.Close()

	application := app.New(cfg, backend, &logger)

	if err := application.SyncSourcesFile(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to sync sources file")
	}

	// Start health server in background
	go func() {
		if err := application.StartHealthServer(ctx); err != nil {
			logger.Error().Err(err).Msg("health check server error")
		}
	}()

	if err := application.Run(ctx, *mode, *once); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")
			return
		}

		if errors.Is(err, app.ErrUnknownMode) {
			log.Fatalf("Usage: %s --mode=[poller|consumer|keywords|all] [--once]", os.Args[0])
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func newLogger(appEnv, level string) zerolog.Logger {
	var logger zerolog.Logger

	if appEnv == "local" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	if lvl, err := zerolog.ParseLevel(level); err == nil && level != "" {
		logger = logger.Level(lvl)
	}

	return logger
}
