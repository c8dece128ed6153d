// Package main runs a single sync cycle and exits. It is meant for cron
// hosts and manual backfills; the server binary runs the same cycle on a
// schedule.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/Ticoworld/savercoin/internal/app"
	"github.com/Ticoworld/savercoin/internal/config"
	"github.com/Ticoworld/savercoin/internal/observability"
)

func main() {
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	cycles := flag.Int("cycles", 1, "Number of consecutive cycles to run")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := observability.SetupLogging(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
		log.Fatal().Err(err).Msg("setup logging")
	}
	logger := observability.Component("sync")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{UseMemory: *useMemory})
	if err != nil {
		logger.Fatal().Err(err).Msg("build app")
	}
	defer a.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	for i := 0; i < *cycles; i++ {
		result, err := a.Driver.RunCycle(ctx)
		if err != nil {
			logger.Error().Err(err).Int("cycle", i+1).Msg("sync cycle failed")
			a.Close()
			os.Exit(1)
		}
		enc.Encode(result)
		if !result.Advanced {
			break
		}
	}
}
