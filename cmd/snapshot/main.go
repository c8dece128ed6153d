// Package main finalizes the contest once and prints the outcome.
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
	syncFirst := flag.Bool("sync-first", true, "Run one sync cycle before finalizing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := observability.SetupLogging(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
		log.Fatal().Err(err).Msg("setup logging")
	}
	logger := observability.Component("snapshot")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{UseMemory: *useMemory})
	if err != nil {
		logger.Fatal().Err(err).Msg("build app")
	}
	defer a.Close()

	if *syncFirst {
		if _, err := a.Driver.RunCycle(ctx); err != nil {
			logger.Warn().Err(err).Msg("sync before finalize failed, finalizing on stored state")
		}
	}

	result, err := a.Finalizer.Finalize(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("finalize failed")
		a.Close()
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(result)
}
