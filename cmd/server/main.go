// Package main runs the contest tracker as a long-lived service:
// - Sync (scheduled): pulls token transfers and updates wallet aggregates
// - Snapshot (scheduled): records the winner once the contest has ended
// - API: leaderboard, wallet, winner and volume endpoints plus a live feed
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Ticoworld/savercoin/internal/api"
	"github.com/Ticoworld/savercoin/internal/app"
	"github.com/Ticoworld/savercoin/internal/config"
	"github.com/Ticoworld/savercoin/internal/observability"
	"github.com/Ticoworld/savercoin/internal/scheduler"
	"github.com/Ticoworld/savercoin/internal/snapshot"
)

// Server holds the running service.
type Server struct {
	app       *app.App
	api       *api.Server
	hub       *api.Hub
	scheduler *scheduler.Scheduler

	mu         sync.Mutex
	started    time.Time
	lastCycle  *cycleSummary
	lastFinal  snapshot.Outcome
	syncCycles int
}

type cycleSummary struct {
	CycleID    string    `json:"cycle_id"`
	StartBlock uint64    `json:"start_block"`
	NextBlock  uint64    `json:"next_block"`
	Fetched    int       `json:"fetched"`
	Ledgered   int       `json:"ledgered"`
	Duplicates int       `json:"duplicates"`
	FinishedAt time.Time `json:"finished_at"`
	Duration   string    `json:"duration"`
}

func main() {
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	runOnStart := flag.Bool("run-on-start", true, "Run a sync cycle immediately on startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := observability.SetupLogging(cfg.LogLevel, cfg.LogFormat, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("setup logging")
	}
	logger := observability.Component("server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, app.Options{UseMemory: *useMemory})
	if err != nil {
		logger.Fatal().Err(err).Msg("build app")
	}
	defer a.Close()

	s := &Server{
		app:     a,
		hub:     api.NewHub(nil, nil),
		started: time.Now(),
	}
	opts := api.Options{
		Leaderboard: a.View,
		Winners:     a.Stores.Winners,
		Archive:     a.Stores.Archive,
		Hub:         s.hub,
		Bucketer:    a.Bucketer,
		Window:      cfg.ContestWindow(),
	}
	if a.Cache != nil {
		opts.Cache = a.Cache
	}
	s.api = api.NewServer(opts)

	s.scheduler = scheduler.New(nil)
	jobs := []scheduler.Job{
		{Name: "sync", Spec: cfg.SyncSchedule, RunOnStart: *runOnStart, Run: s.runSync},
		{Name: "finalize", Spec: cfg.SnapshotSchedule, Run: s.runFinalize},
	}
	for _, job := range jobs {
		if err := s.scheduler.Add(job); err != nil {
			logger.Fatal().Err(err).Str("job", job.Name).Msg("schedule job")
		}
	}

	apiServer := &http.Server{Addr: cfg.HTTPAddr, Handler: s.api.Router(), ReadHeaderTimeout: 10 * time.Second}
	opsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: s.opsRouter(), ReadHeaderTimeout: 10 * time.Second}

	go serve(apiServer, "api")
	go serve(opsServer, "ops")
	s.scheduler.Start(ctx)

	logger.Info().
		Str("token", cfg.TokenContract).
		Time("contest_start", cfg.ContestStart).
		Time("contest_end", cfg.ContestEnd).
		Bool("test_mode", cfg.TestMode).
		Str("sync_schedule", cfg.SyncSchedule).
		Msg("tracker started")

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")

	done := make(chan struct{})
	go func() {
		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error().Msg("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer shutdownCancel()

	// Let a running cycle finish before the stores close.
	select {
	case <-s.scheduler.Stop().Done():
	case <-shutdownCtx.Done():
	}
	cancel()
	s.hub.Close()
	for _, srv := range []*http.Server{apiServer, opsServer} {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Str("addr", srv.Addr).Msg("http shutdown")
		}
	}
	close(done)

	logger.Info().Msg("shutdown complete")
}

func serve(srv *http.Server, name string) {
	logger := observability.Component(name)
	logger.Info().Str("addr", srv.Addr).Msg("starting HTTP server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("HTTP server error")
	}
}

// runSync runs one sync cycle and pushes a fresh leaderboard when rows landed.
func (s *Server) runSync(ctx context.Context) error {
	result, err := s.app.Driver.RunCycle(ctx)
	if result != nil {
		s.mu.Lock()
		s.syncCycles++
		s.lastCycle = &cycleSummary{
			CycleID:    result.CycleID,
			StartBlock: result.StartBlock,
			NextBlock:  result.NextBlock,
			Fetched:    result.Fetched,
			Ledgered:   result.Ledgered,
			Duplicates: result.Duplicates,
			FinishedAt: result.FinishedAt,
			Duration:   result.Duration.String(),
		}
		s.mu.Unlock()
	}
	if err != nil {
		return err
	}
	if result.Ledgered > 0 || result.Reaggregated > 0 {
		return s.api.Refresh(ctx)
	}
	return nil
}

func (s *Server) runFinalize(ctx context.Context) error {
	result, err := s.app.Finalizer.Finalize(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lastFinal = result.Outcome
	s.mu.Unlock()
	return nil
}

// opsRouter serves health, metrics and status.
func (s *Server) opsRouter() http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("/status", s.handleStatus)

	// Manual sync trigger, runs in the background
	mux.HandleFunc("/sync", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		switch err := s.scheduler.TriggerAsync("sync"); {
		case errors.Is(err, scheduler.ErrUnknownJob):
			w.WriteHeader(http.StatusNotFound)
		case errors.Is(err, scheduler.ErrJobRunning):
			w.WriteHeader(http.StatusConflict)
		case err != nil:
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusAccepted)
		}
	})

	return mux
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status        string                `json:"status"`
	Uptime        string                `json:"uptime"`
	Started       time.Time             `json:"started"`
	SyncCycles    int                   `json:"sync_cycles"`
	LastCycle     *cycleSummary         `json:"last_cycle,omitempty"`
	Checkpoint    *uint64               `json:"checkpoint,omitempty"`
	LastFinalize  string                `json:"last_finalize,omitempty"`
	WSClients     int                   `json:"ws_clients"`
	Jobs          []scheduler.JobStatus `json:"jobs"`
	ContestActive bool                  `json:"contest_active"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:       "running",
		Uptime:       time.Since(s.started).Round(time.Second).String(),
		Started:      s.started,
		SyncCycles:   s.syncCycles,
		LastCycle:    s.lastCycle,
		LastFinalize: string(s.lastFinal),
	}
	s.mu.Unlock()

	resp.WSClients = s.hub.Clients()
	resp.Jobs = s.scheduler.Status()
	resp.ContestActive = s.app.Config.ContestWindow().Contains(time.Now().Unix())
	if block, err := s.app.Stores.Checkpoints.GetCheckpoint(r.Context()); err == nil {
		resp.Checkpoint = &block
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
