// Package api serves the contest state over HTTP and pushes leaderboard
// updates over a websocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Ticoworld/savercoin/internal/buyday"
	"github.com/Ticoworld/savercoin/internal/domain"
	"github.com/Ticoworld/savercoin/internal/leaderboard"
	"github.com/Ticoworld/savercoin/internal/storage"
)

// LeaderboardReader is the read side of the contest state.
type LeaderboardReader interface {
	Leaderboard(ctx context.Context) ([]leaderboard.Entry, error)
	Wallet(ctx context.Context, address string) (*domain.WalletAggregate, error)
}

// LeaderboardCache holds rendered leaderboard bodies.
type LeaderboardCache interface {
	GetLeaderboard(ctx context.Context) ([]byte, bool, error)
	SetLeaderboard(ctx context.Context, body []byte) error
	Invalidate(ctx context.Context) error
}

// Options configures a Server. Cache, Archive and Hub are optional.
type Options struct {
	Leaderboard LeaderboardReader
	Winners     storage.WinnerStore
	Archive     storage.TransactionArchive
	Cache       LeaderboardCache
	Hub         *Hub
	Bucketer    buyday.Bucketer
	Window      domain.ContestWindow
	Logger      *zerolog.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	board    LeaderboardReader
	winners  storage.WinnerStore
	archive  storage.TransactionArchive
	cache    LeaderboardCache
	hub      *Hub
	bucketer buyday.Bucketer
	window   domain.ContestWindow
	logger   zerolog.Logger
}

// NewServer creates a Server.
func NewServer(opts Options) *Server {
	logger := log.Logger.With().Str("component", "api").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Server{
		board:    opts.Leaderboard,
		winners:  opts.Winners,
		archive:  opts.Archive,
		cache:    opts.Cache,
		hub:      opts.Hub,
		bucketer: opts.Bucketer,
		window:   opts.Window,
		logger:   logger,
	}
}

// Router returns the route table.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/leaderboard", s.handleLeaderboard).Methods(http.MethodGet)
	apiRouter.HandleFunc("/wallet/{address}", s.handleWallet).Methods(http.MethodGet)
	apiRouter.HandleFunc("/winner", s.handleWinner).Methods(http.MethodGet)
	apiRouter.HandleFunc("/stats/daily-volume", s.handleDailyVolume).Methods(http.MethodGet)
	if s.hub != nil {
		apiRouter.Handle("/ws/leaderboard", s.hub)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondMessage(w, "Not found", http.StatusNotFound)
	})
	return r
}

// Refresh drops the cached leaderboard and pushes a fresh one to websocket
// clients. It is called after a sync cycle that changed the ledger.
func (s *Server) Refresh(ctx context.Context) error {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("leaderboard cache invalidate failed")
		}
	}
	if s.hub == nil {
		return nil
	}
	body, err := s.renderLeaderboard(ctx)
	if err != nil {
		return err
	}
	s.hub.Broadcast(body)
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.cache != nil {
		body, ok, err := s.cache.GetLeaderboard(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("leaderboard cache read failed")
		}
		if ok {
			writeBody(w, body)
			return
		}
	}

	body, err := s.renderLeaderboard(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("leaderboard query failed")
		respondMessage(w, "Server error", http.StatusInternalServerError)
		return
	}

	if s.cache != nil {
		if err := s.cache.SetLeaderboard(ctx, body); err != nil {
			s.logger.Warn().Err(err).Msg("leaderboard cache write failed")
		}
	}
	writeBody(w, body)
}

func (s *Server) renderLeaderboard(ctx context.Context) ([]byte, error) {
	entries, err := s.board.Leaderboard(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(toLeaderboardEntries(entries))
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	wallet, err := s.board.Wallet(r.Context(), address)
	if errors.Is(err, storage.ErrNotFound) {
		respondMessage(w, "Wallet not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("address", address).Msg("wallet query failed")
		respondMessage(w, "Server error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, toWalletResponse(wallet))
}

func (s *Server) handleWinner(w http.ResponseWriter, r *http.Request) {
	winner, err := s.winners.Get(r.Context())
	if errors.Is(err, storage.ErrNotFound) {
		respondMessage(w, "Contest not finalized", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("winner query failed")
		respondMessage(w, "Server error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, toWinnerResponse(winner))
}

// handleDailyVolume reports archived volume per buy day. from and to are
// optional Unix seconds and default to the contest window.
func (s *Server) handleDailyVolume(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		respondMessage(w, "Archive not configured", http.StatusServiceUnavailable)
		return
	}

	from, err := queryInt(r, "from", s.window.Start)
	if err != nil {
		respondMessage(w, "invalid from", http.StatusBadRequest)
		return
	}
	to, err := queryInt(r, "to", s.window.End)
	if err != nil || to < from {
		respondMessage(w, "invalid to", http.StatusBadRequest)
		return
	}

	width := int64(s.bucketer.Width() / time.Second)
	buckets, err := s.archive.VolumeByBucket(r.Context(), width, from, to)
	if err != nil {
		s.logger.Error().Err(err).Msg("volume query failed")
		respondMessage(w, "Server error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, toVolumeResponses(buckets, func(idx int64) string {
		return s.bucketer.Label(idx * width)
	}))
}

func queryInt(r *http.Request, key string, def int64) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func writeBody(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(data)
}

func respondMessage(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(messageResponse{Message: message})
}
