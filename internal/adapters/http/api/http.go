// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	service "github.com/okian/ghostrun/internal/app"
	"github.com/okian/ghostrun/internal/adapters/repository"
	"github.com/okian/ghostrun/internal/domain/model"
	"github.com/okian/ghostrun/internal/domain/rating"
	"github.com/okian/ghostrun/internal/domain/run"
	"github.com/okian/ghostrun/internal/domain/types"
)

const defaultMaxLimit = 100

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	RunDependencies
	PlayerDependencies
	LeaderboardDependencies
	RankDependencies
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	runsHandler        *RunsHandler
	playersHandler     *PlayersHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
}

// NewServer creates a new API server with all handlers. A maxLimit below 1
// falls back to the published leaderboard size.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	if maxLimit < 1 {
		maxLimit = defaultMaxLimit
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		runsHandler:        NewRunsHandler(deps),
		playersHandler:     NewPlayersHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLimit),
		rankHandler:        NewRankHandler(deps),
	}
}

// Routes returns the router serving every endpoint.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Handle("/metrics", s.healthHandler.MetricsHandler())
	r.Get("/stats", s.statsHandler.HandleStats)

	r.Route("/runs/{account}", func(r chi.Router) {
		r.Post("/", s.runsHandler.HandleStartRun)
		r.Get("/", s.runsHandler.HandleGetRun)
		r.Delete("/", s.runsHandler.HandleAbandonRun)
		r.Post("/battles", s.runsHandler.HandleFinishBattle)
		r.Post("/finish", s.runsHandler.HandleFinishRun)
	})
	r.Get("/players/{account}", s.playersHandler.HandleGetPlayer)
	r.Get("/leaderboard", s.leaderboardHandler.HandleGetLeaderboard)
	r.Get("/rank/{account}", s.rankHandler.HandleGetRank)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service and domain errors to a status and code.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, run.ErrMaxTurnExceeded), errors.Is(err, run.ErrGhostSelection):
		writeError(w, http.StatusConflict, "settlement_aborted", WrapKind(op, ErrAborted, err))
	case errors.Is(err, service.ErrRunFinishing):
		writeError(w, http.StatusConflict, "run_finishing", WrapKind(op, ErrAborted, err))
	case errors.Is(err, service.ErrNoRun), errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, rating.ErrInvalidPlacement),
		errors.Is(err, service.ErrInvalidRoster),
		errors.Is(err, service.ErrEmptyAccount),
		errors.Is(err, repository.ErrInvalidLimit),
		errors.Is(err, model.ErrMissingField):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, repository.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", Wrap(op, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}
