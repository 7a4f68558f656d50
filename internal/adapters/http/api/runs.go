package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/ghostrun/internal/app"
	"github.com/okian/ghostrun/internal/domain/ghost"
	"github.com/okian/ghostrun/internal/domain/rating"
	"github.com/okian/ghostrun/internal/domain/run"
)

// RunDependencies defines the run lifecycle operations.
type RunDependencies interface {
	StartRun(ctx context.Context, account string) (run.State, error)
	Run(ctx context.Context, account string) (run.State, error)
	AbandonRun(ctx context.Context, account string) error
	FinishBattle(ctx context.Context, account string, report service.BattleReport) (run.State, error)
	FinishRun(ctx context.Context, account string, place rating.Placement) (service.FinishResult, error)
}

// RunsHandler handles /runs requests.
type RunsHandler struct {
	deps RunDependencies
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(deps RunDependencies) *RunsHandler {
	return &RunsHandler{deps: deps}
}

type battleRequest struct {
	GradeAndBoard run.GradeAndBoard `json:"grade_and_board"`
	GhostStates   []ghost.State     `json:"ghost_states"`
}

type battleResponse struct {
	UpgradeCoin      run.UpgradeCoin `json:"upgrade_coin"`
	BattleGhostIndex uint8           `json:"battle_ghost_index"`
}

type finishRequest struct {
	Place *int `json:"place"`
}

type ackResponse struct {
	Status    string `json:"status"`
	RunID     string `json:"run_id"`
	Duplicate bool   `json:"duplicate"`
}

// HandleStartRun handles POST /runs/{account}.
func (h *RunsHandler) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	const op = "api.start_run"
	st, err := h.deps.StartRun(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// HandleGetRun handles GET /runs/{account}.
func (h *RunsHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_run"
	st, err := h.deps.Run(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleAbandonRun handles DELETE /runs/{account}.
func (h *RunsHandler) HandleAbandonRun(w http.ResponseWriter, r *http.Request) {
	const op = "api.abandon_run"
	if err := h.deps.AbandonRun(r.Context(), chi.URLParam(r, "account")); err != nil {
		writeServiceError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleFinishBattle handles POST /runs/{account}/battles.
func (h *RunsHandler) HandleFinishBattle(w http.ResponseWriter, r *http.Request) {
	const op = "api.finish_battle"
	var req battleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	st, err := h.deps.FinishBattle(r.Context(), chi.URLParam(r, "account"), service.BattleReport{
		GradeAndBoard: req.GradeAndBoard,
		Ghosts:        req.GhostStates,
	})
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, battleResponse{UpgradeCoin: st.UpgradeCoin, BattleGhostIndex: st.BattleGhostIndex})
}

// HandleFinishRun handles POST /runs/{account}/finish.
func (h *RunsHandler) HandleFinishRun(w http.ResponseWriter, r *http.Request) {
	const op = "api.finish_run"
	var req finishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Place == nil || *req.Place < 1 || *req.Place > 4 {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, rating.ErrInvalidPlacement))
		return
	}

	res, err := h.deps.FinishRun(r.Context(), chi.URLParam(r, "account"), rating.Placement(*req.Place))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	if res.Duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", RunID: res.RunID, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", RunID: res.RunID})
}
