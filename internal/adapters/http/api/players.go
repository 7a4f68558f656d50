package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/ghostrun/internal/domain/model"
)

// PlayerDependencies defines the player read operations.
type PlayerDependencies interface {
	Player(ctx context.Context, account string) (model.PlayerRating, error)
}

// PlayersHandler handles player requests.
type PlayersHandler struct {
	deps PlayerDependencies
}

// NewPlayersHandler creates a new players handler.
func NewPlayersHandler(deps PlayerDependencies) *PlayersHandler {
	return &PlayersHandler{deps: deps}
}

// HandleGetPlayer handles GET /players/{account} requests.
func (h *PlayersHandler) HandleGetPlayer(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_player"
	p, err := h.deps.Player(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
