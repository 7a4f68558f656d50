// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"

	"github.com/okian/ghostrun/internal/domain/rating"
)

// Settlement is a finished run waiting to be folded into ratings and the
// leaderboard.
type Settlement struct {
	RunID   string           // run being settled, used for idempotency
	Account string           // owner of the run
	Place   rating.Placement // finishing position, 1..4
	TS      time.Time        // time the run was finished
}

// Validate checks the fields a settlement cannot be applied without.
func (s Settlement) Validate() error {
	if s.RunID == "" {
		return fmt.Errorf("%w: run id", ErrMissingField)
	}
	if s.Account == "" {
		return fmt.Errorf("%w: account", ErrMissingField)
	}
	if !s.Place.Valid() {
		return fmt.Errorf("%w: %d", rating.ErrInvalidPlacement, s.Place)
	}
	return nil
}

// PlayerRating is an account with its current EP.
type PlayerRating struct {
	Account string `json:"account"`
	EP      uint16 `json:"ep"`
}
