// Package run holds run-scoped state and the decision taken at the end of
// every battle.
package run

import (
	"bytes"
	"encoding/json"

	"github.com/okian/ghostrun/internal/domain/ghost"
	"github.com/okian/ghostrun/internal/domain/rating"
)

// DefaultMaxTurns is the longest history a battle may be finished with.
const DefaultMaxTurns = 30

// GradeAndBoard is the snapshot recorded for one turn of a run.
// Its content is owned by the combat simulator; only the count matters here.
type GradeAndBoard struct {
	Grade uint8    `json:"grade"`
	Board []uint16 `json:"board,omitempty"`
}

// History is the ordered sequence of turn snapshots of a run.
type History []GradeAndBoard

// UpgradeCoin is an optional counter. Valid false means no coin is left.
type UpgradeCoin struct {
	Value uint8
	Valid bool
}

// NewUpgradeCoin returns a present balance of n.
func NewUpgradeCoin(n uint8) UpgradeCoin {
	return UpgradeCoin{Value: n, Valid: true}
}

// DecreaseUpgradeCoin takes one unit off c. A zero balance becomes absent and
// an absent balance stays absent.
func DecreaseUpgradeCoin(c UpgradeCoin) UpgradeCoin {
	if !c.Valid || c.Value == 0 {
		return UpgradeCoin{}
	}
	return UpgradeCoin{Value: c.Value - 1, Valid: true}
}

// MarshalJSON encodes an absent balance as null.
func (c UpgradeCoin) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(c.Value)
}

// UnmarshalJSON decodes a number or null.
func (c *UpgradeCoin) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*c = UpgradeCoin{}
		return nil
	}
	var v uint8
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*c = NewUpgradeCoin(v)
	return nil
}

// TurnLimit validates history length.
type TurnLimit struct {
	Max int
}

// Exceeded reports whether history is longer than the limit.
func (l TurnLimit) Exceeded(h History) bool {
	return len(h) > l.Max
}

// State is everything a run owns between its start and its settlement.
type State struct {
	ID               string        `json:"id"`
	Ghosts           []ghost.State `json:"ghost_states"`
	BattleGhostIndex uint8         `json:"battle_ghost_index"`
	UpgradeCoin      UpgradeCoin   `json:"upgrade_coin"`
	History          History       `json:"history"`
	// Seed is the latest seed derived for this run.
	Seed uint64 `json:"seed"`
	// EP is the rating the run was started at.
	EP uint16 `json:"ep"`
	// FinishPlace is set once the run is finished and its settlement queued.
	FinishPlace rating.Placement `json:"finish_place,omitempty"`
}

// Finishing reports whether the run is waiting for its settlement.
func (s State) Finishing() bool {
	return s.FinishPlace != 0
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Ghosts = append([]ghost.State(nil), s.Ghosts...)
	if s.History != nil {
		out.History = make(History, len(s.History))
		for i, gb := range s.History {
			out.History[i] = GradeAndBoard{Grade: gb.Grade, Board: append([]uint16(nil), gb.Board...)}
		}
	}
	return out
}
