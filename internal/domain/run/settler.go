package run

import (
	"fmt"

	"github.com/okian/ghostrun/internal/domain/ghost"
)

// Selector picks the next roster index from the roster, the current index
// and a seed. It must be a pure function of its inputs.
type Selector func(states []ghost.State, current uint8, seed uint64) (uint8, error)

// Option configures a Settler.
type Option func(*Settler)

// WithMaxTurns sets the turn limit.
func WithMaxTurns(n int) Option {
	return func(s *Settler) {
		if n > 0 {
			s.limit.Max = n
		}
	}
}

// WithSelector replaces the ghost selector.
func WithSelector(sel Selector) Option {
	return func(s *Settler) {
		if sel != nil {
			s.selectGhost = sel
		}
	}
}

// Settler takes the decision reached at the end of every battle.
type Settler struct {
	limit       TurnLimit
	selectGhost Selector
}

// NewSettler creates a Settler using DefaultMaxTurns and ghost.SelectBattleIndex.
func NewSettler(opts ...Option) *Settler {
	s := &Settler{
		limit:       TurnLimit{Max: DefaultMaxTurns},
		selectGhost: ghost.SelectBattleIndex,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxTurns returns the configured turn limit.
func (s *Settler) MaxTurns() int { return s.limit.Max }

// FinishBattle validates the history, spends one upgrade coin and picks the
// next ghost to fight.
//
// Any error aborts the whole step: the returned coin and index are the inputs
// unchanged and the caller must not persist anything. ErrMaxTurnExceeded is
// checked before anything else.
func (s *Settler) FinishBattle(
	coin UpgradeCoin,
	ghosts []ghost.State,
	battleGhostIndex uint8,
	newSeed uint64,
	history History,
) (UpgradeCoin, uint8, error) {
	if s.limit.Exceeded(history) {
		return coin, battleGhostIndex, fmt.Errorf("%w: %d turns, limit %d", ErrMaxTurnExceeded, len(history), s.limit.Max)
	}

	next := DecreaseUpgradeCoin(coin)

	idx, err := s.selectGhost(ghosts, battleGhostIndex, newSeed)
	if err != nil {
		return coin, battleGhostIndex, fmt.Errorf("%w: %w", ErrGhostSelection, err)
	}
	return next, idx, nil
}
