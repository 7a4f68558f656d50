// Package repository persists per-account state, open runs and the
// leaderboard sequence.
package repository

import (
	"context"

	"github.com/okian/ghostrun/internal/domain/run"
	"github.com/okian/ghostrun/internal/domain/types"
)

// Player is the long-lived state of an account.
type Player struct {
	// EP is meaningful only when HasEP is set.
	EP    uint16 `json:"ep"`
	HasEP bool   `json:"has_ep"`
	// Seed is the last seed derived for the account.
	Seed uint64 `json:"seed"`
}

// Commit is everything written when a run is settled.
type Commit struct {
	Account string
	EP      uint16
	Seed    uint64
}

// Store provides read/write access to player, run and ranking state.
//
// CommitSettlement is the only path that mutates the leaderboard, and it
// applies the player write, the run removal and the leaderboard update
// together or not at all.
type Store interface {
	// Player returns the account state. Returns ErrNotFound if the account is unknown.
	Player(ctx context.Context, account string) (Player, error)
	SavePlayer(ctx context.Context, account string, p Player) error

	// Run returns the account's open run. Returns ErrNotFound if there is none.
	Run(ctx context.Context, account string) (run.State, error)
	SaveRun(ctx context.Context, account string, st run.State) error
	// RemoveRun deletes the open run. Returns ErrNotFound if there is none.
	RemoveRun(ctx context.Context, account string) error

	CommitSettlement(ctx context.Context, c Commit) error

	// Rank returns the account's leaderboard position.
	// Returns ErrNotFound if the account is not tracked.
	Rank(ctx context.Context, account string) (types.Entry, error)

	// TopN returns up to n published entries, best first.
	TopN(ctx context.Context, n int) ([]types.Entry, error)

	// Count returns the number of tracked leaderboard entries, surplus included.
	Count(ctx context.Context) int

	Close() error
}

func rankEntry(pos int, account string, ep uint16, published int) types.Entry {
	return types.Entry{Rank: pos + 1, Account: account, EP: ep, Surplus: pos >= published}
}
