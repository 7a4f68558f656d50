package repository

import "github.com/okian/ghostrun/internal/domain/leaderboard"

type config struct {
	boardOpts []leaderboard.Option
}

// Option applies a configuration option to a store.
type Option func(*config)

// WithLeaderboardSize sets the published ranking size.
func WithLeaderboardSize(n int) Option {
	return func(c *config) {
		c.boardOpts = append(c.boardOpts, leaderboard.WithSize(n))
	}
}

// WithLeaderboardSurplus sets the number of extra tracked slots.
func WithLeaderboardSurplus(n int) Option {
	return func(c *config) {
		c.boardOpts = append(c.boardOpts, leaderboard.WithSurplus(n))
	}
}

func newConfig(opts []Option) config {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
