// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New() returns a Config filled with defaults.
//   - Load(ctx) layers defaults, an optional YAML file and GHOSTRUN_* env vars.
//   - Validate reports problems wrapped in ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreBolt   = "bolt"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Store selects the state backend: memory or bolt.
	Store string `koanf:"store"`

	// BoltPath is the database file used when Store is bolt.
	BoltPath string `koanf:"bolt_path"`

	// QueueSize bounds the in-memory settlement queue.
	QueueSize int `koanf:"queue_size"`

	// DedupeSize sets how many settled run IDs are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxTurns is the longest run history a battle may be finished with.
	MaxTurns int `koanf:"max_turns"`

	// InitialUpgradeCoin is the upgrade coin balance of a new run.
	InitialUpgradeCoin uint8 `koanf:"initial_upgrade_coin"`

	// LeaderboardSize is the published ranking size.
	LeaderboardSize int `koanf:"leaderboard_size"`

	// LeaderboardSurplus is the extra tracked capacity below the published ranking.
	LeaderboardSurplus int `koanf:"leaderboard_surplus"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// SeedEntropy is mixed into every derived seed. Changing it changes
	// every opponent choice made afterwards.
	SeedEntropy string `koanf:"seed_entropy"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		Store:               StoreMemory,
		BoltPath:            "ghostrun.db",
		QueueSize:           10_000,
		DedupeSize:          100_000,
		MaxTurns:            30,
		InitialUpgradeCoin:  2,
		LeaderboardSize:     100,
		LeaderboardSurplus:  30,
		MaxLeaderboardLimit: 100,
		SeedEntropy:         "ghostrun",
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Addr) == "" {
		problems = append(problems, "addr must not be empty")
	}
	switch c.Store {
	case StoreMemory:
	case StoreBolt:
		if strings.TrimSpace(c.BoltPath) == "" {
			problems = append(problems, "bolt_path must not be empty when store is bolt")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store %q", c.Store))
	}
	if c.QueueSize < 1 {
		problems = append(problems, "queue_size must be positive")
	}
	if c.MaxTurns < 1 {
		problems = append(problems, "max_turns must be positive")
	}
	if c.LeaderboardSize < 1 {
		problems = append(problems, "leaderboard_size must be positive")
	}
	if c.LeaderboardSurplus < 0 {
		problems = append(problems, "leaderboard_surplus must not be negative")
	}
	if c.MaxLeaderboardLimit < 1 || c.MaxLeaderboardLimit > c.LeaderboardSize {
		problems = append(problems, "max_leaderboard_limit must be between 1 and leaderboard_size")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
