// Package types contains common types used across the application
package types

// Entry represents a ranked leaderboard entry.
// Rank is 1-based. Surplus entries are tracked but not published.
type Entry struct {
	Rank    int    `json:"rank"`
	Account string `json:"account"`
	EP      uint16 `json:"ep"`
	Surplus bool   `json:"surplus,omitempty"`
}
