// Package leaderboard maintains a capped ranking of accounts ordered by EP.
//
// The sequence is kept in non-increasing EP order, holds at most one entry per
// account, and never grows past its capacity. Equal ratings keep the order in
// which they were placed: an entry placed later ranks below earlier entries
// with the same EP.
//
// Nothing in this package locks. Callers serialize mutations of a board.
package leaderboard

import (
	"slices"
	"sort"
)

const (
	// Size is the number of published ranks.
	Size = 100
	// SurplusSize is the number of extra tracked slots below the published ranks.
	SurplusSize = 30
)

// Entry is a single ranked account.
type Entry[A comparable] struct {
	EP      uint16 `json:"ep"`
	Account A      `json:"account"`
}

// Update folds (ep, account) into entries and returns the resulting slice.
// The backing array of entries is reused. capacity bounds the result length.
//
// An account already on the board is moved to its new position. When that
// position is past every other entry it keeps a tail slot only if the board
// was not already full; otherwise it drops off. A new account is inserted and
// the board truncated to capacity, or ignored when it would rank last on a
// full board.
func Update[A comparable](entries []Entry[A], ep uint16, account A, capacity int) []Entry[A] {
	full := len(entries) >= capacity

	if i := indexOf(entries, account); i >= 0 {
		entries = slices.Delete(entries, i, i+1)
	}

	// First entry ranking strictly below ep; the new entry goes right before it.
	pos := sort.Search(len(entries), func(i int) bool { return entries[i].EP < ep })

	if pos == len(entries) {
		if full {
			return entries
		}
		return append(entries, Entry[A]{EP: ep, Account: account})
	}

	entries = slices.Insert(entries, pos, Entry[A]{EP: ep, Account: account})

	if len(entries) > capacity {
		clear(entries[capacity:])
		entries = entries[:capacity]
	}
	return entries
}

func indexOf[A comparable](entries []Entry[A], account A) int {
	for i := range entries {
		if entries[i].Account == account {
			return i
		}
	}
	return -1
}
