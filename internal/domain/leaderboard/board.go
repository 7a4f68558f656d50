package leaderboard

import "fmt"

// Option configures a Board.
type Option func(*options)

type options struct {
	size    int
	surplus int
}

// WithSize sets the number of published ranks.
func WithSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.size = n
		}
	}
}

// WithSurplus sets the number of extra tracked slots.
func WithSurplus(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.surplus = n
		}
	}
}

// Board owns a ranked sequence together with its bounds.
// It is not safe for concurrent use.
type Board[A comparable] struct {
	size    int
	surplus int
	entries []Entry[A]
}

// NewBoard creates an empty board. Defaults are Size and SurplusSize.
func NewBoard[A comparable](opts ...Option) *Board[A] {
	o := options{size: Size, surplus: SurplusSize}
	for _, opt := range opts {
		opt(&o)
	}
	return &Board[A]{
		size:    o.size,
		surplus: o.surplus,
		entries: make([]Entry[A], 0, o.size+o.surplus+1),
	}
}

// Size returns the number of published ranks.
func (b *Board[A]) Size() int { return b.size }

// Capacity returns the number of tracked entries, surplus included.
func (b *Board[A]) Capacity() int { return b.size + b.surplus }

// Len returns the number of tracked entries.
func (b *Board[A]) Len() int { return len(b.entries) }

// Update places account at ep.
func (b *Board[A]) Update(ep uint16, account A) {
	b.entries = Update(b.entries, ep, account, b.Capacity())
}

// Entries returns a copy of every tracked entry, best first.
func (b *Board[A]) Entries() []Entry[A] {
	out := make([]Entry[A], len(b.entries))
	copy(out, b.entries)
	return out
}

// Top returns a copy of up to n published entries. Surplus entries are never
// included.
func (b *Board[A]) Top(n int) []Entry[A] {
	n = min(n, b.size, len(b.entries))
	if n <= 0 {
		return []Entry[A]{}
	}
	out := make([]Entry[A], n)
	copy(out, b.entries[:n])
	return out
}

// Position returns the zero-based index of account and whether it is tracked.
// Positions at or past Size are in the surplus region.
func (b *Board[A]) Position(account A) (int, bool) {
	i := indexOf(b.entries, account)
	return i, i >= 0
}

// Restore replaces the board contents with persisted entries after checking
// they are ordered and unique. Entries past the capacity, left over from a
// larger configuration, are dropped from the tail.
func (b *Board[A]) Restore(entries []Entry[A]) error {
	seen := make(map[A]struct{}, len(entries))
	for i, e := range entries {
		if i > 0 && entries[i-1].EP < e.EP {
			return fmt.Errorf("%w: entry %d out of order", ErrCorrupt, i)
		}
		if _, dup := seen[e.Account]; dup {
			return fmt.Errorf("%w: duplicate account at entry %d", ErrCorrupt, i)
		}
		seen[e.Account] = struct{}{}
	}
	b.entries = append(b.entries[:0], entries[:min(len(entries), b.Capacity())]...)
	return nil
}
