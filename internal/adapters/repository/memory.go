package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/ghostrun/internal/domain/leaderboard"
	"github.com/okian/ghostrun/internal/domain/run"
	"github.com/okian/ghostrun/internal/domain/types"
	"github.com/okian/ghostrun/pkg/metrics"
)

// Snapshot is an immutable view of the leaderboard published after every
// settlement. Reads use it without taking the store lock.
type Snapshot struct {
	Entries   []types.Entry
	ByAccount map[string]int // account -> index in Entries
	Published int
}

// MemoryStore keeps all state in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	players map[string]Player
	runs    map[string]run.State
	board   *leaderboard.Board[string]
	closed  bool

	snapshot atomic.Pointer[Snapshot]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	c := newConfig(opts)
	s := &MemoryStore{
		players: make(map[string]Player),
		runs:    make(map[string]run.State),
		board:   leaderboard.NewBoard[string](c.boardOpts...),
	}
	s.publishSnapshot()
	return s
}

// publishSnapshot rebuilds the read view. Callers hold the write lock or are
// the only reference to s.
func (s *MemoryStore) publishSnapshot() {
	entries := s.board.Entries()
	snap := &Snapshot{
		Entries:   make([]types.Entry, len(entries)),
		ByAccount: make(map[string]int, len(entries)),
		Published: s.board.Size(),
	}
	for i, e := range entries {
		snap.Entries[i] = rankEntry(i, e.Account, e.EP, snap.Published)
		snap.ByAccount[e.Account] = i
	}
	s.snapshot.Store(snap)
}

func (s *MemoryStore) Player(_ context.Context, account string) (Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Player{}, ErrClosed
	}
	p, ok := s.players[account]
	if !ok {
		return Player{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) SavePlayer(_ context.Context, account string, p Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.players[account] = p
	return nil
}

func (s *MemoryStore) Run(_ context.Context, account string) (run.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return run.State{}, ErrClosed
	}
	st, ok := s.runs[account]
	if !ok {
		return run.State{}, ErrNotFound
	}
	return st.Clone(), nil
}

func (s *MemoryStore) SaveRun(_ context.Context, account string, st run.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.runs[account] = st.Clone()
	return nil
}

func (s *MemoryStore) RemoveRun(_ context.Context, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.runs[account]; !ok {
		return ErrNotFound
	}
	delete(s.runs, account)
	return nil
}

// CommitSettlement writes the new EP and seed, removes the run and updates
// the leaderboard under one write lock.
func (s *MemoryStore) CommitSettlement(_ context.Context, c Commit) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency("commit", float64(time.Since(start).Microseconds())/1000)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.players[c.Account] = Player{EP: c.EP, HasEP: true, Seed: c.Seed}
	delete(s.runs, c.Account)
	s.board.Update(c.EP, c.Account)
	s.publishSnapshot()

	metrics.RecordLeaderboardUpdate()
	metrics.UpdateLeaderboardSize(s.board.Len())
	return nil
}

func (s *MemoryStore) Rank(_ context.Context, account string) (types.Entry, error) {
	snap := s.snapshot.Load()
	i, ok := snap.ByAccount[account]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return types.Entry{}, ErrNotFound
	}
	return snap.Entries[i], nil
}

func (s *MemoryStore) TopN(_ context.Context, n int) ([]types.Entry, error) {
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	snap := s.snapshot.Load()
	n = min(n, snap.Published, len(snap.Entries))
	out := make([]types.Entry, n)
	copy(out, snap.Entries[:n])
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) int {
	return len(s.snapshot.Load().Entries)
}

// Snapshot returns the latest published leaderboard view.
func (s *MemoryStore) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
