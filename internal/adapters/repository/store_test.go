package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/okian/ghostrun/internal/domain/ghost"
	"github.com/okian/ghostrun/internal/domain/run"
)

type storeFactory struct {
	name string
	open func(t *testing.T, opts ...Option) Store
}

func factories() []storeFactory {
	return []storeFactory{
		{"memory", func(t *testing.T, opts ...Option) Store {
			return NewMemoryStore(opts...)
		}},
		{"bolt", func(t *testing.T, opts ...Option) Store {
			s, err := OpenBoltStore(filepath.Join(t.TempDir(), "ghostrun.db"), opts...)
			if err != nil {
				t.Fatalf("open bolt store: %v", err)
			}
			return s
		}},
	}
}

func eachStore(t *testing.T, fn func(t *testing.T, s Store), opts ...Option) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t, opts...)
			defer func() { _ = s.Close() }()
			fn(t, s)
		})
	}
}

func sampleRun(id string) run.State {
	return run.State{
		ID:          id,
		Ghosts:      ghost.BuildInitialStates(300, func(uint16) uint16 { return 3 }),
		UpgradeCoin: run.NewUpgradeCoin(2),
		History:     run.History{{Grade: 1, Board: []uint16{4}}},
		Seed:        42,
		EP:          300,
	}
}

func TestStore_Players(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if _, err := s.Player(ctx, "alice"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		want := Player{EP: 250, HasEP: true, Seed: 9}
		if err := s.SavePlayer(ctx, "alice", want); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, err := s.Player(ctx, "alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("expected %+v, got %+v", want, got)
		}
	})
}

func TestStore_Runs(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if _, err := s.Run(ctx, "alice"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := s.RemoveRun(ctx, "alice"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound on remove, got %v", err)
		}

		st := sampleRun("run-1")
		if err := s.SaveRun(ctx, "alice", st); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := s.Run(ctx, "alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ID != "run-1" || got.Seed != 42 || got.UpgradeCoin != run.NewUpgradeCoin(2) {
			t.Errorf("unexpected run: %+v", got)
		}
		if len(got.Ghosts) != ghost.RosterSize || got.Ghosts[0].Health != 20 {
			t.Errorf("unexpected ghosts: %+v", got.Ghosts)
		}
		if len(got.History) != 1 || got.History[0].Board[0] != 4 {
			t.Errorf("unexpected history: %+v", got.History)
		}

		// Mutating a returned run must not leak into the store.
		got.Ghosts[0].Health = 1
		again, _ := s.Run(ctx, "alice")
		if again.Ghosts[0].Health != 20 {
			t.Errorf("store returned shared state")
		}

		if err := s.RemoveRun(ctx, "alice"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := s.Run(ctx, "alice"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected run removed, got %v", err)
		}
	})
}

func TestStore_CommitSettlement(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if err := s.SaveRun(ctx, "alice", sampleRun("run-1")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := s.CommitSettlement(ctx, Commit{Account: "alice", EP: 70, Seed: 7}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		p, err := s.Player(ctx, "alice")
		if err != nil || p.EP != 70 || !p.HasEP || p.Seed != 7 {
			t.Errorf("unexpected player %+v, err %v", p, err)
		}
		if _, err := s.Run(ctx, "alice"); !errors.Is(err, ErrNotFound) {
			t.Errorf("run should be removed by settlement, got %v", err)
		}

		entry, err := s.Rank(ctx, "alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if entry.Rank != 1 || entry.EP != 70 || entry.Surplus {
			t.Errorf("unexpected entry: %+v", entry)
		}
		if s.Count(ctx) != 1 {
			t.Errorf("expected count 1, got %d", s.Count(ctx))
		}
	})
}

func TestStore_Leaderboard(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		// 3 published, 2 surplus.
		for i := 0; i < 7; i++ {
			c := Commit{Account: fmt.Sprintf("acct-%d", i), EP: uint16(100 + 10*i)}
			if err := s.CommitSettlement(ctx, c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		if got := s.Count(ctx); got != 5 {
			t.Fatalf("expected 5 tracked entries, got %d", got)
		}

		top, err := s.TopN(ctx, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(top) != 3 {
			t.Fatalf("expected 3 published entries, got %d", len(top))
		}
		for i, want := range []string{"acct-6", "acct-5", "acct-4"} {
			if top[i].Account != want || top[i].Rank != i+1 {
				t.Errorf("rank %d: expected %s, got %+v", i+1, want, top[i])
			}
		}

		surplus, err := s.Rank(ctx, "acct-2")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if surplus.Rank != 5 || !surplus.Surplus {
			t.Errorf("expected surplus rank 5, got %+v", surplus)
		}

		if _, err := s.Rank(ctx, "acct-0"); !errors.Is(err, ErrNotFound) {
			t.Errorf("evicted account should be untracked, got %v", err)
		}

		if _, err := s.TopN(ctx, 0); !errors.Is(err, ErrInvalidLimit) {
			t.Errorf("expected ErrInvalidLimit, got %v", err)
		}
	}, WithLeaderboardSize(3), WithLeaderboardSurplus(2))
}

func TestMemoryStore_ConcurrentSettlements(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				c := Commit{Account: fmt.Sprintf("acct-%d", (g*50+i)%200), EP: uint16((g*31 + i*17) % 1000)}
				if err := s.CommitSettlement(ctx, c); err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				_, _ = s.TopN(ctx, 10)
			}
		}(g)
	}
	wg.Wait()

	snap := s.Snapshot()
	if len(snap.Entries) > 130 {
		t.Fatalf("leaderboard exceeded capacity: %d", len(snap.Entries))
	}
	seen := map[string]bool{}
	for i, e := range snap.Entries {
		if seen[e.Account] {
			t.Fatalf("duplicate account %s", e.Account)
		}
		seen[e.Account] = true
		if i > 0 && snap.Entries[i-1].EP < e.EP {
			t.Fatalf("entries out of order at %d", i)
		}
	}
}

func TestStore_Closed(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := s.SavePlayer(ctx, "alice", Player{}); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
		if err := s.CommitSettlement(ctx, Commit{Account: "alice", EP: 70}); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	})
}

func TestBoltStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ghostrun.db")
	ctx := context.Background()

	s, err := OpenBoltStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.CommitSettlement(ctx, Commit{Account: "alice", EP: 370, Seed: 1}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = OpenBoltStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s.Close() }()

	entry, err := s.Rank(ctx, "alice")
	if err != nil || entry.EP != 370 || entry.Rank != 1 {
		t.Errorf("leaderboard not persisted: %+v, %v", entry, err)
	}
}

func TestBoltStore_ReopenSmallerLeaderboard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ghostrun.db")
	ctx := context.Background()

	s, err := OpenBoltStore(path, WithLeaderboardSize(3), WithLeaderboardSurplus(1))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i, account := range []string{"a", "b", "c", "d"} {
		if err := s.CommitSettlement(ctx, Commit{Account: account, EP: uint16(400 - 10*i)}); err != nil {
			t.Fatalf("commit %s: %v", account, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = OpenBoltStore(path, WithLeaderboardSize(1), WithLeaderboardSurplus(1))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s.Close() }()

	if entry, err := s.Rank(ctx, "b"); err != nil || entry.Rank != 2 {
		t.Errorf("surplus entry after shrink: %+v, %v", entry, err)
	}
	if _, err := s.Rank(ctx, "c"); !errors.Is(err, ErrNotFound) {
		t.Errorf("entry past the new capacity: want ErrNotFound, got %v", err)
	}
	top, err := s.TopN(ctx, 5)
	if err != nil || len(top) != 1 || top[0].Account != "a" {
		t.Errorf("top after shrink: %+v, %v", top, err)
	}
	if err := s.CommitSettlement(ctx, Commit{Account: "e", EP: 500}); err != nil {
		t.Fatalf("commit after shrink: %v", err)
	}
	if entry, err := s.Rank(ctx, "e"); err != nil || entry.Rank != 1 {
		t.Errorf("settlement after shrink: %+v, %v", entry, err)
	}
}
