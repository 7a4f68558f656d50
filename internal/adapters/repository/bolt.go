package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"

	"github.com/okian/ghostrun/internal/domain/leaderboard"
	"github.com/okian/ghostrun/internal/domain/run"
	"github.com/okian/ghostrun/internal/domain/types"
	"github.com/okian/ghostrun/pkg/metrics"
)

var (
	playersBucket = []byte("players")
	runsBucket    = []byte("runs")
	globalBucket  = []byte("global")

	leaderboardKey = []byte("leaderboard")
)

// BoltStore keeps state in a bolt database file. Every value is JSON.
// The leaderboard is a single key read, updated and written back inside the
// settlement transaction.
type BoltStore struct {
	db        *bolt.DB
	boardOpts []leaderboard.Option
}

var _ Store = (*BoltStore)(nil)

// OpenBoltStore opens or creates the database at path.
func OpenBoltStore(path string, opts ...Option) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{playersBucket, runsBucket, globalBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Wrapf(err, "unable to create bucket %s", name)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &BoltStore{db: db, boardOpts: newConfig(opts).boardOpts}
	metrics.UpdateLeaderboardSize(s.Count(context.Background()))
	return s, nil
}

func (s *BoltStore) Close() error {
	return errors.Wrap(s.db.Close(), "unable to close database")
}

func (s *BoltStore) view(fn func(tx *bolt.Tx) error) error {
	err := s.db.View(fn)
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}

func (s *BoltStore) update(fn func(tx *bolt.Tx) error) error {
	err := s.db.Update(fn)
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}

func getJSON(b *bolt.Bucket, key string, v any) error {
	raw := b.Get([]byte(key))
	if raw == nil {
		return ErrNotFound
	}
	return errors.Wrapf(json.Unmarshal(raw, v), "unable to decode %s", key)
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "unable to encode %s", key)
	}
	return errors.Wrapf(b.Put(key, raw), "unable to put %s", key)
}

func (s *BoltStore) Player(_ context.Context, account string) (Player, error) {
	var p Player
	err := s.view(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(playersBucket), account, &p)
	})
	return p, err
}

func (s *BoltStore) SavePlayer(_ context.Context, account string, p Player) error {
	return s.update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(playersBucket), []byte(account), p)
	})
}

func (s *BoltStore) Run(_ context.Context, account string) (run.State, error) {
	var st run.State
	err := s.view(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(runsBucket), account, &st)
	})
	return st, err
}

func (s *BoltStore) SaveRun(_ context.Context, account string, st run.State) error {
	return s.update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(runsBucket), []byte(account), st)
	})
}

func (s *BoltStore) RemoveRun(_ context.Context, account string) error {
	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(runsBucket)
		if b.Get([]byte(account)) == nil {
			return ErrNotFound
		}
		return errors.Wrap(b.Delete([]byte(account)), "unable to delete run")
	})
}

// loadBoard reads the persisted leaderboard, validating it on the way in.
func (s *BoltStore) loadBoard(tx *bolt.Tx) (*leaderboard.Board[string], error) {
	board := leaderboard.NewBoard[string](s.boardOpts...)
	raw := tx.Bucket(globalBucket).Get(leaderboardKey)
	if raw == nil {
		return board, nil
	}
	var entries []leaderboard.Entry[string]
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Wrap(err, "unable to decode leaderboard")
	}
	if err := board.Restore(entries); err != nil {
		return nil, err
	}
	return board, nil
}

// CommitSettlement applies the settlement in one read-write transaction.
// bolt allows a single writer at a time, so leaderboard updates are serialized.
func (s *BoltStore) CommitSettlement(_ context.Context, c Commit) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency("commit", float64(time.Since(start).Microseconds())/1000)
	}()

	size := 0
	err := s.update(func(tx *bolt.Tx) error {
		if err := putJSON(tx.Bucket(playersBucket), []byte(c.Account), Player{EP: c.EP, HasEP: true, Seed: c.Seed}); err != nil {
			return err
		}
		if err := tx.Bucket(runsBucket).Delete([]byte(c.Account)); err != nil {
			return errors.Wrap(err, "unable to delete run")
		}

		board, err := s.loadBoard(tx)
		if err != nil {
			return err
		}
		board.Update(c.EP, c.Account)
		size = board.Len()
		return putJSON(tx.Bucket(globalBucket), leaderboardKey, board.Entries())
	})
	if err != nil {
		return errors.Wrapf(err, "unable to commit settlement for %s", c.Account)
	}

	metrics.RecordLeaderboardUpdate()
	metrics.UpdateLeaderboardSize(size)
	return nil
}

func (s *BoltStore) readBoard() (*leaderboard.Board[string], error) {
	var board *leaderboard.Board[string]
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		board, err = s.loadBoard(tx)
		return err
	})
	return board, err
}

func (s *BoltStore) Rank(_ context.Context, account string) (types.Entry, error) {
	board, err := s.readBoard()
	if err != nil {
		return types.Entry{}, err
	}
	pos, ok := board.Position(account)
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return types.Entry{}, ErrNotFound
	}
	e := board.Entries()[pos]
	return rankEntry(pos, e.Account, e.EP, board.Size()), nil
}

func (s *BoltStore) TopN(_ context.Context, n int) ([]types.Entry, error) {
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	board, err := s.readBoard()
	if err != nil {
		return nil, err
	}
	top := board.Top(n)
	out := make([]types.Entry, len(top))
	for i, e := range top {
		out[i] = rankEntry(i, e.Account, e.EP, board.Size())
	}
	return out, nil
}

func (s *BoltStore) Count(_ context.Context) int {
	board, err := s.readBoard()
	if err != nil {
		return 0
	}
	return board.Len()
}
