// Package service wires the settlement core to storage, the settlement queue
// and the worker, and implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	settlementqueue "github.com/okian/ghostrun/internal/adapters/mq/queue"
	"github.com/okian/ghostrun/internal/adapters/mq/worker"
	"github.com/okian/ghostrun/internal/adapters/repository"
	"github.com/okian/ghostrun/internal/domain/dedupe"
	"github.com/okian/ghostrun/internal/domain/ghost"
	"github.com/okian/ghostrun/internal/domain/leaderboard"
	"github.com/okian/ghostrun/internal/domain/model"
	"github.com/okian/ghostrun/internal/domain/rating"
	"github.com/okian/ghostrun/internal/domain/run"
	"github.com/okian/ghostrun/internal/domain/seed"
	"github.com/okian/ghostrun/internal/domain/types"
	"github.com/okian/ghostrun/pkg/logger"
	"github.com/okian/ghostrun/pkg/metrics"
)

const (
	defaultQueueSize       = 10_000
	defaultDedupeSize      = 100_000
	defaultInitialCoin     = 2
	defaultSeedEntropy     = "ghostrun"
	workerShutdownTimeout  = 10 * time.Second
	fatalKindMaxTurns      = "max_turn_exceeded"
	fatalKindGhostSelector = "ghost_selection"
)

// BattleReport is what the combat simulator hands over after a battle.
type BattleReport struct {
	// GradeAndBoard is appended to the run history.
	GradeAndBoard run.GradeAndBoard
	// Ghosts replaces the roster when set. It must hold ghost.RosterSize states.
	Ghosts []ghost.State
}

// FinishResult reports what FinishRun did.
type FinishResult struct {
	RunID     string
	Duplicate bool
}

// Service implements the API dependencies for the settlement system.
type Service struct {
	mu sync.RWMutex

	// runMu serializes every read-modify-write of per-account run state.
	runMu sync.Mutex
	// pending holds a channel per queued settlement, closed once the worker
	// is done with it. Guarded by runMu.
	pending map[string]chan struct{}

	store    repository.Store
	deduper  dedupe.Deduper
	queue    settlementqueue.Queue
	worker   *worker.InMemoryWorker
	settler  *run.Settler
	stopWork context.CancelFunc

	queueSize          int
	dedupeSize         int
	maxTurns           int
	initialCoin        uint8
	leaderboardSize    int
	leaderboardSurplus int
	entropy            string
	newID              func() string
	now                func() time.Time

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the state store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithQueueSize sets the maximum size of the settlement queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many settled run IDs are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxTurns sets the turn limit checked when a battle finishes.
func WithMaxTurns(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxTurns = n
		}
	}
}

// WithInitialUpgradeCoin sets the coin balance of new runs.
func WithInitialUpgradeCoin(n uint8) Option {
	return func(s *Service) {
		s.initialCoin = n
	}
}

// WithLeaderboard sets the published size and surplus of the default store.
func WithLeaderboard(size, surplus int) Option {
	return func(s *Service) {
		if size > 0 {
			s.leaderboardSize = size
		}
		if surplus >= 0 {
			s.leaderboardSurplus = surplus
		}
	}
}

// WithSeedEntropy sets the server entropy mixed into every derived seed.
func WithSeedEntropy(entropy string) Option {
	return func(s *Service) {
		if entropy != "" {
			s.entropy = entropy
		}
	}
}

// WithIDGenerator replaces the run ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		queueSize:          defaultQueueSize,
		dedupeSize:         defaultDedupeSize,
		maxTurns:           run.DefaultMaxTurns,
		initialCoin:        defaultInitialCoin,
		leaderboardSize:    leaderboard.Size,
		leaderboardSurplus: leaderboard.SurplusSize,
		entropy:            defaultSeedEntropy,
		newID:              uuid.NewString,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the components and starts the settlement worker.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting settlement service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore(
			repository.WithLeaderboardSize(s.leaderboardSize),
			repository.WithLeaderboardSurplus(s.leaderboardSurplus),
		)
		s.logger.Info(ctx, "using memory store")
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = settlementqueue.NewInMemoryQueue(settlementqueue.WithCapacity(s.queueSize))
	s.settler = run.NewSettler(run.WithMaxTurns(s.maxTurns))
	s.runMu.Lock()
	s.pending = make(map[string]chan struct{})
	s.runMu.Unlock()

	// The worker outlives the start request.
	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopWork = cancel
	s.worker = worker.NewInMemoryWorker(s.queue, s)
	go s.worker.Run(workCtx)

	s.started = true
	s.logger.Info(ctx, "settlement service started",
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("maxTurns", s.maxTurns),
	)
	return nil
}

// Stop drains queued settlements and shuts the service down.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping settlement service...")

	_ = s.queue.Close()
	shutdownCtx, cancel := context.WithTimeout(ctx, workerShutdownTimeout)
	if err := s.worker.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, "settlement worker did not drain", logger.Error(err))
	}
	cancel()
	s.stopWork()

	// Settlements the worker never reached are settled by the next StartRun.
	s.runMu.Lock()
	for runID := range s.pending {
		s.release(runID)
	}
	s.runMu.Unlock()

	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "error closing store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "settlement service stopped")
}

func (s *Service) running() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

func (s *Service) nextSeed(previous uint64, subject, account string) uint64 {
	return seed.Derive(seed.Entropy(s.entropy, previous), subject, account)
}

// loadPlayer returns the account state, treating unknown accounts as new.
func (s *Service) loadPlayer(ctx context.Context, account string) (repository.Player, error) {
	p, err := s.store.Player(ctx, account)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Player{}, nil
	}
	return p, err
}

// StartRun opens a new run for account. A run still open from before is
// replaced and the account pays rating.UnfinishPenalty. A finished run still
// waiting for its settlement is settled first and costs nothing.
func (s *Service) StartRun(ctx context.Context, account string) (run.State, error) {
	if err := s.running(); err != nil {
		return run.State{}, err
	}
	if account == "" {
		return run.State{}, ErrEmptyAccount
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	open, err := s.settlePending(ctx, account)
	if err != nil {
		return run.State{}, err
	}

	player, err := s.loadPlayer(ctx, account)
	if err != nil {
		return run.State{}, fmt.Errorf("load player %s: %w", account, err)
	}
	ep := rating.InitialEP
	if player.HasEP {
		ep = player.EP
	}

	if open {
		penalized := rating.ApplyUnfinishPenalty(ep)
		s.logger.Info(ctx, "unfinished run replaced",
			logger.String("account", account),
			logger.Int("ep", int(ep)),
			logger.Int("penalized_ep", int(penalized)),
		)
		metrics.RecordUnfinishedPenalty()
		ep = penalized
		player.HasEP = true
	}

	st := run.State{
		ID:               s.newID(),
		Ghosts:           ghost.BuildInitialStates(ep, rating.Band),
		BattleGhostIndex: 0,
		UpgradeCoin:      run.NewUpgradeCoin(s.initialCoin),
		History:          run.History{},
		Seed:             s.nextSeed(player.Seed, seed.SubjectStartRun, account),
		EP:               ep,
	}

	player.EP = ep
	player.Seed = st.Seed
	if err := s.store.SavePlayer(ctx, account, player); err != nil {
		return run.State{}, fmt.Errorf("save player %s: %w", account, err)
	}
	if err := s.store.SaveRun(ctx, account, st); err != nil {
		return run.State{}, fmt.Errorf("save run %s: %w", account, err)
	}

	metrics.RecordRunStarted()
	s.logger.Debug(ctx, "run started",
		logger.String("account", account),
		logger.String("run_id", st.ID),
		logger.Int("ep", int(ep)),
	)
	return st, nil
}

// settlePending waits until a finished run of account is settled and reports
// whether an unfinished run is left open. A finished run whose settlement is
// no longer queued, lost to a restart or a failed commit, is settled here.
// It must be called with runMu held and returns with runMu held.
func (s *Service) settlePending(ctx context.Context, account string) (bool, error) {
	for {
		current, err := s.store.Run(ctx, account)
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("load run %s: %w", account, err)
		}
		if !current.Finishing() {
			return true, nil
		}

		done, queued := s.pending[current.ID]
		if !queued {
			if err := s.apply(ctx, account, current, current.FinishPlace); err != nil {
				return false, err
			}
			continue
		}

		s.runMu.Unlock()
		select {
		case <-done:
			s.runMu.Lock()
		case <-ctx.Done():
			s.runMu.Lock()
			return false, ctx.Err()
		}
	}
}

// FinishBattle records one battle of account's run and picks the next ghost.
//
// Turn-limit and ghost-selection violations abort the call: nothing is
// persisted and the error wraps run.ErrMaxTurnExceeded or run.ErrGhostSelection.
func (s *Service) FinishBattle(ctx context.Context, account string, report BattleReport) (run.State, error) {
	if err := s.running(); err != nil {
		return run.State{}, err
	}
	if report.Ghosts != nil && len(report.Ghosts) != ghost.RosterSize {
		return run.State{}, fmt.Errorf("%w: got %d ghosts", ErrInvalidRoster, len(report.Ghosts))
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	st, err := s.loadRun(ctx, account)
	if err != nil {
		return run.State{}, err
	}
	if st.Finishing() {
		return run.State{}, fmt.Errorf("%w: run %s", ErrRunFinishing, st.ID)
	}

	ghosts := st.Ghosts
	if report.Ghosts != nil {
		ghosts = report.Ghosts
	}
	history := append(st.History, report.GradeAndBoard)
	newSeed := s.nextSeed(st.Seed, seed.SubjectFinishBattle, account)

	coin, idx, err := s.settler.FinishBattle(st.UpgradeCoin, ghosts, st.BattleGhostIndex, newSeed, history)
	if err != nil {
		kind := fatalKindGhostSelector
		if errors.Is(err, run.ErrMaxTurnExceeded) {
			kind = fatalKindMaxTurns
		}
		metrics.RecordFatal(kind)
		s.logger.Error(ctx, "battle settlement aborted",
			logger.String("account", account),
			logger.String("run_id", st.ID),
			logger.Int("turns", len(history)),
			logger.Error(err),
		)
		return run.State{}, err
	}

	st.Ghosts = ghosts
	st.History = history
	st.UpgradeCoin = coin
	st.BattleGhostIndex = idx
	st.Seed = newSeed
	if err := s.store.SaveRun(ctx, account, st); err != nil {
		return run.State{}, fmt.Errorf("save run %s: %w", account, err)
	}

	metrics.RecordBattleFinished()
	return st, nil
}

// FinishRun marks account's run as finished at place and queues its
// settlement. A run already queued is reported as a duplicate. A finished run
// whose settlement was lost is queued again at its recorded place.
func (s *Service) FinishRun(ctx context.Context, account string, place rating.Placement) (FinishResult, error) {
	if err := s.running(); err != nil {
		return FinishResult{}, err
	}
	if !place.Valid() {
		return FinishResult{}, fmt.Errorf("%w: got %d", rating.ErrInvalidPlacement, place)
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	st, err := s.loadRun(ctx, account)
	if err != nil {
		return FinishResult{}, err
	}

	if _, queued := s.pending[st.ID]; queued || s.deduper.SeenAndRecord(ctx, st.ID) {
		metrics.RecordDuplicateSettlement()
		s.logger.Debug(ctx, "duplicate settlement skipped", logger.String("run_id", st.ID))
		return FinishResult{RunID: st.ID, Duplicate: true}, nil
	}

	marked := !st.Finishing()
	if marked {
		st.FinishPlace = place
		if err := s.store.SaveRun(ctx, account, st); err != nil {
			s.deduper.Unrecord(ctx, st.ID)
			return FinishResult{}, fmt.Errorf("save run %s: %w", account, err)
		}
	}

	err = s.queue.Enqueue(ctx, model.Settlement{RunID: st.ID, Account: account, Place: st.FinishPlace, TS: s.now()})
	if err != nil {
		s.deduper.Unrecord(ctx, st.ID)
		if marked {
			st.FinishPlace = 0
			if rerr := s.store.SaveRun(ctx, account, st); rerr != nil {
				s.logger.Error(ctx, "unable to reopen run after rejected enqueue",
					logger.String("run_id", st.ID), logger.Error(rerr))
			}
		}
		return FinishResult{}, fmt.Errorf("%w: %w", ErrBackpressure, err)
	}
	s.pending[st.ID] = make(chan struct{})
	return FinishResult{RunID: st.ID}, nil
}

// Settle applies a queued settlement: new EP and seed are written, the run is
// removed and the leaderboard updated in one store commit.
// It panics on an invalid placement; the worker recovers it.
func (s *Service) Settle(ctx context.Context, st model.Settlement) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	defer s.release(st.RunID)

	current, err := s.loadRun(ctx, st.Account)
	switch {
	case errors.Is(err, ErrNoRun), err == nil && current.ID != st.RunID:
		metrics.RecordSettlement("stale")
		return fmt.Errorf("%w: run %s of %s", ErrStaleSettlement, st.RunID, st.Account)
	case err != nil:
		metrics.RecordSettlement("failed")
		return fmt.Errorf("settle run %s: %w", st.RunID, err)
	}
	if err := s.apply(ctx, st.Account, current, st.Place); err != nil {
		// Let a repeated FinishRun queue it again.
		s.deduper.Unrecord(ctx, st.RunID)
		return err
	}
	return nil
}

// release wakes callers waiting on runID's settlement. Called with runMu held.
func (s *Service) release(runID string) {
	if done, ok := s.pending[runID]; ok {
		close(done)
		delete(s.pending, runID)
	}
}

// apply commits the settlement of current at place.
func (s *Service) apply(ctx context.Context, account string, current run.State, place rating.Placement) error {
	newEP := rating.CalcNewEP(place, current.EP)
	commit := repository.Commit{
		Account: account,
		EP:      newEP,
		Seed:    s.nextSeed(current.Seed, seed.SubjectFinishRun, account),
	}
	if err := s.store.CommitSettlement(ctx, commit); err != nil {
		metrics.RecordSettlement("failed")
		return fmt.Errorf("commit settlement %s: %w", current.ID, err)
	}

	metrics.RecordSettlement("applied")
	metrics.RecordEPDelta(current.EP, newEP)
	s.logger.Info(ctx, "run settled",
		logger.String("account", account),
		logger.String("run_id", current.ID),
		logger.Int("place", int(place)),
		logger.Int("old_ep", int(current.EP)),
		logger.Int("new_ep", int(newEP)),
	)
	return nil
}

// AbandonRun drops account's open run without settling it. A finished run
// cannot be abandoned.
func (s *Service) AbandonRun(ctx context.Context, account string) error {
	if err := s.running(); err != nil {
		return err
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	st, err := s.loadRun(ctx, account)
	if err != nil {
		return err
	}
	if st.Finishing() {
		return fmt.Errorf("%w: run %s", ErrRunFinishing, st.ID)
	}

	err = s.store.RemoveRun(ctx, account)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNoRun
	}
	if err != nil {
		return fmt.Errorf("remove run %s: %w", account, err)
	}
	metrics.RecordRunAbandoned()
	return nil
}

func (s *Service) loadRun(ctx context.Context, account string) (run.State, error) {
	st, err := s.store.Run(ctx, account)
	if errors.Is(err, repository.ErrNotFound) {
		return run.State{}, ErrNoRun
	}
	if err != nil {
		return run.State{}, fmt.Errorf("load run %s: %w", account, err)
	}
	return st, nil
}

// Run returns account's open run.
func (s *Service) Run(ctx context.Context, account string) (run.State, error) {
	if err := s.running(); err != nil {
		return run.State{}, err
	}
	return s.loadRun(ctx, account)
}

// Player returns account's rating. Accounts that never settled a run are at
// rating.InitialEP.
func (s *Service) Player(ctx context.Context, account string) (model.PlayerRating, error) {
	if err := s.running(); err != nil {
		return model.PlayerRating{}, err
	}
	p, err := s.loadPlayer(ctx, account)
	if err != nil {
		return model.PlayerRating{}, err
	}
	ep := rating.InitialEP
	if p.HasEP {
		ep = p.EP
	}
	return model.PlayerRating{Account: account, EP: ep}, nil
}

// TopN returns the top N published leaderboard entries.
func (s *Service) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	return s.store.TopN(ctx, n)
}

// Rank returns the leaderboard position of account.
func (s *Service) Rank(ctx context.Context, account string) (types.Entry, error) {
	if err := s.running(); err != nil {
		return types.Entry{}, err
	}
	return s.store.Rank(ctx, account)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":            s.started,
		"queueSize":          s.queueSize,
		"dedupeSize":         s.dedupeSize,
		"maxTurns":           s.maxTurns,
		"leaderboardSize":    s.leaderboardSize,
		"leaderboardSurplus": s.leaderboardSurplus,
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		tracked := s.store.Count(ctx)

		stats["queueLength"] = queueLen
		stats["trackedEntries"] = tracked
		stats["dedupeEntries"] = s.deduper.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateLeaderboardSize(tracked)
	}
	return stats
}
