package replay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	service "github.com/okian/ghostrun/internal/app"
	"github.com/okian/ghostrun/internal/domain/leaderboard"
	"github.com/okian/ghostrun/internal/domain/rating"
	"github.com/okian/ghostrun/internal/domain/run"
	"github.com/okian/ghostrun/internal/domain/types"
)

// Driver executes scenario steps against a settlement backend.
type Driver interface {
	StartRun(ctx context.Context, account string) error
	FinishBattle(ctx context.Context, account string, report service.BattleReport) (uint8, error)
	FinishRun(ctx context.Context, account string, place rating.Placement) (duplicate bool, err error)
	AbandonRun(ctx context.Context, account string) error
	// Settled reports whether account has no open run left.
	Settled(ctx context.Context, account string) (bool, error)
	Player(ctx context.Context, account string) (uint16, error)
	Leaderboard(ctx context.Context) ([]types.Entry, error)
	Close() error
}

// ServiceDriver replays against an in-process service with a memory store.
// Run IDs are sequential so replays are reproducible.
type ServiceDriver struct {
	svc   *service.Service
	limit int
}

// NewServiceDriver starts a service configured from sc.
func NewServiceDriver(ctx context.Context, sc *Scenario) (*ServiceDriver, error) {
	var n atomic.Int64
	opts := []service.Option{
		service.WithIDGenerator(func() string { return fmt.Sprintf("replay-%06d", n.Add(1)) }),
		service.WithSeedEntropy(sc.SeedEntropy),
		service.WithMaxTurns(sc.MaxTurns),
		service.WithLeaderboard(sc.Leaderboard.Size, sc.Leaderboard.Surplus),
	}
	if sc.InitialUpgradeCoin != nil {
		opts = append(opts, service.WithInitialUpgradeCoin(*sc.InitialUpgradeCoin))
	}

	svc := service.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return nil, fmt.Errorf("start service: %w", err)
	}

	limit := leaderboard.Size
	if sc.Leaderboard.Size > 0 {
		limit = sc.Leaderboard.Size
	}
	return &ServiceDriver{svc: svc, limit: limit}, nil
}

func (d *ServiceDriver) StartRun(ctx context.Context, account string) error {
	_, err := d.svc.StartRun(ctx, account)
	return err
}

func (d *ServiceDriver) FinishBattle(ctx context.Context, account string, report service.BattleReport) (uint8, error) {
	st, err := d.svc.FinishBattle(ctx, account, report)
	return st.BattleGhostIndex, err
}

func (d *ServiceDriver) FinishRun(ctx context.Context, account string, place rating.Placement) (bool, error) {
	res, err := d.svc.FinishRun(ctx, account, place)
	return res.Duplicate, err
}

func (d *ServiceDriver) AbandonRun(ctx context.Context, account string) error {
	return d.svc.AbandonRun(ctx, account)
}

func (d *ServiceDriver) Settled(ctx context.Context, account string) (bool, error) {
	_, err := d.svc.Run(ctx, account)
	if errors.Is(err, service.ErrNoRun) {
		return true, nil
	}
	return false, err
}

func (d *ServiceDriver) Player(ctx context.Context, account string) (uint16, error) {
	p, err := d.svc.Player(ctx, account)
	return p.EP, err
}

func (d *ServiceDriver) Leaderboard(ctx context.Context) ([]types.Entry, error) {
	return d.svc.TopN(ctx, d.limit)
}

func (d *ServiceDriver) Close() error {
	d.svc.Stop()
	return nil
}

// outcome maps an operation error to its scenario outcome code.
func outcome(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, run.ErrMaxTurnExceeded):
		return OutcomeMaxTurns
	case errors.Is(err, run.ErrGhostSelection):
		return OutcomeGhostSelection
	case errors.Is(err, service.ErrNoRun):
		return OutcomeNoRun
	case errors.Is(err, service.ErrRunFinishing):
		return OutcomeRunFinishing
	case errors.Is(err, rating.ErrInvalidPlacement):
		return OutcomeInvalidPlace
	case errors.Is(err, service.ErrInvalidRoster):
		return OutcomeInvalidRoster
	case errors.Is(err, service.ErrBackpressure):
		return OutcomeBackpressure
	default:
		return err.Error()
	}
}
