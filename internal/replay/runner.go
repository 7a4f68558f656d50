// Package replay runs scripted run scenarios against the settlement service
// and fingerprints the resulting leaderboard.
package replay

import (
	"context"
	"fmt"
	"time"

	service "github.com/okian/ghostrun/internal/app"
	"github.com/okian/ghostrun/internal/domain/types"
	"github.com/okian/ghostrun/pkg/logger"
)

const (
	defaultSettleTimeout = 5 * time.Second
	settlePollInterval   = 2 * time.Millisecond
)

// Config holds replay runner options.
type Config struct {
	// SettleTimeout bounds the wait for a finished run to be applied.
	SettleTimeout time.Duration
	Verbose       bool
}

// Stats holds replay statistics.
type Stats struct {
	Steps      int
	Started    int
	Battles    int
	Settled    int
	Duplicates int
	Abandoned  int
	Rejected   int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}

// Result is the outcome of a replay.
type Result struct {
	Stats       Stats
	Leaderboard []types.Entry
	Digest      string
	Mismatches  []string
}

// Run replays sc step by step. Every finished run is waited for, so the
// final leaderboard depends only on the scenario.
// A non-nil Result is returned alongside ErrExpectation.
func Run(ctx context.Context, sc *Scenario, d Driver, cfg Config) (*Result, error) {
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = defaultSettleTimeout
	}
	log := logger.Get().Named("replay")
	res := &Result{Stats: Stats{StartTime: time.Now()}}

	log.Info(ctx, "starting replay",
		logger.String("scenario", sc.Name),
		logger.Int("steps", len(sc.Steps)))

	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Stats.Steps++

		got, battleIdx, err := execute(ctx, d, st, cfg, &res.Stats)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s %s): %w", i, st.Action, st.Account, err)
		}
		if cfg.Verbose {
			log.Debug(ctx, "step replayed",
				logger.Int("step", i),
				logger.String("action", st.Action),
				logger.String("account", st.Account),
				logger.String("outcome", got))
		}

		res.Mismatches = append(res.Mismatches, check(ctx, d, i, st, got, battleIdx)...)
	}

	entries, err := d.Leaderboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	if err := verifyLeaderboard(entries); err != nil {
		return nil, err
	}
	res.Leaderboard = entries
	res.Digest = Digest(entries)

	res.Stats.EndTime = time.Now()
	res.Stats.Duration = res.Stats.EndTime.Sub(res.Stats.StartTime)
	displayFinalStats(ctx, log, res)

	if len(res.Mismatches) > 0 {
		return res, fmt.Errorf("%w: %d step(s)", ErrExpectation, len(res.Mismatches))
	}
	return res, nil
}

// execute runs one step. It returns the outcome code of the operation and
// the battle ghost index for battle steps. The error is reserved for
// failures that stop the replay.
func execute(ctx context.Context, d Driver, st Step, cfg Config, stats *Stats) (string, uint8, error) {
	var (
		err error
		idx uint8
	)
	switch st.Action {
	case ActionStart:
		err = d.StartRun(ctx, st.Account)
		if err == nil {
			stats.Started++
		}
	case ActionBattle:
		ghosts, gerr := st.ghostStates()
		if gerr != nil {
			return "", 0, gerr
		}
		idx, err = d.FinishBattle(ctx, st.Account, service.BattleReport{GradeAndBoard: st.gradeAndBoard(), Ghosts: ghosts})
		if err == nil {
			stats.Battles++
		}
	case ActionFinish:
		var dup bool
		dup, err = d.FinishRun(ctx, st.Account, st.placement())
		if err == nil && dup {
			stats.Duplicates++
			return OutcomeDuplicate, 0, nil
		}
		if err == nil {
			if werr := waitSettled(ctx, d, st.Account, cfg.SettleTimeout); werr != nil {
				return "", 0, werr
			}
			stats.Settled++
		}
	case ActionAbandon:
		err = d.AbandonRun(ctx, st.Account)
		if err == nil {
			stats.Abandoned++
		}
	default:
		return "", 0, fmt.Errorf("%w: unknown action %q", ErrInvalidScenario, st.Action)
	}

	code := outcome(err)
	if code != "" {
		stats.Rejected++
		if isTransportError(code) {
			return "", 0, err
		}
	}
	return code, idx, nil
}

// isTransportError reports outcomes that are not part of the domain contract.
func isTransportError(code string) bool {
	switch code {
	case OutcomeMaxTurns, OutcomeGhostSelection, OutcomeNoRun, OutcomeRunFinishing,
		OutcomeInvalidPlace, OutcomeInvalidRoster, OutcomeBackpressure:
		return false
	}
	return true
}

func waitSettled(ctx context.Context, d Driver, account string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := d.Settled(ctx, account)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrSettleTimeout, account)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(settlePollInterval):
		}
	}
}

func check(ctx context.Context, d Driver, i int, st Step, got string, battleIdx uint8) []string {
	var out []string
	want := ""
	if st.Expect != nil {
		want = st.Expect.Error
	}
	if got != want && !(want == "" && got == OutcomeDuplicate) {
		out = append(out, fmt.Sprintf("step %d: outcome %q, want %q", i, got, want))
	}
	if st.Expect == nil {
		return out
	}

	if st.Expect.BattleGhostIndex != nil && got == "" && battleIdx != *st.Expect.BattleGhostIndex {
		out = append(out, fmt.Sprintf("step %d: battle ghost index %d, want %d", i, battleIdx, *st.Expect.BattleGhostIndex))
	}
	if st.Expect.EP != nil {
		ep, err := d.Player(ctx, st.Account)
		switch {
		case err != nil:
			out = append(out, fmt.Sprintf("step %d: read ep: %v", i, err))
		case ep != *st.Expect.EP:
			out = append(out, fmt.Sprintf("step %d: ep %d, want %d", i, ep, *st.Expect.EP))
		}
	}
	return out
}

// displayFinalStats logs the final replay statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, res *Result) {
	s := res.Stats
	log.Info(ctx, "final statistics",
		logger.Int("steps", s.Steps),
		logger.Int("started", s.Started),
		logger.Int("battles", s.Battles),
		logger.Int("settled", s.Settled),
		logger.Int("duplicates", s.Duplicates),
		logger.Int("abandoned", s.Abandoned),
		logger.Int("rejected", s.Rejected),
		logger.Int("leaderboardEntries", len(res.Leaderboard)),
		logger.Int("mismatches", len(res.Mismatches)),
		logger.String("digest", res.Digest),
		logger.String("duration", s.Duration.String()))
}
