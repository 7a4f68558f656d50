package replay

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/okian/ghostrun/internal/domain/ghost"
	"github.com/okian/ghostrun/internal/domain/rating"
	"github.com/okian/ghostrun/internal/domain/run"
)

// Step actions.
const (
	ActionStart   = "start"
	ActionBattle  = "battle"
	ActionFinish  = "finish"
	ActionAbandon = "abandon"
)

// Outcome codes used in Expect.Error.
const (
	OutcomeMaxTurns       = "max_turn_exceeded"
	OutcomeGhostSelection = "ghost_selection"
	OutcomeNoRun          = "no_run"
	OutcomeRunFinishing   = "run_finishing"
	OutcomeInvalidPlace   = "invalid_place"
	OutcomeInvalidRoster  = "invalid_roster"
	OutcomeBackpressure   = "backpressure"
	OutcomeDuplicate      = "duplicate"
)

// Scenario is a scripted sequence of run operations.
type Scenario struct {
	Name               string      `yaml:"name"`
	SeedEntropy        string      `yaml:"seed_entropy"`
	MaxTurns           int         `yaml:"max_turns"`
	InitialUpgradeCoin *uint8      `yaml:"initial_upgrade_coin"`
	Leaderboard        Leaderboard `yaml:"leaderboard"`
	Steps              []Step      `yaml:"steps"`
}

// Leaderboard sizes the board the scenario is replayed against.
type Leaderboard struct {
	Size    int `yaml:"size"`
	Surplus int `yaml:"surplus"`
}

// Step is one operation on one account.
type Step struct {
	Account string   `yaml:"account"`
	Action  string   `yaml:"action"`
	Place   int      `yaml:"place,omitempty"`
	Grade   uint8    `yaml:"grade,omitempty"`
	Board   []uint16 `yaml:"board,omitempty"`
	Ghosts  []Ghost  `yaml:"ghosts,omitempty"`
	Expect  *Expect  `yaml:"expect,omitempty"`
}

// Ghost is the YAML form of a reported ghost state.
type Ghost struct {
	Status    string `yaml:"status"`
	Health    uint8  `yaml:"health"`
	FinalTurn uint8  `yaml:"final_turn,omitempty"`
}

// Expect lists what a step must produce. Unset fields are not checked.
type Expect struct {
	// Error is one of the Outcome codes, or empty for success.
	Error string `yaml:"error,omitempty"`
	// EP is the rating the account must hold after the step.
	EP *uint16 `yaml:"ep,omitempty"`
	// BattleGhostIndex is checked after a battle step.
	BattleGhostIndex *uint8 `yaml:"battle_ghost_index,omitempty"`
}

// LoadScenario reads and validates a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks every step. Placements are not range checked here so that
// scenarios can assert the rejection of invalid ones.
func (sc *Scenario) Validate() error {
	var errs []error
	if len(sc.Steps) == 0 {
		errs = append(errs, errors.New("no steps"))
	}
	for i, st := range sc.Steps {
		if st.Account == "" {
			errs = append(errs, fmt.Errorf("step %d: missing account", i))
		}
		switch st.Action {
		case ActionStart, ActionBattle, ActionFinish, ActionAbandon:
		default:
			errs = append(errs, fmt.Errorf("step %d: unknown action %q", i, st.Action))
		}
		if _, err := st.ghostStates(); err != nil {
			errs = append(errs, fmt.Errorf("step %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidScenario, errors.Join(errs...))
	}
	return nil
}

func (st Step) ghostStates() ([]ghost.State, error) {
	if st.Ghosts == nil {
		return nil, nil
	}
	out := make([]ghost.State, len(st.Ghosts))
	for i, g := range st.Ghosts {
		if err := out[i].Status.UnmarshalText([]byte(g.Status)); err != nil {
			return nil, err
		}
		out[i].Health = g.Health
		out[i].FinalTurn = g.FinalTurn
	}
	return out, nil
}

func (st Step) gradeAndBoard() run.GradeAndBoard {
	return run.GradeAndBoard{Grade: st.Grade, Board: st.Board}
}

func (st Step) placement() rating.Placement {
	if st.Place < 0 || st.Place > 255 {
		return 0
	}
	return rating.Placement(st.Place)
}
