// Package ghost builds and navigates the roster of recorded opponents a run
// battles against.
package ghost

// RosterSize is the number of ghosts in every run.
const RosterSize = 3

const (
	baseHealth    = 14
	healthPerBand = 2
	maxHealthBand = 8
)

// Status tells whether a ghost can still be fought.
type Status uint8

const (
	// StatusActive ghosts can be selected for the next battle.
	StatusActive Status = iota
	// StatusRetired ghosts were defeated and stay out of selection.
	StatusRetired
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusRetired:
		return "retired"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if s != StatusActive && s != StatusRetired {
		return nil, ErrUnknownStatus
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "active":
		*s = StatusActive
	case "retired":
		*s = StatusRetired
	default:
		return ErrUnknownStatus
	}
	return nil
}

// State is one roster slot.
type State struct {
	Status Status `json:"status"`
	Health uint8  `json:"health"`
	// FinalTurn is the turn a retired ghost was defeated on. Zero while active.
	FinalTurn uint8 `json:"final_turn,omitempty"`
}

// Active reports whether the ghost can be selected.
func (s State) Active() bool { return s.Status == StatusActive }

// Classifier maps a rating to its band. It must be total and non-decreasing.
type Classifier func(ep uint16) uint16

// HealthForBand returns the starting health of ghosts for band:
// 14 for band 0, two more per band, capped at 30 from band 8.
func HealthForBand(band uint16) uint8 {
	return uint8(baseHealth + healthPerBand*min(band, maxHealthBand))
}

// BuildInitialStates returns a fresh roster for a player at ep.
// All slots share the same health and start active.
func BuildInitialStates(ep uint16, classify Classifier) []State {
	health := HealthForBand(classify(ep))
	states := make([]State, RosterSize)
	for i := range states {
		states[i] = State{Status: StatusActive, Health: health}
	}
	return states
}
