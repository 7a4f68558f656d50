package run

import "errors"

var (
	// ErrMaxTurnExceeded means the run history is longer than the turn limit.
	ErrMaxTurnExceeded = errors.New("max turn exceeded")
	// ErrGhostSelection means no ghost could be picked for the next battle.
	ErrGhostSelection = errors.New("ghost selection failed")
)
