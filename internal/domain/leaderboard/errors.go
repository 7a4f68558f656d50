package leaderboard

import "errors"

// ErrCorrupt reports persisted entries that break the board's ordering,
// uniqueness or capacity rules.
var ErrCorrupt = errors.New("leaderboard corrupt")
