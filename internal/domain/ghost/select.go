package ghost

import "fmt"

// SelectBattleIndex picks the roster slot for the next battle.
//
// Candidates are the active ghosts other than current. When current is the
// only active ghost it is fought again. The choice is candidates[seed % n], so
// identical inputs always give the same index.
func SelectBattleIndex(states []State, current uint8, seed uint64) (uint8, error) {
	candidates := make([]uint8, 0, len(states))
	for i, s := range states {
		if s.Active() && i != int(current) {
			candidates = append(candidates, uint8(i))
		}
	}
	if len(candidates) == 0 && int(current) < len(states) && states[current].Active() {
		candidates = append(candidates, current)
	}
	if len(candidates) == 0 {
		return current, fmt.Errorf("%w: %d slots", ErrNoActiveGhost, len(states))
	}
	return candidates[seed%uint64(len(candidates))], nil
}
