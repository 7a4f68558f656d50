// Package rating computes EP (the player rating) from run placements.
//
// Every function here is pure: the same inputs give the same result on any
// host, so settlements can be re-derived independently.
package rating

import "fmt"

const (
	// InitialEP is the rating of an account that has never settled a run.
	InitialEP uint16 = 300
	// MinEP is the hard floor for every rating written back by this service.
	MinEP uint16 = 50
	// UnfinishPenalty is taken when a run starts while a previous run is still open.
	UnfinishPenalty uint16 = 30

	bandWidth    = 100
	decayDivisor = 40
)

// Placement is the finishing position among four competitors, 1 through 4.
type Placement uint8

// Valid reports whether p is a placement CalcNewEP accepts.
func (p Placement) Valid() bool {
	return p >= 1 && p <= 4
}

// delta returns the base gain for winning placements and the loss for the others.
func (p Placement) delta() (plus, minus uint16) {
	switch p {
	case 1:
		return 70, 0
	case 2:
		return 50, 0
	case 3:
		return 0, 30
	case 4:
		return 0, 50
	default:
		panic(fmt.Sprintf("rating: invalid placement %d", uint8(p)))
	}
}

// CalcNewEP returns the rating that follows oldEP after finishing at place.
//
// Placements 1 and 2 return the gain itself while oldEP is at or below
// InitialEP. Above it the gain shrinks by one per 40 EP of excess and never
// drops below 1. Placements 3 and 4 subtract a fixed loss, floored at MinEP.
//
// It panics when place is not 1 through 4; callers holding untrusted input
// check Placement.Valid first.
func CalcNewEP(place Placement, oldEP uint16) uint16 {
	plus, minus := place.delta()
	if plus > 0 {
		if oldEP <= InitialEP {
			return plus
		}
		x := (oldEP - InitialEP) / decayDivisor
		if x < plus {
			return plus - x
		}
		return 1
	}

	e := satSub(oldEP, minus)
	if e > MinEP {
		return e
	}
	return MinEP
}

// ApplyUnfinishPenalty lowers ep for a run abandoned by starting a new one.
func ApplyUnfinishPenalty(ep uint16) uint16 {
	e := satSub(ep, UnfinishPenalty)
	if e > MinEP {
		return e
	}
	return MinEP
}

// Band classifies ep into 100-wide buckets starting at band 0.
// It is total and non-decreasing in ep.
func Band(ep uint16) uint16 {
	return ep / bandWidth
}

func satSub(a, b uint16) uint16 {
	if a < b {
		return 0
	}
	return a - b
}
