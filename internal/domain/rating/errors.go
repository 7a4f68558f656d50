package rating

import "errors"

// ErrInvalidPlacement is returned by outer layers that reject a placement
// before it reaches CalcNewEP.
var ErrInvalidPlacement = errors.New("placement must be between 1 and 4")
