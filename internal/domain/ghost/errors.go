package ghost

import "errors"

var (
	// ErrNoActiveGhost means every ghost in the roster has been retired.
	ErrNoActiveGhost = errors.New("no active ghost")
	// ErrUnknownStatus is returned when decoding an unrecognised status.
	ErrUnknownStatus = errors.New("unknown ghost status")
)
