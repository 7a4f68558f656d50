package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted      = errors.New("service not started")
	ErrEmptyAccount    = errors.New("account must not be empty")
	ErrNoRun           = errors.New("no open run")
	ErrInvalidRoster   = errors.New("invalid ghost roster")
	ErrBackpressure    = errors.New("settlement queue unavailable")
	ErrStaleSettlement = errors.New("settlement does not match the open run")
	ErrRunFinishing    = errors.New("run is finished and waiting for settlement")
)
