package worker

import "errors"

// Sentinel kinds for worker errors.
var (
	ErrPanic           = errors.New("settlement panicked")
	ErrShutdownTimeout = errors.New("worker shutdown timed out")
)
