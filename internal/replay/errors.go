package replay

import "errors"

var (
	// ErrInvalidScenario reports a scenario that cannot be replayed.
	ErrInvalidScenario = errors.New("invalid scenario")
	// ErrExpectation reports steps whose outcome differs from the scenario.
	ErrExpectation = errors.New("expectation mismatch")
	// ErrSettleTimeout reports a finished run that was not settled in time.
	ErrSettleTimeout = errors.New("settlement not applied in time")
	// ErrUnexpectedStatus reports an HTTP response the driver cannot map.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
	// ErrUnsorted reports a leaderboard that is not in descending EP order.
	ErrUnsorted = errors.New("leaderboard not sorted")
)
