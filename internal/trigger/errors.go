package trigger

import "errors"

var (
	// ErrInvalidPattern is returned when a time or event pattern cannot be parsed.
	ErrInvalidPattern = errors.New("trigger: invalid pattern")

	// ErrInvalidClock is returned when a clock report is out of range.
	ErrInvalidClock = errors.New("trigger: invalid clock value")
)
