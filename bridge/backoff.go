package bridge

import "time"

const (
	// DefaultBackoffFloor is the reconnect delay after a first failure and
	// after any successful connect.
	DefaultBackoffFloor = 1 * time.Second
	// DefaultBackoffCeiling caps the reconnect delay.
	DefaultBackoffCeiling = 60 * time.Second
)

// Backoff returns the reconnect delay after the given number of consecutive
// failures: the floor doubled per additional failure, capped at the
// ceiling. Zero or one failure waits the floor.
func Backoff(failures int, floor, ceiling time.Duration) time.Duration {
	if floor <= 0 {
		floor = DefaultBackoffFloor
	}
	if ceiling <= 0 {
		ceiling = DefaultBackoffCeiling
	}
	delay := floor
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}
