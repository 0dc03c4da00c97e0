package clock

import "time"

// Clock supplies the timestamp stamped on decisions, actions, and state updates.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock in UTC.
type RealClock struct{}

// Now returns current UTC time.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always reports the same instant.
// Params: At is returned by every Now call.
// Returns: deterministic clock for tests and replays.
type Fixed struct {
	At time.Time
}

// Now returns the fixed instant.
func (c Fixed) Now() time.Time {
	return c.At
}

// DayBounds returns the half-open range [start, end) of the UTC day containing t.
// Params: any instant.
// Returns: UTC midnight of that day and of the next day.
func DayBounds(t time.Time) (time.Time, time.Time) {
	utc := t.UTC()
	start := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
