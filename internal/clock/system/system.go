// Package system provides the wall clock that stamps captured records, run
// transitions and watchlist additions.
package system

import "time"

// Precision is the resolution of stamped times. Postgres keeps microseconds,
// so a capture time read back from any store equals the value stamped.
const Precision = time.Microsecond

// Clock reads the wall clock in UTC at Precision.
type Clock struct {
	now func() time.Time
}

// New returns a Clock backed by time.Now.
func New() *Clock {
	return &Clock{now: time.Now}
}

// Now returns the current UTC time truncated to Precision. The result carries
// no monotonic reading, so it compares equal to its stored copy.
func (c *Clock) Now() time.Time {
	read := time.Now
	if c != nil && c.now != nil {
		read = c.now
	}
	return read().UTC().Truncate(Precision)
}
