// Package clock supplies wall-clock time to the pipeline.
//
// Every timestamp the pipeline writes (claims, backoff schedules, audit rows,
// budget windows) is read from a Clock so tests can pin time and step it
// forward deterministically.
package clock

import "time"

// Clock returns the current instant.
//
// Implementations must be safe for concurrent use: several processors share
// one Clock.
type Clock interface {
	Now() time.Time
}

// System reads the host clock in UTC.
type System struct{}

// Now returns time.Now in UTC, truncated to the millisecond precision the
// store persists.
func (System) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Func adapts a plain function to Clock.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time { return f() }
