package util

import "time"

// Clock is injected wherever creation timestamps are stamped, so tests can
// pin time instead of sleeping.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// ManualClock returns a fixed instant until advanced. Not safe for
// concurrent use; test helper only.
type ManualClock struct {
	Current time.Time
}

func (m *ManualClock) Now() time.Time { return m.Current }

func (m *ManualClock) Advance(d time.Duration) { m.Current = m.Current.Add(d) }
