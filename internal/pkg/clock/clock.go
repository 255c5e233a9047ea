package clock

import (
	"sync"
	"time"
)

// System reads the wall clock in the business timezone, so the calendar day of
// Now matches the one employees see. The zero value uses UTC.
type System struct {
	loc *time.Location
}

func NewSystem(loc *time.Location) System {
	return System{loc: loc}
}

func (s System) Now() time.Time {
	if s.loc == nil {
		return time.Now().UTC()
	}
	return time.Now().In(s.loc)
}

// Fixed is a settable clock for tests.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t}
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
