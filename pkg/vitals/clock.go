package vitals

import (
	"time"

	"github.com/jonboulle/clockwork"
)

type Timer interface {
	Stop() bool
}

// Clock lets the monitor and liveness tracker run against a fake clock in
// tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type clockworkClock struct {
	clock clockwork.Clock
}

func (c clockworkClock) Now() time.Time { return c.clock.Now() }

func (c clockworkClock) AfterFunc(d time.Duration, f func()) Timer {
	return c.clock.AfterFunc(d, f)
}

func RealClock() Clock {
	return clockworkClock{clock: clockwork.NewRealClock()}
}

// ManualClock only moves on Advance. Like time.AfterFunc, due callbacks run
// on their own goroutine.
type ManualClock struct {
	clockworkClock
	fake *clockwork.FakeClock
}

func NewManualClock(start time.Time) *ManualClock {
	fake := clockwork.NewFakeClockAt(start)
	return &ManualClock{clockworkClock: clockworkClock{clock: fake}, fake: fake}
}

func (c *ManualClock) Advance(d time.Duration) {
	c.fake.Advance(d)
}
