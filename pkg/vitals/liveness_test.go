package vitals

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type livenessEvent struct {
	device    string
	connected bool
}

func recordLiveness(tr *LivenessTracker) func() []livenessEvent {
	var mu sync.Mutex
	var events []livenessEvent
	tr.OnChange(func(deviceID string, connected bool, _ time.Time) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, livenessEvent{deviceID, connected})
	})
	return func() []livenessEvent {
		mu.Lock()
		defer mu.Unlock()
		return append([]livenessEvent(nil), events...)
	}
}

func waitEvents(t *testing.T, events func() []livenessEvent, want []livenessEvent) {
	t.Helper()
	assert.Eventually(t, func() bool { return assert.ObjectsAreEqual(want, events()) },
		time.Second, 5*time.Millisecond, "liveness events %v", want)
}

func TestLiveness_GoesOfflineAfterThreshold(t *testing.T) {
	clock := NewManualClock(t0)
	tr := NewLivenessTracker(clock, 15*time.Second)
	events := recordLiveness(tr)

	tr.Touch("dev", clock.Now())
	assert.True(t, tr.IsConnected("dev", clock.Now()))

	clock.Advance(14 * time.Second)
	assert.True(t, tr.IsConnected("dev", clock.Now()))
	assert.Never(t, func() bool { return len(events()) > 0 }, 30*time.Millisecond, 5*time.Millisecond)

	clock.Advance(2 * time.Second)
	assert.False(t, tr.IsConnected("dev", clock.Now()), "no reading for 16s")
	waitEvents(t, events, []livenessEvent{{"dev", false}})
}

func TestLiveness_TouchRearmsTimer(t *testing.T) {
	clock := NewManualClock(t0)
	tr := NewLivenessTracker(clock, 15*time.Second)
	events := recordLiveness(tr)

	tr.Touch("dev", clock.Now())
	clock.Advance(10 * time.Second)
	tr.Touch("dev", clock.Now())

	clock.Advance(10 * time.Second)
	assert.Never(t, func() bool { return len(events()) > 0 }, 30*time.Millisecond, 5*time.Millisecond,
		"timer was rearmed at t+10")
	assert.True(t, tr.IsConnected("dev", clock.Now()))

	clock.Advance(6 * time.Second)
	waitEvents(t, events, []livenessEvent{{"dev", false}})

	tr.Touch("dev", clock.Now())
	assert.Equal(t, []livenessEvent{{"dev", false}, {"dev", true}}, events())
}

func TestLiveness_ForgetStopsTimer(t *testing.T) {
	clock := NewManualClock(t0)
	tr := NewLivenessTracker(clock, 15*time.Second)
	events := recordLiveness(tr)

	tr.Touch("dev", clock.Now())
	tr.Forget("dev")

	clock.Advance(time.Minute)
	assert.Never(t, func() bool { return len(events()) > 0 }, 30*time.Millisecond, 5*time.Millisecond)
	_, ok := tr.LastActivity("dev")
	assert.False(t, ok)
	assert.False(t, tr.IsConnected("dev", clock.Now()))
}

func TestLiveness_ConnectedCount(t *testing.T) {
	clock := NewManualClock(t0)
	tr := NewLivenessTracker(clock, 15*time.Second)

	tr.Touch("a", clock.Now())
	clock.Advance(10 * time.Second)
	tr.Touch("b", clock.Now())
	clock.Advance(6 * time.Second)

	connected, total := tr.ConnectedCount(clock.Now())
	assert.Equal(t, 1, connected)
	assert.Equal(t, 2, total)

	last, ok := tr.LastActivity("b")
	require.True(t, ok)
	assert.Equal(t, t0.Add(10*time.Second), last)
}

func TestLiveness_RealClock(t *testing.T) {
	tr := NewLivenessTracker(RealClock(), 20*time.Millisecond)
	done := make(chan struct{})
	tr.OnChange(func(string, bool, time.Time) { close(done) })

	tr.Touch("dev", time.Now())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("offline transition never fired")
	}
	assert.False(t, tr.IsConnected("dev", time.Now()))
}
