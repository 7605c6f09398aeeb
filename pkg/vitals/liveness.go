package vitals

import (
	"sync"
	"time"
)

const DefaultOfflineTimeout = 15 * time.Second

// LivenessListener hears connected/offline transitions. It runs on the timer
// goroutine or the caller of Touch, never under the tracker lock.
type LivenessListener func(deviceID string, connected bool, lastActivity time.Time)

type deviceLiveness struct {
	last       time.Time
	timer      Timer
	generation uint64
	offline    bool
}

type LivenessTracker struct {
	mu        sync.Mutex
	clock     Clock
	threshold time.Duration
	devices   map[string]*deviceLiveness
	listeners []LivenessListener
}

func NewLivenessTracker(clock Clock, threshold time.Duration) *LivenessTracker {
	if clock == nil {
		clock = RealClock()
	}
	if threshold <= 0 {
		threshold = DefaultOfflineTimeout
	}
	return &LivenessTracker{
		clock:     clock,
		threshold: threshold,
		devices:   make(map[string]*deviceLiveness),
	}
}

func (t *LivenessTracker) OnChange(fn LivenessListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Touch records activity at at, cancels the pending offline timer and arms a
// new one for the rest of the threshold window.
func (t *LivenessTracker) Touch(deviceID string, at time.Time) {
	t.mu.Lock()
	d, ok := t.devices[deviceID]
	if !ok {
		d = &deviceLiveness{}
		t.devices[deviceID] = d
	}
	if at.Before(d.last) {
		at = d.last
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.last = at
	d.generation++
	cameBack := ok && d.offline
	d.offline = false

	gen := d.generation
	delay := t.threshold - t.clock.Now().Sub(at)
	if delay < 0 {
		delay = 0
	}
	d.timer = t.clock.AfterFunc(delay, func() { t.expire(deviceID, gen) })
	listeners := t.snapshotListeners()
	t.mu.Unlock()

	if cameBack {
		for _, fn := range listeners {
			fn(deviceID, true, at)
		}
	}
}

func (t *LivenessTracker) expire(deviceID string, gen uint64) {
	t.mu.Lock()
	d, ok := t.devices[deviceID]
	if !ok || d.generation != gen || d.offline {
		t.mu.Unlock()
		return
	}
	d.offline = true
	d.timer = nil
	last := d.last
	listeners := t.snapshotListeners()
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(deviceID, false, last)
	}
}

func (t *LivenessTracker) snapshotListeners() []LivenessListener {
	out := make([]LivenessListener, len(t.listeners))
	copy(out, t.listeners)
	return out
}

// IsConnected is now - last_activity < threshold. Unknown devices are offline.
func (t *LivenessTracker) IsConnected(deviceID string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.devices[deviceID]
	if !ok {
		return false
	}
	return now.Sub(d.last) < t.threshold
}

func (t *LivenessTracker) LastActivity(deviceID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.devices[deviceID]
	if !ok {
		return time.Time{}, false
	}
	return d.last, true
}

func (t *LivenessTracker) Threshold() time.Duration {
	return t.threshold
}

func (t *LivenessTracker) Forget(deviceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d, ok := t.devices[deviceID]; ok {
		if d.timer != nil {
			d.timer.Stop()
		}
		delete(t.devices, deviceID)
	}
}

// ConnectedCount returns how many known devices are connected at now.
func (t *LivenessTracker) ConnectedCount(now time.Time) (connected int, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range t.devices {
		total++
		if now.Sub(d.last) < t.threshold {
			connected++
		}
	}
	return connected, total
}
