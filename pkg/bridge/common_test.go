package bridge

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"liyu1981.xyz/vital-signs-service/pkg/source"
	"liyu1981.xyz/vital-signs-service/pkg/vitals"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

const testMac = "B4:3A:45:8A:2B:40"

func f64(v float64) *float64 { return &v }

func reading(offset time.Duration, hr float64) vitals.Reading {
	return vitals.Reading{
		DeviceID:        testMac,
		HeartRate:       f64(hr),
		Temperature:     f64(36.6),
		RespiratoryRate: f64(16),
		Timestamp:       t0.Add(offset),
	}
}

// fakeBackend is a Reader and Subscriber whose subscriptions tests drive by
// hand.
type fakeBackend struct {
	mu          sync.Mutex
	rows        []vitals.Reading
	readErr     error
	failures    int
	reads       int
	filters     []source.Filter
	subscribed  chan *source.Pipe
	closedPipes int
	// closeGate, when set, holds every subscription Close until it is closed
	closeGate chan struct{}
}

func newFakeBackend(rows ...vitals.Reading) *fakeBackend {
	return &fakeBackend{rows: rows, subscribed: make(chan *source.Pipe, 16)}
}

func (f *fakeBackend) insert(r vitals.Reading) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, r)
}

func (f *fakeBackend) LatestReadings(_ context.Context, deviceID string, n int) ([]vitals.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readErr != nil {
		return nil, f.readErr
	}

	var out []vitals.Reading
	for _, r := range f.rows {
		if r.DeviceID == deviceID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (f *fakeBackend) Subscribe(_ context.Context, filter source.Filter) (source.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("backend unavailable")
	}
	f.filters = append(f.filters, filter)
	gate := f.closeGate
	pipe := source.NewPipe(16, func() error {
		if gate != nil {
			<-gate
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.closedPipes++
		return nil
	})
	f.subscribed <- pipe
	return pipe, nil
}

func (f *fakeBackend) closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closedPipes
}

func push(p *source.Pipe, r vitals.Reading) {
	p.Send(context.Background(), source.Change{Event: source.EventInsert, Table: "Health Status", Reading: r, ReceivedAt: time.Now()})
}

type alertSink struct {
	mu     sync.Mutex
	alerts []vitals.Alert
}

func (s *alertSink) Dispatch(a vitals.Alert) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return true
}

func (s *alertSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.HeartbeatInterval = time.Hour
	opts.Backoff = Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond}
	return opts
}
