// Package notify fans emitted alerts out to the configured notifiers without
// holding up the reading path.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/telemetry"
	"liyu1981.xyz/vital-signs-service/pkg/vitals"
)

const (
	DefaultBuffer  = 256
	notifyTimeout  = 5 * time.Second
	dispatcherName = "dispatcher"
)

type Notifier interface {
	Name() string
	Notify(ctx context.Context, alert vitals.Alert) error
}

// Func adapts a function to Notifier.
type Func struct {
	Label string
	Fn    func(ctx context.Context, alert vitals.Alert) error
}

func (f Func) Name() string {
	return f.Label
}

func (f Func) Notify(ctx context.Context, alert vitals.Alert) error {
	return f.Fn(ctx, alert)
}

// Dispatcher delivers alerts to every notifier from a single background
// goroutine. Dispatch never blocks; alerts are dropped when the queue is full
// and a failing notifier is logged, not retried.
type Dispatcher struct {
	queue     chan vitals.Alert
	notifiers []Notifier
	logger    *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(buffer int, notifiers ...Notifier) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	d := &Dispatcher{
		queue:     make(chan vitals.Alert, buffer),
		notifiers: notifiers,
		logger:    common.GetCategoryLogger(common.LoggerNameNotifier, common.LoggerCategoryAlert),
		done:      make(chan struct{}),
	}
	go d.run()
	return d
}

// Dispatch queues alert and reports whether it was accepted.
func (d *Dispatcher) Dispatch(alert vitals.Alert) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false
	}
	select {
	case d.queue <- alert:
		return true
	default:
		telemetry.NotificationsDropped.WithLabelValues(dispatcherName).Inc()
		d.logger.Warn("Notification queue full, dropping alert",
			zap.String("alert_id", alert.ID), zap.String("device_id", alert.DeviceID))
		return false
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for alert := range d.queue {
		for _, n := range d.notifiers {
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			err := n.Notify(ctx, alert)
			cancel()
			if err != nil {
				telemetry.NotificationsDropped.WithLabelValues(n.Name()).Inc()
				d.logger.Error("Notifier failed",
					zap.String("notifier", n.Name()),
					zap.String("alert_id", alert.ID),
					zap.Error(err))
			}
		}
	}
}

// Close stops accepting alerts and waits for the queued ones to be
// delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}
