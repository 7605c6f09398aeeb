// Package bridge keeps each watched device's monitor fed: an initial load, a
// push subscription as the data path, and a slow heartbeat poll that catches
// what the push channel missed.
package bridge

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/source"
	"liyu1981.xyz/vital-signs-service/pkg/telemetry"
	"liyu1981.xyz/vital-signs-service/pkg/vitals"
)

const DefaultHeartbeatInterval = 10 * time.Second

// AlertSink receives emitted alerts. Dispatch must not block.
type AlertSink interface {
	Dispatch(alert vitals.Alert) bool
}

type Options struct {
	Table             string
	HeartbeatInterval time.Duration
	Backoff           Backoff
	Monitor           vitals.MonitorConfig
	Clock             vitals.Clock
	Liveness          *vitals.LivenessTracker
	Alerts            AlertSink

	// OnApplied runs on the bridge goroutine after every accepted reading.
	OnApplied func(deviceID string, r vitals.Reading, res vitals.Result)
}

func DefaultOptions() Options {
	return Options{
		Table:             common.DefaultReadingsTable,
		HeartbeatInterval: DefaultHeartbeatInterval,
		Backoff:           DefaultBackoff(),
		Monitor:           vitals.DefaultMonitorConfig(),
		Clock:             vitals.RealClock(),
	}
}

type Bridge struct {
	deviceID   string
	reader     source.Reader
	subscriber source.Subscriber
	monitor    *vitals.Monitor
	opts       Options
	logger     *zap.Logger
	tracer     trace.Tracer
}

func New(deviceID string, reader source.Reader, subscriber source.Subscriber, opts Options) *Bridge {
	if opts.Clock == nil {
		opts.Clock = vitals.RealClock()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.Table == "" {
		opts.Table = common.DefaultReadingsTable
	}
	if opts.Backoff.Initial <= 0 {
		opts.Backoff = DefaultBackoff()
	}
	if opts.Monitor.HistoryCapacity <= 0 {
		opts.Monitor.HistoryCapacity = vitals.DefaultHistoryCapacity
	}

	return &Bridge{
		deviceID:   deviceID,
		reader:     reader,
		subscriber: subscriber,
		monitor:    vitals.NewMonitor(deviceID, opts.Monitor, opts.Clock),
		opts:       opts,
		logger: common.GetLoggerWith(common.LoggerNameBridge,
			zap.String(common.LoggerFieldCategory, common.LoggerCategoryReading),
			zap.String("device_id", deviceID)),
		tracer: telemetry.Tracer(common.LoggerNameBridge),
	}
}

func (b *Bridge) DeviceID() string {
	return b.deviceID
}

func (b *Bridge) Monitor() *vitals.Monitor {
	return b.monitor
}

type endReason int

const (
	endCanceled endReason = iota
	endLost
	endRecycle
)

// Run feeds the monitor until ctx is done. Subscription failures are retried
// with backoff; Run only returns once its subscription is closed.
func (b *Bridge) Run(ctx context.Context) error {
	b.load(ctx, "initial")

	filter := source.DeviceFilter(b.opts.Table, b.deviceID)
	retry := b.opts.Backoff.New()
	attempt := 0
	first := true

	for {
		if ctx.Err() != nil {
			return nil
		}

		sub, err := b.subscriber.Subscribe(ctx, filter)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := retry.NextBackOff()
			attempt++
			telemetry.SubscriptionReconnects.WithLabelValues(b.deviceID).Inc()
			b.logger.Warn("Subscribe failed, retrying",
				zap.Error(err), zap.Int("attempt", attempt), zap.Duration("wait", wait))
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}

		b.logger.Info("Subscribed to reading changes", zap.String("filter", filter.Expr()))
		if !first {
			// changes made while resubscribing are only visible to a read
			b.load(ctx, "catch_up")
		}
		first = false

		reason, healthy := b.consume(ctx, sub)
		if err := sub.Close(); err != nil {
			b.logger.Debug("Closing subscription failed", zap.Error(err))
		}
		// a join that dies before proving itself keeps the delay growing
		if healthy {
			retry.Reset()
			attempt = 0
		}

		switch reason {
		case endCanceled:
			return nil
		case endRecycle:
			telemetry.SubscriptionReconnects.WithLabelValues(b.deviceID).Inc()
		case endLost:
			wait := retry.NextBackOff()
			attempt++
			telemetry.SubscriptionReconnects.WithLabelValues(b.deviceID).Inc()
			b.logger.Warn("Subscription lost, reconnecting",
				zap.Error(sub.Err()), zap.Int("attempt", attempt), zap.Duration("wait", wait))
			if !sleep(ctx, wait) {
				return nil
			}
		}
	}
}

// consume drains sub until it ends. healthy reports whether the subscription
// delivered a change or outlived a heartbeat interval.
func (b *Bridge) consume(ctx context.Context, sub source.Subscription) (reason endReason, healthy bool) {
	ticker := time.NewTicker(b.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return endCanceled, healthy
		case change, ok := <-sub.Changes():
			if !ok {
				if ctx.Err() != nil {
					return endCanceled, healthy
				}
				return endLost, healthy
			}
			healthy = true
			b.apply(ctx, change.Reading, b.opts.Clock.Now(), "push")
		case <-ticker.C:
			healthy = true
			if b.heartbeat(ctx) {
				b.logger.Warn("Heartbeat found a reading the subscription missed, recycling it")
				return endRecycle, healthy
			}
		}
	}
}

// load applies up to the history capacity of readings, oldest first. Fetch
// errors keep whatever the monitor already shows.
func (b *Bridge) load(ctx context.Context, via string) {
	readings, err := b.reader.LatestReadings(ctx, b.deviceID, b.opts.Monitor.HistoryCapacity)
	if err != nil {
		if ctx.Err() == nil {
			b.logger.Error("Loading readings failed", zap.String("via", via), zap.Error(err))
		}
		return
	}
	for i := len(readings) - 1; i >= 0; i-- {
		b.apply(ctx, readings[i], readings[i].Timestamp, via)
	}
	b.logger.Debug("Loaded readings", zap.String("via", via), zap.Int("count", len(readings)))
}

// heartbeat polls the newest row and reports whether it was ahead of the
// push channel.
func (b *Bridge) heartbeat(ctx context.Context) bool {
	readings, err := b.reader.LatestReadings(ctx, b.deviceID, 1)
	if err != nil {
		if ctx.Err() == nil {
			common.GetCategoryLogger(common.LoggerNameBridge, common.LoggerCategoryPoll).
				Warn("Heartbeat poll failed", zap.String("device_id", b.deviceID), zap.Error(err))
		}
		return false
	}
	if len(readings) == 0 || !readings[0].Timestamp.After(b.monitor.LastApplied()) {
		return false
	}

	res := b.apply(ctx, readings[0], readings[0].Timestamp, "heartbeat")
	if !res.Outcome.Accepted() {
		return false
	}
	telemetry.HeartbeatRecoveries.WithLabelValues(b.deviceID).Inc()
	return true
}

func (b *Bridge) apply(ctx context.Context, r vitals.Reading, seenAt time.Time, via string) vitals.Result {
	_, span := b.tracer.Start(ctx, "bridge.apply", trace.WithAttributes(
		attribute.String("device_id", b.deviceID),
		attribute.String("via", via),
	))
	defer span.End()

	res := b.monitor.Apply(r)
	telemetry.ReadingsProcessed.WithLabelValues(string(res.Outcome)).Inc()
	span.SetAttributes(
		attribute.String("outcome", string(res.Outcome)),
		attribute.String("status", string(res.Status)),
		attribute.Int("alerts", len(res.Alerts)),
	)

	if !res.Outcome.Accepted() {
		b.logger.Debug("Discarded reading",
			zap.String("outcome", string(res.Outcome)), zap.Time("timestamp", r.Timestamp), zap.String("via", via))
		return res
	}

	if b.opts.Liveness != nil {
		if now := b.opts.Clock.Now(); seenAt.After(now) {
			seenAt = now
		}
		b.opts.Liveness.Touch(b.deviceID, seenAt)
	}

	for _, alert := range res.Alerts {
		telemetry.AlertsEmitted.WithLabelValues(string(alert.Kind)).Inc()
		common.GetCategoryLogger(common.LoggerNameBridge, common.LoggerCategoryAlert).
			Warn("Alert emitted",
				zap.String("device_id", b.deviceID),
				zap.String("alert_id", alert.ID),
				zap.String("kind", string(alert.Kind)),
				zap.String("message", alert.Message))
		if b.opts.Alerts != nil {
			b.opts.Alerts.Dispatch(alert)
		}
	}

	if b.opts.OnApplied != nil {
		b.opts.OnApplied(b.deviceID, r, res)
	}
	return res
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
