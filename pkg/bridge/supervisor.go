package bridge

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/source"
	"liyu1981.xyz/vital-signs-service/pkg/telemetry"
	"liyu1981.xyz/vital-signs-service/pkg/vitals"
)

type watch struct {
	bridge *Bridge
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor owns one bridge per watched device.
type Supervisor struct {
	reader     source.Reader
	subscriber source.Subscriber
	opts       Options
	logger     *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	closed  bool
	watches map[string]*watch
}

func NewSupervisor(reader source.Reader, subscriber source.Subscriber, opts Options) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		reader:     reader,
		subscriber: subscriber,
		opts:       opts,
		logger:     common.GetCategoryLogger(common.LoggerNameBridge, common.LoggerCategoryDevice),
		ctx:        ctx,
		cancel:     cancel,
		watches:    make(map[string]*watch),
	}

	if opts.Liveness != nil {
		livenessLogger := common.GetCategoryLogger(common.LoggerNameBridge, common.LoggerCategoryLiveness)
		opts.Liveness.OnChange(func(deviceID string, connected bool, last time.Time) {
			if connected {
				telemetry.DeviceConnected.WithLabelValues(deviceID).Set(1)
				livenessLogger.Info("Device back online", zap.String("device_id", deviceID), zap.Time("last_activity", last))
				return
			}
			telemetry.DeviceConnected.WithLabelValues(deviceID).Set(0)
			livenessLogger.Warn("Device went offline", zap.String("device_id", deviceID), zap.Time("last_activity", last))
		})
	}
	return s
}

// Watch starts a bridge for deviceID, or returns the running one. The bool
// reports whether a new bridge was started. A closed supervisor returns nil.
func (s *Supervisor) Watch(deviceID string) (*Bridge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false
	}
	if w, ok := s.watches[deviceID]; ok {
		return w.bridge, false
	}

	ctx, cancel := context.WithCancel(s.ctx)
	w := &watch{
		bridge: New(deviceID, s.reader, s.subscriber, s.opts),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.watches[deviceID] = w

	go func() {
		defer close(w.done)
		if err := w.bridge.Run(ctx); err != nil {
			s.logger.Error("Bridge stopped", zap.String("device_id", deviceID), zap.Error(err))
		}
	}()

	s.logger.Info("Watching device", zap.String("device_id", deviceID))
	return w.bridge, true
}

// Unwatch stops the device's bridge and returns once its loop has exited and
// its subscription is closed.
func (s *Supervisor) Unwatch(deviceID string) bool {
	s.mu.Lock()
	w, ok := s.watches[deviceID]
	delete(s.watches, deviceID)
	s.mu.Unlock()

	if !ok {
		return false
	}
	w.cancel()
	<-w.done

	// the device may have been watched again while this bridge wound down
	s.mu.Lock()
	if _, rewatched := s.watches[deviceID]; !rewatched {
		if s.opts.Liveness != nil {
			s.opts.Liveness.Forget(deviceID)
		}
		telemetry.DeviceConnected.DeleteLabelValues(deviceID)
	}
	s.mu.Unlock()

	s.logger.Info("Stopped watching device", zap.String("device_id", deviceID))
	return true
}

func (s *Supervisor) Monitor(deviceID string) (*vitals.Monitor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watches[deviceID]
	if !ok {
		return nil, false
	}
	return w.bridge.Monitor(), true
}

// Devices lists the watched device ids in order.
func (s *Supervisor) Devices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.watches))
	for id := range s.watches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LastUpdateAge is the age of the device's last accepted reading; false when
// the device is not watched or has no reading yet.
func (s *Supervisor) LastUpdateAge(deviceID string) (time.Duration, bool) {
	m, ok := s.Monitor(deviceID)
	if !ok {
		return 0, false
	}
	return m.LastUpdateAge()
}

// Close stops every bridge and waits for all of them. Later Watch calls are
// refused.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	for _, id := range s.Devices() {
		s.Unwatch(id)
	}
}
