package iot

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterStore keeps one token bucket per device id. Ingestion on REST
// and gRPC goes through it.
type RateLimiterStore struct {
	limiters     map[string]*rate.Limiter
	mu           sync.Mutex
	defaultRate  rate.Limit
	defaultBurst int
}

func NewRateLimiterStore(defaultRate rate.Limit, defaultBurst int) *RateLimiterStore {
	return &RateLimiterStore{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  defaultRate,
		defaultBurst: defaultBurst,
	}
}

func (s *RateLimiterStore) GetLimiter(deviceID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, exists := s.limiters[deviceID]
	if !exists {
		limiter = rate.NewLimiter(s.defaultRate, s.defaultBurst)
		s.limiters[deviceID] = limiter
	}
	return limiter
}

func (s *RateLimiterStore) SetLimiter(deviceID string, deviceRate rate.Limit, deviceBurst int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limiters[deviceID] = rate.NewLimiter(deviceRate, deviceBurst)
}

// Allow consumes a token for deviceID.
func (s *RateLimiterStore) Allow(deviceID string) bool {
	return s.GetLimiter(deviceID).Allow()
}

// Forget drops the limiter of a device that is no longer watched.
func (s *RateLimiterStore) Forget(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.limiters, deviceID)
}

func (s *RateLimiterStore) Defaults() (rate.Limit, int) {
	return s.defaultRate, s.defaultBurst
}
