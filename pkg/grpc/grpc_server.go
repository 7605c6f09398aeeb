package grpc

import (
	"golang.org/x/time/rate"
	"liyu1981.xyz/vital-signs-service/pkg/bridge"
	"liyu1981.xyz/vital-signs-service/pkg/iot"
	"liyu1981.xyz/vital-signs-service/pkg/vitals"
)

type VitalsServer struct {
	Iot              *iot.IOT
	RateLimiterStore *iot.RateLimiterStore
	Supervisor       *bridge.Supervisor
	Liveness         *vitals.LivenessTracker
	Unit             vitals.Unit
	AutoWatch        bool
}

func (s *VitalsServer) GetLimiter(deviceID string) *rate.Limiter {
	if s.RateLimiterStore == nil {
		return nil
	} else {
		return s.RateLimiterStore.GetLimiter(deviceID)
	}
}

func (s *VitalsServer) CheckDeviceLimiter(deviceID string) bool {
	limiter := s.GetLimiter(deviceID)
	if limiter == nil {
		return true
	}
	return limiter.Allow()
}

var _ VitalsServiceServer = (*VitalsServer)(nil)
