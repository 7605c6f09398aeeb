package grpc

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"liyu1981.xyz/vital-signs-service/pkg/common"
)

// LimitedMethods are the device scoped calls that spend a limiter token.
var LimitedMethods = []string{MethodPostReading, MethodGetAlerts, MethodGetDeviceStatus}

func (s *VitalsServer) CreateRateLimitInterceptor(methods []string) grpc.UnaryServerInterceptor {
	logger := common.GetCategoryLogger(common.LoggerNameGrpcServer, common.LoggerCategoryDevice)
	limited := common.Reducer(methods,
		func(m map[string]bool, method string) map[string]bool {
			m[method] = true
			return m
		},
		map[string]bool{},
	)

	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if limited[info.FullMethod] {
			if deviceID := deviceIDOf(req); deviceID != "" && !s.CheckDeviceLimiter(deviceID) {
				logger.Debug("Rate limited", zap.String("device_id", deviceID), zap.String("method", info.FullMethod))
				return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded")
			}
		}

		return handler(ctx, req)
	}
}
