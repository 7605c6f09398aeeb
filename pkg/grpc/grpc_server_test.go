package grpc

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"liyu1981.xyz/vital-signs-service/pkg/bridge"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/db"
	"liyu1981.xyz/vital-signs-service/pkg/iot"
	"liyu1981.xyz/vital-signs-service/pkg/models"
	"liyu1981.xyz/vital-signs-service/pkg/source"
	_ "liyu1981.xyz/vital-signs-service/pkg/testing"
	"liyu1981.xyz/vital-signs-service/pkg/vitals"

	"liyu1981.xyz/vital-signs-service/pkg/iot/mocks"
)

const bufSize = 1024 * 1024

type response struct {
	Status  StatusResponse  `json:"status"`
	Reading *models.Reading `json:"reading"`
	Alerts  []models.Alert  `json:"alerts"`
	Device  *DeviceStatus   `json:"device"`
}

func startServer(t *testing.T, server *VitalsServer) *VitalsServiceClient {
	listener := bufconn.Listen(bufSize)

	s := grpc.NewServer(grpc.UnaryInterceptor(server.CreateRateLimitInterceptor(LimitedMethods)))
	RegisterVitalsServiceServer(s, server)

	go func() {
		_ = s.Serve(listener)
	}()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, s string) (net.Conn, error) {
			return listener.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewVitalsServiceClient(conn)
}

func startTestServer(t *testing.T) *VitalsServiceClient {
	return startServer(t, &VitalsServer{Iot: iot.New(db.GetInstance(db.UseMemorySqliteDialector()))})
}

func payload(t *testing.T, fields map[string]any) *structpb.Struct {
	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return s
}

func readingPayload(deviceID string, at time.Time, hr float64) map[string]any {
	return map[string]any{
		"device_id": deviceID,
		"reading": map[string]any{
			"timestamp":   at.Format(time.RFC3339Nano),
			"heart_rate":  hr,
			"temperature": 36.6,
		},
	}
}

func decodeResponse(t *testing.T, s *structpb.Struct) response {
	var r response
	require.NoError(t, Decode(s, &r))
	return r
}

func TestPostReadingAndGetAlerts(t *testing.T) {
	common.SetTestLoggerNop()
	core := iot.New(db.GetInstance(db.UseMemorySqliteDialector()))
	client := startServer(t, &VitalsServer{Iot: core})

	deviceID := uuid.NewString()
	ctx := context.Background()

	out, err := client.PostReading(ctx, payload(t, readingPayload(deviceID, time.Now().UTC(), 72)))
	require.NoError(t, err)
	r := decodeResponse(t, out)
	require.True(t, r.Status.Success, r.Status.Message)
	require.NotNil(t, r.Reading)
	assert.Equal(t, deviceID, r.Reading.MacAddress)
	assert.Equal(t, 72.0, *r.Reading.HeartRate)

	require.NoError(t, core.Alert.StoreAlert(ctx, &models.Alert{
		AlertID:   uuid.NewString(),
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		Kind:      models.VitalKindBodyActivity,
		Severity:  models.SeverityCritical,
		Reading:   "Fallen",
	}))

	out, err = client.GetAlerts(ctx, payload(t, map[string]any{"device_id": deviceID}))
	require.NoError(t, err)
	r = decodeResponse(t, out)
	require.True(t, r.Status.Success)
	require.Len(t, r.Alerts, 1)
	assert.Equal(t, models.VitalKindBodyActivity, r.Alerts[0].Kind)
}

func TestPostReading_EdgeCases(t *testing.T) {
	common.SetTestLoggerNop()
	client := startTestServer(t)
	ctx := context.Background()
	deviceID := uuid.NewString()

	cases := map[string]map[string]any{
		"empty device id": readingPayload("", time.Now(), 70),
		"no reading":      {"device_id": deviceID},
		"no timestamp":    {"device_id": deviceID, "reading": map[string]any{"heart_rate": 70.0}},
		"negative rate":   readingPayload(deviceID, time.Now(), -5),
		"bad blood pressure": {"device_id": deviceID, "reading": map[string]any{
			"timestamp":      time.Now().Format(time.RFC3339),
			"blood_pressure": "high",
		}},
	}
	for name, fields := range cases {
		out, err := client.PostReading(ctx, payload(t, fields))
		assert.NoError(t, err, name)
		r := decodeResponse(t, out)
		assert.False(t, r.Status.Success, name)
		assert.True(t, strings.Contains(r.Status.Message, "validation error"), "%s: %s", name, r.Status.Message)
	}
}

func startTestServerWithMocks(t *testing.T) (*gomock.Controller, *VitalsServiceClient, *mocks.MockIReading, *mocks.MockIAlert) {
	ctrl := gomock.NewController(t)
	mockIReading := mocks.NewMockIReading(ctrl)
	mockIAlert := mocks.NewMockIAlert(ctrl)

	core := iot.New(db.GetInstance(db.UseMemorySqliteDialector()))
	core.WithServices(iot.ServiceOpts{
		Reading: mockIReading,
		Alert:   mockIAlert,
	})

	return ctrl, startServer(t, &VitalsServer{Iot: core}), mockIReading, mockIAlert
}

func TestInternalErrors(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, client, mockIReading, mockIAlert := startTestServerWithMocks(t)
	defer ctrl.Finish()

	ctx := context.Background()
	deviceID := uuid.NewString()

	{
		mockIReading.EXPECT().
			StoreReading(gomock.Any(), gomock.Any()).
			Return(fmt.Errorf("test error")).
			Times(1)
		out, err := client.PostReading(ctx, payload(t, readingPayload(deviceID, time.Now(), 70)))
		assert.NoError(t, err)
		r := decodeResponse(t, out)
		assert.False(t, r.Status.Success, "expected PostReading to fail")
		assert.Contains(t, r.Status.Message, "test error")
	}

	{
		mockIAlert.EXPECT().
			GetDeviceAlerts(gomock.Any(), gomock.Eq(deviceID), gomock.Eq(2)).
			Return(nil, fmt.Errorf("test error")).
			Times(1)
		out, err := client.GetAlerts(ctx, payload(t, map[string]any{"device_id": deviceID, "limit": 2}))
		assert.NoError(t, err)
		r := decodeResponse(t, out)
		assert.False(t, r.Status.Success, "expected GetAlerts to fail")
		assert.Contains(t, r.Status.Message, "test error")
	}

	{
		out, err := client.GetAlerts(ctx, payload(t, map[string]any{"device_id": ""}))
		assert.NoError(t, err)
		r := decodeResponse(t, out)
		assert.False(t, r.Status.Success)
		assert.Contains(t, r.Status.Message, "validation error")
	}
}

func TestGetDeviceStatus(t *testing.T) {
	common.SetTestLoggerNop()

	core := iot.New(db.GetInstance(db.UseMemorySqliteDialector()))
	local := source.NewLocal(core)
	liveness := vitals.NewLivenessTracker(vitals.RealClock(), time.Minute)
	opts := bridge.DefaultOptions()
	opts.Liveness = liveness
	supervisor := bridge.NewSupervisor(local, local, opts)
	t.Cleanup(supervisor.Close)

	client := startServer(t, &VitalsServer{
		Iot:        core,
		Supervisor: supervisor,
		Liveness:   liveness,
		AutoWatch:  true,
	})
	ctx := context.Background()
	deviceID := uuid.NewString()

	out, err := client.GetDeviceStatus(ctx, payload(t, map[string]any{"device_id": deviceID}))
	require.NoError(t, err)
	r := decodeResponse(t, out)
	assert.False(t, r.Status.Success)
	assert.Contains(t, r.Status.Message, "not watched")

	out, err = client.PostReading(ctx, payload(t, readingPayload(deviceID, time.Now().UTC(), 150)))
	require.NoError(t, err)
	require.True(t, decodeResponse(t, out).Status.Success)

	require.Eventually(t, func() bool {
		out, err := client.GetDeviceStatus(ctx, payload(t, map[string]any{"device_id": deviceID}))
		if err != nil {
			return false
		}
		r := decodeResponse(t, out)
		return r.Status.Success && r.Device != nil && r.Device.Status == vitals.StatusCritical
	}, 2*time.Second, 20*time.Millisecond)

	out, err = client.GetDeviceStatus(ctx, payload(t, map[string]any{"device_id": deviceID}))
	require.NoError(t, err)
	r = decodeResponse(t, out)
	require.NotNil(t, r.Device)
	assert.True(t, r.Device.Connected)
	assert.Equal(t, vitals.Celsius, r.Device.Unit)
	require.NotNil(t, r.Device.Latest)
	assert.Equal(t, 150.0, *r.Device.Latest.HeartRate)
	assert.Equal(t, 1, r.Device.Kinds[models.VitalKindHeartRate].ConsecutiveCritical)
	assert.Empty(t, r.Device.Alerts, "a single critical sample does not alert")
}

func TestRateLimitInterceptor_PostReading(t *testing.T) {
	common.SetTestLoggerNop()

	limiterStore := iot.NewRateLimiterStore(2, 2) // Allow 2 req/sec per device
	client := startServer(t, &VitalsServer{
		Iot:              iot.New(db.GetInstance(db.UseMemorySqliteDialector())),
		RateLimiterStore: limiterStore,
	})

	ctx := context.Background()
	deviceID := uuid.NewString()
	base := time.Now().UTC()

	// First 2 requests should pass
	for i := range 2 {
		out, err := client.PostReading(ctx, payload(t, readingPayload(deviceID, base.Add(time.Duration(i)*time.Millisecond), 70)))
		require.NoError(t, err, "expected request %d to pass", i+1)
		require.True(t, decodeResponse(t, out).Status.Success)
	}

	// 3rd request should fail immediately
	_, err := client.PostReading(ctx, payload(t, readingPayload(deviceID, base.Add(time.Second), 70)))
	require.Error(t, err, "expected third request to be rate limited")

	st, ok := status.FromError(err)
	require.True(t, ok, "expected gRPC status error")
	require.Equal(t, codes.ResourceExhausted, st.Code(), "expected ResourceExhausted code")

	// limiter changes are not themselves limited
	out, err := client.PostLimiter(ctx, payload(t, map[string]any{
		"device_id":    deviceID,
		"device_rate":  3,
		"device_burst": 2,
	}))
	require.NoError(t, err)
	require.True(t, decodeResponse(t, out).Status.Success)

	// Should pass again
	_, err = client.PostReading(ctx, payload(t, readingPayload(deviceID, base.Add(2*time.Second), 70)))
	require.NoError(t, err, "expected request after limiter reset to pass")
}

func TestPostLimiter_EdgeCases(t *testing.T) {
	common.SetTestLoggerNop()

	{
		client := startTestServer(t)
		deviceID := uuid.NewString()

		for name, fields := range map[string]map[string]any{
			"empty device id": {"device_id": ""},
			"no rate":         {"device_id": deviceID},
			"no burst":        {"device_id": deviceID, "device_rate": 3.0},
		} {
			out, err := client.PostLimiter(context.Background(), payload(t, fields))
			assert.NoError(t, err, name)
			r := decodeResponse(t, out)
			assert.False(t, r.Status.Success, "expected PostLimiter to fail: %s", name)
			assert.True(t, strings.Contains(r.Status.Message, "validation error"), "expected validation error: %s", name)
		}
	}

	{
		client := startTestServer(t)

		// default there is no rate limiter so setting a rate will fail with no effect
		out, err := client.PostLimiter(context.Background(), payload(t, map[string]any{
			"device_id":    uuid.NewString(),
			"device_rate":  3.0,
			"device_burst": 2,
		}))
		assert.NoError(t, err)
		r := decodeResponse(t, out)
		assert.False(t, r.Status.Success, "expected PostLimiter to fail")
		assert.True(t, strings.Contains(r.Status.Message, "No effect"), "expected PostLimiter to report no effect")
	}
}
