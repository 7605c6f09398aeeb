package iot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/models"
	_ "liyu1981.xyz/vital-signs-service/pkg/testing"
)

func TestTouchDevice_OnlyMovesForward(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	ctx := context.Background()
	deviceID := uuid.NewString()
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, iotObj.Device.TouchDevice(ctx, deviceID, base))
	require.NoError(t, iotObj.Device.TouchDevice(ctx, deviceID, base.Add(-time.Minute)))

	device, err := iotObj.Device.GetDevice(ctx, deviceID)
	require.NoError(t, err)
	assert.True(t, device.LastActivity.Equal(base))

	require.NoError(t, iotObj.Device.TouchDevice(ctx, deviceID, base.Add(time.Minute)))
	device, err = iotObj.Device.GetDevice(ctx, deviceID)
	require.NoError(t, err)
	assert.True(t, device.LastActivity.Equal(base.Add(time.Minute)))
}

func TestAssignEmployee(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	ctx := context.Background()
	deviceID := uuid.NewString()

	// assigning before any reading creates the device
	require.NoError(t, iotObj.Device.AssignEmployee(ctx, deviceID, "Ada"))
	require.NoError(t, iotObj.Device.TouchDevice(ctx, deviceID, time.Now()))
	require.NoError(t, iotObj.Device.AssignEmployee(ctx, deviceID, "Grace"))

	device, err := iotObj.Device.GetDevice(ctx, deviceID)
	require.NoError(t, err)
	assert.Equal(t, "Grace", device.EmployeeName)
	assert.False(t, device.LastActivity.IsZero(), "assignment keeps last_activity")
}

func TestGetDevice_NotFound(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	_, err := iotObj.Device.GetDevice(context.Background(), uuid.NewString())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListDevices(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	ctx := context.Background()
	deviceID := uuid.NewString()
	idle := uuid.NewString()
	base := time.Now().UTC().Truncate(time.Second)

	for i := range 3 {
		require.NoError(t, iotObj.Reading.StoreReading(ctx, &models.Reading{
			MacAddress: deviceID,
			HeartRate:  f64(75),
			Timestamp:  base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, iotObj.Device.AssignEmployee(ctx, idle, "Nobody"))

	devices, err := iotObj.Device.ListDevices(ctx)
	require.NoError(t, err)

	byMac := map[string]models.DeviceSummary{}
	for _, d := range devices {
		byMac[d.MacAddress] = d
	}

	require.Contains(t, byMac, deviceID)
	assert.Equal(t, int64(3), byMac[deviceID].ReadingCount)
	require.NotNil(t, byMac[deviceID].LastReadingAt)
	assert.True(t, byMac[deviceID].LastReadingAt.Equal(base.Add(2*time.Second)))

	require.Contains(t, byMac, idle)
	assert.Equal(t, int64(0), byMac[idle].ReadingCount)
	assert.Nil(t, byMac[idle].LastReadingAt)
}
