package iot

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/models"
	_ "liyu1981.xyz/vital-signs-service/pkg/testing"
)

func TestStoreAndGetAlerts(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	ctx := context.Background()
	deviceID := uuid.NewString()
	base := time.Now().UTC()

	for i := range 8 {
		require.NoError(t, iotObj.Alert.StoreAlert(ctx, &models.Alert{
			AlertID:   uuid.NewString(),
			DeviceID:  deviceID,
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Kind:      models.VitalKindHeartRate,
			Severity:  models.SeverityCritical,
			Value:     150 + float64(i),
			Message:   "Heart rate critical",
		}))
	}

	alerts, err := iotObj.Alert.GetDeviceAlerts(ctx, deviceID, 0)
	require.NoError(t, err)
	require.Len(t, alerts, DefaultAlertLimit)
	assert.Equal(t, 157.0, alerts[0].Value, "newest first")

	all, err := iotObj.Alert.GetDeviceAlerts(ctx, deviceID, 100)
	require.NoError(t, err)
	assert.Len(t, all, 8)
}

func TestStoreAlert_Idempotent(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	ctx := context.Background()
	alert := models.Alert{
		AlertID:   uuid.NewString(),
		DeviceID:  uuid.NewString(),
		Timestamp: time.Now(),
		Kind:      models.VitalKindBodyActivity,
		Severity:  models.SeverityCritical,
		Reading:   "Fallen",
	}
	first, second := alert, alert
	require.NoError(t, iotObj.Alert.StoreAlert(ctx, &first))
	require.NoError(t, iotObj.Alert.StoreAlert(ctx, &second))

	alerts, err := iotObj.Alert.GetDeviceAlerts(ctx, alert.DeviceID, 10)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestStoreAlert_RejectsUnknownKind(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	err := iotObj.Alert.StoreAlert(context.Background(), &models.Alert{
		AlertID:  uuid.NewString(),
		DeviceID: uuid.NewString(),
		Kind:     "battery",
		Severity: models.SeverityCritical,
	})
	assert.Error(t, err)
}

func TestStoreAlert_WithLog(t *testing.T) {
	var buf = &bytes.Buffer{}
	common.SetTestCaptureLogger(buf, zapcore.InfoLevel)

	ctrl, iotObj, _, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	deviceID := uuid.NewString()
	require.NoError(t, iotObj.Alert.StoreAlert(context.Background(), &models.Alert{
		AlertID:   uuid.NewString(),
		DeviceID:  deviceID,
		Timestamp: time.Now(),
		Kind:      models.VitalKindTemperature,
		Severity:  models.SeverityCritical,
		Value:     39.1,
		Message:   "Temperature critical: 39.1 °C (safe range 35.5-38)",
	}))

	found := false
	for _, entry := range common.ParseLogs(buf) {
		alert, ok := entry["alert"].(map[string]any)
		if !ok {
			continue
		}
		if entry["category"] == "alert" &&
			entry["logger"] == "vitals_core" &&
			entry["msg"] == "Alert saved" &&
			alert["device_id"] == deviceID &&
			alert["kind"] == "temperature" {
			found = true
		}
	}
	assert.True(t, found)
}
