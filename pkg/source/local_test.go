package source

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/db"
	"liyu1981.xyz/vital-signs-service/pkg/iot"
	"liyu1981.xyz/vital-signs-service/pkg/models"
	_ "liyu1981.xyz/vital-signs-service/pkg/testing"
)

func hr(v float64) *float64 { return &v }

func TestLocal_ReadAndSubscribe(t *testing.T) {
	common.SetTestLoggerNop()

	core := iot.New(db.GetInstance(db.UseMemorySqliteDialector()))
	local := NewLocal(core)
	ctx := context.Background()
	deviceID := uuid.NewString()
	other := uuid.NewString()

	sub, err := local.Subscribe(ctx, DeviceFilter(common.DefaultReadingsTable, deviceID))
	require.NoError(t, err)

	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, core.Reading.StoreReading(ctx, &models.Reading{MacAddress: other, HeartRate: hr(60), Timestamp: base}))
	require.NoError(t, core.Reading.StoreReading(ctx, &models.Reading{MacAddress: deviceID, HeartRate: hr(90), Timestamp: base}))

	select {
	case c := <-sub.Changes():
		assert.Equal(t, deviceID, c.Reading.DeviceID)
		assert.Equal(t, 90.0, *c.Reading.HeartRate)
		assert.Equal(t, EventInsert, c.Event)
		assert.Equal(t, common.DefaultReadingsTable, c.Table)
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}

	readings, err := local.LatestReadings(ctx, deviceID, 10)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.True(t, readings[0].Timestamp.Equal(base))

	subscribers := core.Feed.Subscribers()
	require.NoError(t, sub.Close())
	assert.Equal(t, subscribers-1, core.Feed.Subscribers())
}

func TestLocal_SubscriptionEndsWithContext(t *testing.T) {
	common.SetTestLoggerNop()

	core := iot.New(db.GetInstance(db.UseMemorySqliteDialector()))
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := NewLocal(core).Subscribe(ctx, DeviceFilter("t", uuid.NewString()))
	require.NoError(t, err)
	cancel()

	select {
	case _, open := <-sub.Changes():
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("subscription outlived its context")
	}
	assert.ErrorIs(t, sub.Err(), context.Canceled)
}

func TestLocal_RejectsOtherColumns(t *testing.T) {
	core := iot.New(db.GetInstance(db.UseMemorySqliteDialector()))
	_, err := NewLocal(core).Subscribe(context.Background(), Filter{Column: "employee"})
	assert.Error(t, err)
}

func TestLocal_InsertEmployee(t *testing.T) {
	common.SetTestLoggerNop()

	core := iot.New(db.GetInstance(db.UseMemorySqliteDialector()))
	e := &models.Employee{Name: "Roster " + uuid.NewString()}
	require.NoError(t, NewLocal(core).InsertEmployee(context.Background(), e))
	assert.NotEmpty(t, e.ID)
}
