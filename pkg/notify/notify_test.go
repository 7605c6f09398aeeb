package notify

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/models"
	"liyu1981.xyz/vital-signs-service/pkg/vitals"
)

func testAlert(id string) vitals.Alert {
	return vitals.Alert{
		ID:       id,
		DeviceID: "AA:BB",
		Kind:     models.VitalKindHeartRate,
		Severity: models.SeverityCritical,
		Value:    150,
		Reading:  "150",
		Message:  "Heart rate critical: 150 bpm (safe range 60-140)",
		Time:     time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) notifier(label string) Func {
	return Func{Label: label, Fn: func(_ context.Context, a vitals.Alert) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.ids = append(r.ids, label+":"+a.ID)
		return nil
	}}
}

func TestDispatcher_DeliversToEveryNotifier(t *testing.T) {
	common.SetTestLoggerNop()

	rec := &recorder{}
	failing := Func{Label: "failing", Fn: func(context.Context, vitals.Alert) error { return errors.New("down") }}
	d := NewDispatcher(4, rec.notifier("a"), failing, rec.notifier("b"))

	assert.True(t, d.Dispatch(testAlert("1")))
	assert.True(t, d.Dispatch(testAlert("2")))
	d.Close()

	assert.Equal(t, []string{"a:1", "b:1", "a:2", "b:2"}, rec.ids)
	assert.False(t, d.Dispatch(testAlert("3")), "closed dispatcher rejects alerts")
	d.Close()
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	var buf bytes.Buffer
	common.SetTestCaptureLogger(&buf, zapcore.WarnLevel)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	blocking := Func{Label: "slow", Fn: func(context.Context, vitals.Alert) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}}
	d := NewDispatcher(1, blocking)

	require.True(t, d.Dispatch(testAlert("1")))
	<-started
	require.True(t, d.Dispatch(testAlert("2")))

	done := make(chan bool)
	go func() { done <- d.Dispatch(testAlert("3")) }()
	select {
	case accepted := <-done:
		assert.False(t, accepted)
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a full queue")
	}

	close(release)
	d.Close()

	_, found := common.FindLog(common.ParseLogs(&buf), map[string]any{
		"msg":      "Notification queue full, dropping alert",
		"alert_id": "3",
	})
	assert.True(t, found)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	common.SetTestCaptureLogger(&buf, zapcore.InfoLevel)

	require.NoError(t, Log{}.Notify(context.Background(), testAlert("x1")))

	entry, found := common.FindLog(common.ParseLogs(&buf), map[string]any{"alert_id": "x1"})
	require.True(t, found)
	assert.Equal(t, "notifier", entry["logger"])
	assert.Equal(t, "heart_rate", entry["kind"])
}

type fakePublisher struct {
	got []models.Alert
}

func (f *fakePublisher) PublishAlert(_ context.Context, a models.Alert) error {
	f.got = append(f.got, a)
	return nil
}

func TestPublishNotifier(t *testing.T) {
	pub := &fakePublisher{}
	require.NoError(t, Publish{Publisher: pub}.Notify(context.Background(), testAlert("p1")))
	require.Len(t, pub.got, 1)
	assert.Equal(t, "p1", pub.got[0].AlertID)
}
