package pgstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"liyu1981.xyz/vital-signs-service/pkg/common"
	"liyu1981.xyz/vital-signs-service/pkg/source"
)

type fakeListener struct {
	ch        chan *pq.Notification
	listenErr error
	listened  []string
	closed    bool
}

func (f *fakeListener) NotificationChannel() <-chan *pq.Notification { return f.ch }

func (f *fakeListener) Listen(channel string) error {
	f.listened = append(f.listened, channel)
	return f.listenErr
}

func (f *fakeListener) Close() error {
	f.closed = true
	return nil
}

func storeWithListener(l *fakeListener) *Store {
	common.SetTestLoggerNop()
	s := NewWithDB(nil, "postgres://example", "")
	s.newListener = func(string, pq.EventCallbackType) notifier { return l }
	return s
}

func notification(extra string) *pq.Notification {
	return &pq.Notification{Channel: NotifyChannel, Extra: extra}
}

func TestSubscribe_ForwardsMatchingRows(t *testing.T) {
	l := &fakeListener{ch: make(chan *pq.Notification, 8)}
	sub, err := storeWithListener(l).Subscribe(context.Background(), source.DeviceFilter("Health Status", "AA:BB"))
	require.NoError(t, err)
	assert.Equal(t, []string{NotifyChannel}, l.listened)

	l.ch <- notification(`{"type":"INSERT","table":"Health Status","record":{"mac_address":"CC:DD","heart_rate":70,"updated_at":"2025-07-16T12:30:00+00:00"}}`)
	l.ch <- nil
	l.ch <- notification(`not json`)
	l.ch <- notification(`{"type":"INSERT","table":"employees","record":{"mac_address":"AA:BB","updated_at":"2025-07-16T12:30:00+00:00"}}`)
	l.ch <- notification(`{"type":"UPDATE","table":"Health Status","record":{"mac_address":"AA:BB","respiratory_rate":22,"updated_at":"2025-07-16T12:30:05+00:00"}}`)

	select {
	case c := <-sub.Changes():
		assert.Equal(t, source.EventUpdate, c.Event)
		assert.Equal(t, "AA:BB", c.Reading.DeviceID)
		assert.Equal(t, 22.0, *c.Reading.RespiratoryRate)
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}

	require.NoError(t, sub.Close())
	assert.True(t, l.closed)
}

func TestSubscribe_ListenError(t *testing.T) {
	l := &fakeListener{ch: make(chan *pq.Notification), listenErr: errors.New("no connection")}
	_, err := storeWithListener(l).Subscribe(context.Background(), source.DeviceFilter("Health Status", "AA:BB"))
	assert.ErrorContains(t, err, "no connection")
	assert.True(t, l.closed)
}

func TestSubscribe_ClosedListenerEndsSubscription(t *testing.T) {
	l := &fakeListener{ch: make(chan *pq.Notification)}
	sub, err := storeWithListener(l).Subscribe(context.Background(), source.DeviceFilter("Health Status", "AA:BB"))
	require.NoError(t, err)

	close(l.ch)
	select {
	case _, open := <-sub.Changes():
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("subscription did not end")
	}
	assert.Error(t, sub.Err())
}
