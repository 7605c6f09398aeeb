package vitals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_KeepsLastTenInOrder(t *testing.T) {
	h := NewHistory(10)
	for i := range 15 {
		h.Append(NewHistoryPoint(t0.Add(time.Duration(i)*time.Second), Float(float64(i+1))))
		assert.LessOrEqual(t, h.Len(), 10)
	}

	points := h.Snapshot()
	require.Len(t, points, 10)
	for i, p := range points {
		require.NotNil(t, p.Value)
		assert.Equal(t, float64(i+6), *p.Value)
		if i > 0 {
			assert.True(t, p.At.After(points[i-1].At))
		}
	}
	assert.Equal(t, "09:00:05", points[0].Time)
}

func TestHistory_EvictedPointLeavesNoTrace(t *testing.T) {
	h := NewHistory(10)
	marker := NewHistoryPoint(t0, Float(42))
	h.Append(marker)
	for i := 1; i <= 10; i++ {
		h.Append(NewHistoryPoint(t0.Add(time.Duration(i)*time.Second), Float(70)))
	}

	for _, p := range h.Snapshot() {
		assert.False(t, p.At.Equal(marker.At))
		assert.NotEqual(t, 42.0, *p.Value)
	}
}

func TestHistory_SnapshotIsACopy(t *testing.T) {
	h := NewHistory(3)
	h.Append(NewHistoryPoint(t0, Float(1)))

	snap := h.Snapshot()
	snap[0].Time = "changed"
	*snap[0].Value = 999
	assert.Equal(t, "09:00:00", h.Snapshot()[0].Time)
	assert.Equal(t, 1.0, *h.Snapshot()[0].Value)

	// restartable: two reads see the same window
	assert.Equal(t, h.Snapshot(), h.Snapshot())
}

func TestHistory_GapPoint(t *testing.T) {
	p := NewHistoryPoint(t0, nil)
	assert.Nil(t, p.Value)
	assert.Nil(t, NewHistoryPoint(t0, Float(0)).Value)
}

func TestAlertLog_NewestFirstBounded(t *testing.T) {
	l := NewAlertLog(DefaultAlertLogSize)
	for i := range 9 {
		l.Add(Alert{ID: string(rune('a' + i))})
		assert.LessOrEqual(t, l.Len(), 6)
	}
	got := l.Snapshot()
	require.Len(t, got, 6)
	assert.Equal(t, "i", got[0].ID)
	assert.Equal(t, "d", got[5].ID)
}
