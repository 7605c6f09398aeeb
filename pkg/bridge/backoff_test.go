package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_DoublesToCap(t *testing.T) {
	retry := Backoff{Initial: 500 * time.Millisecond, Max: 30 * time.Second}.New()

	want := []time.Duration{
		500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second,
		8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	for attempt, d := range want {
		assert.Equal(t, d, retry.NextBackOff(), "attempt %d", attempt)
	}
	for range 100 {
		retry.NextBackOff()
	}
	assert.Equal(t, 30*time.Second, retry.NextBackOff(), "never gives up")
}

func TestBackoff_ResetStartsOver(t *testing.T) {
	retry := Backoff{Initial: 500 * time.Millisecond, Max: 30 * time.Second}.New()
	for range 5 {
		retry.NextBackOff()
	}
	retry.Reset()
	assert.Equal(t, 500*time.Millisecond, retry.NextBackOff())
}

func TestBackoff_Jitter(t *testing.T) {
	for range 100 {
		retry := DefaultBackoff().New()
		retry.NextBackOff()
		retry.NextBackOff()
		d := retry.NextBackOff()
		assert.GreaterOrEqual(t, d, 1600*time.Millisecond)
		assert.LessOrEqual(t, d, 2400*time.Millisecond)
	}
}
