package bridge

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Backoff spaces out reconnect attempts: Initial doubled per attempt up to
// Max, spread by +/- Jitter (a fraction of the delay).
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64
}

func DefaultBackoff() Backoff {
	return Backoff{Initial: 500 * time.Millisecond, Max: 30 * time.Second, Jitter: 0.2}
}

// New builds the retry policy. It never gives up: a watched device keeps
// reconnecting until it is unwatched.
func (b Backoff) New() *backoff.ExponentialBackOff {
	if b.Initial <= 0 {
		b.Initial = 500 * time.Millisecond
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}

	bo := &backoff.ExponentialBackOff{
		InitialInterval:     b.Initial,
		RandomizationFactor: b.Jitter,
		Multiplier:          2,
		MaxInterval:         b.Max,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	bo.Reset()
	return bo
}
