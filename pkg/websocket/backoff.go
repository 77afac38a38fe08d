package websocket

import (
	"math/rand"
	"time"
)

// Backoff grows the reconnect delay exponentially between Min and Max, with
// Jitter as a 0-1 fraction of the delay added on top. A delay is never
// shorter than Min.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64
}

// DefaultReconnectDelay is the first reconnect delay after a transport error.
const DefaultReconnectDelay = 5 * time.Second

// DefaultBackoff grows from the reconnect delay up to one minute.
func DefaultBackoff() Backoff {
	return Backoff{
		Min:    DefaultReconnectDelay,
		Max:    time.Minute,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// FixedBackoff always waits d.
func FixedBackoff(d time.Duration) Backoff {
	return Backoff{Min: d, Max: d, Factor: 1}
}

// Next returns the next backoff duration for the given attempt (1-based).
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	min := b.Min
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	max := b.Max
	if max <= 0 {
		max = 5 * time.Second
	}
	if max < min {
		max = min
	}
	factor := b.Factor
	if factor < 1 {
		factor = 2.0
	}

	wait := min
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next > max {
			wait = max
			break
		}
		wait = next
	}

	if b.Jitter <= 0 {
		return wait
	}
	jitter := b.Jitter
	if jitter > 1 {
		jitter = 1
	}
	return wait + time.Duration(rand.Float64()*float64(wait)*jitter)
}
