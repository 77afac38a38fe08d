package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffNext(t *testing.T) {
	b := Backoff{Min: time.Second, Max: 5 * time.Second, Factor: 2}

	testCases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, b.Next(tc.attempt), "attempt %d", tc.attempt)
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	b := Backoff{Min: time.Second, Max: time.Second, Factor: 2, Jitter: 0.2}
	for i := 0; i < 100; i++ {
		d := b.Next(3)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}

func TestDefaultBackoffNeverBelowReconnectDelay(t *testing.T) {
	b := DefaultBackoff()
	for i := 0; i < 200; i++ {
		assert.GreaterOrEqual(t, b.Next(1), DefaultReconnectDelay)
	}
}

func TestFixedBackoff(t *testing.T) {
	b := FixedBackoff(DefaultReconnectDelay)
	for attempt := 1; attempt < 5; attempt++ {
		assert.Equal(t, DefaultReconnectDelay, b.Next(attempt))
	}
}
