package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueTryPublish(t *testing.T) {
	q := NewQueue[int](2)
	require.NoError(t, q.TryPublish(1))
	require.NoError(t, q.TryPublish(2))
	assert.ErrorIs(t, q.TryPublish(3), ErrQueueFull)
	assert.Equal(t, 2, q.Len())

	q.Close()
	assert.ErrorIs(t, q.TryPublish(4), ErrQueueClosed)
	q.Close()
}

func TestQueuePublishHonorsContext(t *testing.T) {
	q := NewQueue[int](1)
	require.NoError(t, q.Publish(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, 2), context.DeadlineExceeded)
}

func TestQueueRunPreservesOrder(t *testing.T) {
	q := NewQueue[int](8)
	for i := 0; i < 5; i++ {
		require.NoError(t, q.TryPublish(i))
	}
	q.Close()

	var got []int
	q.Run(context.Background(), func(v int) {
		got = append(got, v)
	})
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}
