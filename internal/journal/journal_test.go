package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickcore/internal/obs"
	"tickcore/internal/schema"
)

func TestOptionDSN(t *testing.T) {
	assert.Equal(t, "postgres://localhost:5432/?sslmode=disable", Option{}.DSN())
	assert.Equal(t,
		"postgres://tick:s3cret@db:6543/tickcore?application_name=tickcore&sslmode=require",
		Option{
			Host:     "db",
			Port:     6543,
			User:     "tick",
			Password: "s3cret",
			Database: "tickcore",
			SSLMode:  "require",
			Params:   map[string]string{"application_name": "tickcore", "": "ignored"},
		}.DSN())
	assert.Equal(t, "host=x", Option{ConnString: "host=x", Host: "db"}.DSN())
}

func TestFromEvent(t *testing.T) {
	ts := time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)

	_, ok := FromEvent(schema.Event{Type: schema.EventTick})
	assert.False(t, ok)

	rec, ok := FromEvent(schema.Event{
		Type:   schema.EventHaltTriggered,
		Seq:    7,
		TsNano: ts.UnixNano(),
		Halt:   &schema.Halt{Reason: schema.HaltReasonMaxLoss, Threshold: -500, Value: -512.5},
	})
	assert.True(t, ok)
	assert.Equal(t, uint64(7), rec.Seq)
	assert.Equal(t, "halt_triggered", rec.Type)
	assert.Equal(t, ts, rec.EventTime)
	assert.JSONEq(t, `{"reason":"max_loss","threshold":-500,"value":-512.5}`, rec.Payload)

	rec, ok = FromEvent(schema.StatusEvent("kite", false))
	assert.True(t, ok)
	assert.Equal(t, "kite", rec.Key)
	assert.Equal(t, "false", rec.Payload)

	rec, ok = FromEvent(schema.Event{Type: schema.EventError, Key: "kite", Message: "reset"})
	assert.True(t, ok)
	assert.Equal(t, "reset", rec.Message)
	assert.Empty(t, rec.Payload)
}

func TestRecordDropsWhenFull(t *testing.T) {
	metrics := obs.NewMetrics()
	j := New(nil, metrics)
	for i := 0; i < defaultQueueSize+2; i++ {
		j.Record(schema.StatusEvent("kite", true))
	}
	j.Record(schema.Event{Type: schema.EventTick})
	assert.Equal(t, uint64(2), metrics.Snapshot().QueueDrops)
	assert.Equal(t, defaultQueueSize, j.queue.Len())
}

func TestRunDrainsAfterCancel(t *testing.T) {
	j := New(nil, obs.NewMetrics())
	var (
		written []string
		live    []bool
	)
	j.write = func(ctx context.Context, rec Record) error {
		written = append(written, rec.Key)
		live = append(live, ctx.Err() == nil)
		return nil
	}

	j.Record(schema.StatusEvent("a", true))
	j.Record(schema.StatusEvent("b", false))
	j.Record(schema.ErrorEvent("c", nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	j.Run(ctx)

	require.Len(t, written, 3)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, written)
	for _, ok := range live {
		assert.True(t, ok)
	}
	assert.Zero(t, j.queue.Len())

	j.Record(schema.StatusEvent("d", true))
	assert.Len(t, written, 3)
}
