package host

import (
	"bufio"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickcore/internal/obs"
	"tickcore/internal/schema"
	"tickcore/pkg/uds"
)

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) SubmitRaw(_ context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, string(payload))
	return nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestBridgeRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.sock")
	srv, err := uds.NewServer(path)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	rec := &recorder{}
	bridge := NewBridge(rec, obs.NewMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, bridge.Handle)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	client, err := uds.NewClient(path)
	require.NoError(t, err)
	conn, err := client.Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("{\"type\":\"reset_halt\"}\n\n  {\"type\":\"notify_mtm\",\"mtm\":-10}\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{`{"type":"reset_halt"}`, `{"type":"notify_mtm","mtm":-10}`}, rec.snapshot())

	require.Eventually(t, func() bool { return bridge.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)
	bridge.Broadcast(schema.StatusEvent("kite", true))
	bridge.Broadcast(schema.Event{Type: schema.EventHaltTriggered, Halt: &schema.Halt{Reason: schema.HaltReasonMaxLoss, Threshold: -500, Value: -510}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	reader := bufio.NewReader(conn)

	line, err := reader.ReadBytes('\n')
	require.NoError(t, err)
	var status schema.Event
	require.NoError(t, sonic.Unmarshal(line, &status))
	assert.Equal(t, schema.EventStatus, status.Type)
	assert.Equal(t, "kite", status.Key)
	require.NotNil(t, status.Connected)
	assert.True(t, *status.Connected)

	line, err = reader.ReadBytes('\n')
	require.NoError(t, err)
	var halt schema.Event
	require.NoError(t, sonic.Unmarshal(line, &halt))
	assert.Equal(t, schema.EventHaltTriggered, halt.Type)
	assert.Equal(t, -500.0, halt.Halt.Threshold)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return bridge.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestBroadcastDropsForSlowClient(t *testing.T) {
	metrics := obs.NewMetrics()
	bridge := NewBridge(&recorder{}, metrics)
	bridge.queueSize = 1
	id, _ := bridge.register()
	defer bridge.unregister(id)

	bridge.Broadcast(schema.StatusEvent("a", true))
	bridge.Broadcast(schema.StatusEvent("a", false))
	assert.Equal(t, uint64(1), metrics.Snapshot().QueueDrops)
}
