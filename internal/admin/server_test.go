package admin

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickcore/internal/obs"
	"tickcore/internal/schema"
)

func newTestServer(t *testing.T) (*Server, *Board, *obs.Metrics) {
	t.Helper()
	board := NewBoard(0)
	metrics := obs.NewMetrics()
	s, err := NewServer(board, metrics, func() int { return 2 })
	require.NoError(t, err)
	return s, board, metrics
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestServerHealth(t *testing.T) {
	s, board, _ := newTestServer(t)
	board.Observe(schema.Event{Type: schema.EventStatus, Key: "a", TsNano: 1_700_000_000_000_000_000, Connected: new(bool)})

	w := get(t, s.Handler(), "/api/health")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status      string `json:"status"`
		HostClients int    `json:"hostClients"`
		LastEventMs int64  `json:"lastEventMs"`
	}
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 2, body.HostClients)
	assert.Equal(t, int64(1_700_000_000_000), body.LastEventMs)
}

func TestServerPrices(t *testing.T) {
	s, board, _ := newTestServer(t)
	board.Observe(tickEvent("a", "NIFTY", 100, time.Now().UnixNano()))

	w := get(t, s.Handler(), "/api/prices")
	require.Equal(t, http.StatusOK, w.Code)
	var prices []PriceView
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &prices))
	require.Len(t, prices, 1)
	assert.Equal(t, "NIFTY", prices[0].Symbol)

	w = get(t, s.Handler(), "/api/prices/NIFTY")
	require.Equal(t, http.StatusOK, w.Code)
	var p PriceView
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, 100.0, p.FusedPrice)

	w = get(t, s.Handler(), "/api/prices/SENSEX")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServerConnectionsAndRisk(t *testing.T) {
	s, board, _ := newTestServer(t)
	board.Observe(schema.StatusEvent("a", true))
	board.Observe(schema.Event{Type: schema.EventHaltTriggered, Halt: &schema.Halt{Reason: schema.HaltReasonMaxTrades, Threshold: 5, Value: 5}})

	w := get(t, s.Handler(), "/api/connections")
	require.Equal(t, http.StatusOK, w.Code)
	var conns []ConnStatus
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &conns))
	require.Len(t, conns, 1)
	assert.True(t, conns[0].Connected)

	w = get(t, s.Handler(), "/api/risk")
	require.Equal(t, http.StatusOK, w.Code)
	var risk RiskView
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &risk))
	require.NotNil(t, risk.LastHalt)
	assert.Equal(t, schema.HaltReasonMaxTrades, risk.LastHalt.Reason)
}

func TestServerStatsAndMetrics(t *testing.T) {
	s, _, metrics := newTestServer(t)
	metrics.ObserveFrame(4, 1, time.Millisecond)
	metrics.IncReconnect()

	w := get(t, s.Handler(), "/api/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var st obs.Snapshot
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, uint64(1), st.Frames)
	assert.Equal(t, uint64(4), st.Ticks)

	w = get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "tickcore_frames_total 1"))
	assert.True(t, strings.Contains(body, "tickcore_reconnects_total 1"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestServerRunStopsOnCancel(t *testing.T) {
	s, _, _ := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/api/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
