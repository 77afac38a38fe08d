package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickcore/internal/schema"
	"tickcore/pkg/exception"
	"tickcore/pkg/websocket"
)

func TestNetOpenerStreamingSocket(t *testing.T) {
	received := make(chan string, 2)
	upgrader := gorilla.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 2; i++ {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- string(payload)
		}
		_ = conn.WriteMessage(gorilla.BinaryMessage, []byte{0x00, 0x00})
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := NetOpener{}.Open(ctx, schema.ConnectRequest{
		URL:       "ws" + strings.TrimPrefix(srv.URL, "http"),
		Transport: schema.TransportStreamingSocket,
		Tokens:    []uint32{408065, 256265},
	})
	require.NoError(t, err)
	defer tr.Close()

	assert.JSONEq(t, `{"a":"subscribe","v":[408065,256265]}`, <-received)
	assert.JSONEq(t, `{"a":"mode","v":["full",[408065,256265]]}`, <-received)

	frame, err := tr.Next(ctx)
	require.NoError(t, err)
	assert.True(t, frame.Binary)
	assert.Equal(t, []byte{0x00, 0x00}, frame.Payload)
}

func TestNetOpenerServerPush(t *testing.T) {
	query := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query <- r.URL.Query().Get("tokens")
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "data: {\"token\":1,\"ltp\":10}\n\n")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := NetOpener{}.Open(ctx, schema.ConnectRequest{
		URL:       srv.URL + "/ticks",
		Transport: schema.TransportServerPush,
		Tokens:    []uint32{1, 2},
	})
	require.NoError(t, err)
	defer tr.Close()
	assert.Equal(t, "1,2", <-query)

	frame, err := tr.Next(ctx)
	require.NoError(t, err)
	assert.False(t, frame.Binary)
	assert.Equal(t, `{"token":1,"ltp":10}`, string(frame.Payload))

	_, err = tr.Next(ctx)
	assert.True(t, errors.Is(err, exception.ErrConnectionClose), "got %v", err)
}

func TestNetOpenerRejects(t *testing.T) {
	_, err := NetOpener{}.Open(context.Background(), schema.ConnectRequest{Transport: schema.TransportServerPush})
	assert.True(t, errors.Is(err, exception.ErrEmptyURL), "got %v", err)

	_, err = NetOpener{}.Open(context.Background(), schema.ConnectRequest{URL: "x", Transport: "fax"})
	assert.True(t, errors.Is(err, exception.ErrUnsupportedTransport), "got %v", err)
}

func TestNetOpenerDialOverride(t *testing.T) {
	dialErr := errors.New("refused")
	var gotURL string
	o := NetOpener{
		Header: http.Header{"X-Api-Key": []string{"k"}},
		DialSocket: func(url string, header http.Header) websocket.Dialer {
			gotURL = url
			return websocket.DialerFunc(func(context.Context) (websocket.Conn, error) {
				return nil, dialErr
			})
		},
	}
	_, err := o.Open(context.Background(), schema.ConnectRequest{URL: "ws://broker/feed", Transport: schema.TransportStreamingSocket})
	require.Error(t, err)
	assert.True(t, errors.Is(err, dialErr), "got %v", err)
	assert.Equal(t, "ws://broker/feed", gotURL)
}

func TestPushURL(t *testing.T) {
	got, err := pushURL("http://host/ticks?key=abc", []uint32{7, 8})
	require.NoError(t, err)
	assert.Equal(t, "http://host/ticks?key=abc&tokens=7%2C8", got)

	got, err = pushURL("http://host/ticks", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://host/ticks", got)
}
