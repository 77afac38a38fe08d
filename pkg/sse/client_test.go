package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickcore/pkg/exception"
)

func TestStreamNext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "id: 1\nevent: tick\ndata: {\"token\":1,\n")
		fmt.Fprint(w, "data: \"ltp\":10}\n\n")
		fmt.Fprint(w, "retry: 3000\ndata:plain\n\n")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := NewDialer(srv.URL, nil, nil).Dial(ctx)
	require.NoError(t, err)
	defer stream.Close()

	ev, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "tick", ev.Type)
	assert.Equal(t, "1", ev.ID)
	assert.Equal(t, "{\"token\":1,\n\"ltp\":10}", string(ev.Data))
	assert.Equal(t, "1", stream.LastEventID())

	ev, err = stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "plain", string(ev.Data))
	assert.Equal(t, 3*time.Second, ev.Retry)

	_, err = stream.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDialRejectsBadResponse(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()
		_, err := NewDialer(srv.URL, nil, nil).Dial(context.Background())
		assert.True(t, errors.Is(err, exception.ErrServerPushStatus), "got %v", err)
	})

	t.Run("content type", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, "{}")
		}))
		defer srv.Close()
		_, err := NewDialer(srv.URL, nil, nil).Dial(context.Background())
		assert.True(t, errors.Is(err, exception.ErrServerPushContentType), "got %v", err)
	})
}
