package uds

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickcore/pkg/exception"
)

func TestServeEcho(t *testing.T) {
	path := filepath.Join(t.TempDir(), "echo.sock")
	srv, err := NewServer(path)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())
	assert.True(t, errors.Is(srv.Listen(), exception.ErrListeningUDS))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, func(ctx context.Context, conn *net.UnixConn) {
			scanner := bufio.NewScanner(conn)
			for scanner.Scan() {
				if _, err := conn.Write(append(scanner.Bytes(), '\n')); err != nil {
					return
				}
			}
		})
	}()

	client, err := NewClient(path)
	require.NoError(t, err)
	conn, err := client.Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping\n"))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ping\n", line)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return")
	}
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestServeBeforeListen(t *testing.T) {
	srv, err := NewServer(filepath.Join(t.TempDir(), "x.sock"))
	require.NoError(t, err)
	err = srv.Serve(context.Background(), func(context.Context, *net.UnixConn) {})
	assert.True(t, errors.Is(err, exception.ErrNotListeningUDS))
}

func TestRemoveIfExists(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, RemoveIfExists(filepath.Join(dir, "missing.sock")))

	regular := filepath.Join(dir, "regular")
	require.NoError(t, os.WriteFile(regular, []byte("x"), 0o600))
	assert.True(t, errors.Is(RemoveIfExists(regular), exception.ErrPathNotSocketUDS))

	_, err := NewServer("")
	assert.True(t, errors.Is(err, exception.ErrEmptyPathUDS))
	_, err = NewClient("")
	assert.True(t, errors.Is(err, exception.ErrEmptyPathUDS))
}
