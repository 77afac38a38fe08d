package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/yanun0323/errors"

	"tickcore/pkg/exception"
)

const (
	DefaultDialerTimeout = 10 * time.Second
	DefaultWriteTimeout  = 5 * time.Second
	CloseWriteTimeout    = 100 * time.Millisecond
	DefaultReadLimit     = 1 << 20
)

type dialer struct {
	url       string
	header    http.Header
	ws        *gorilla.Dialer
	readLimit int64
}

// NewDialer returns a Dialer for a ws:// or wss:// url.
func NewDialer(url string, header http.Header) Dialer {
	return &dialer{
		url:    url,
		header: header,
		ws: &gorilla.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultDialerTimeout,
		},
		readLimit: DefaultReadLimit,
	}
}

func (d *dialer) Dial(ctx context.Context) (Conn, error) {
	conn, resp, err := d.ws.DialContext(ctx, d.url, d.header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial %s, status: %d", d.url, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "dial %s", d.url)
	}
	conn.SetReadLimit(d.readLimit)
	return Wrap(conn), nil
}

type wsConn struct {
	conn    *gorilla.Conn
	writeMu sync.Mutex
	once    sync.Once
}

// Wrap adapts a gorilla connection to Conn.
func Wrap(conn *gorilla.Conn) Conn {
	return &wsConn{conn: conn}
}

func (c *wsConn) Read(ctx context.Context) (MessageType, []byte, error) {
	if err := setDeadline(ctx, c.conn.SetReadDeadline); err != nil {
		return 0, nil, err
	}
	msgType, payload, err := c.conn.ReadMessage()
	if err != nil {
		if gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) {
			return 0, nil, exception.ErrWebSocketConnectionClose
		}
		return 0, nil, err
	}
	return MessageType(msgType), payload, nil
}

func (c *wsConn) Write(ctx context.Context, msgType MessageType, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(DefaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(int(msgType), payload)
}

// Close sends a best-effort close frame and closes the socket. It does not
// wait for an in-flight Write; closing the socket unblocks it.
func (c *wsConn) Close(code CloseCode, reason string) error {
	var err error
	c.once.Do(func() {
		_ = c.conn.WriteControl(
			gorilla.CloseMessage,
			gorilla.FormatCloseMessage(int(code), reason),
			time.Now().Add(CloseWriteTimeout),
		)
		err = c.conn.Close()
	})
	return err
}

func setDeadline(ctx context.Context, set func(time.Time) error) error {
	if ctx == nil {
		return set(time.Time{})
	}
	if deadline, ok := ctx.Deadline(); ok {
		return set(deadline)
	}
	return set(time.Time{})
}
