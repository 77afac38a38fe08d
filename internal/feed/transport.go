package feed

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"tickcore/internal/schema"
	"tickcore/pkg/exception"
	"tickcore/pkg/sse"
	"tickcore/pkg/websocket"
)

// Frame is one unit of data read from a transport.
type Frame struct {
	Binary  bool
	Payload []byte
}

// Transport is an open connection yielding frames in arrival order.
type Transport interface {
	// Next blocks until the next frame arrives or the transport fails.
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// Opener opens a transport for a connect request.
type Opener interface {
	Open(ctx context.Context, req schema.ConnectRequest) (Transport, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, req schema.ConnectRequest) (Transport, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, req schema.ConnectRequest) (Transport, error) {
	return f(ctx, req)
}

// NetOpener dials streaming sockets and server-push streams over the network.
type NetOpener struct {
	Header http.Header
	Client *http.Client

	// DialSocket overrides the websocket dialer, mainly for tests.
	DialSocket func(url string, header http.Header) websocket.Dialer
}

// Open implements Opener.
func (o NetOpener) Open(ctx context.Context, req schema.ConnectRequest) (Transport, error) {
	if len(req.URL) == 0 {
		return nil, exception.ErrEmptyURL
	}

	switch req.Transport {
	case schema.TransportStreamingSocket:
		return o.openSocket(ctx, req)
	case schema.TransportServerPush:
		return o.openPush(ctx, req)
	default:
		return nil, errors.Wrapf(exception.ErrUnsupportedTransport, "transport %q", req.Transport)
	}
}

func (o NetOpener) openSocket(ctx context.Context, req schema.ConnectRequest) (Transport, error) {
	dial := o.DialSocket
	if dial == nil {
		dial = websocket.NewDialer
	}
	conn, err := dial(req.URL, o.Header).Dial(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "dial streaming socket")
	}

	if len(req.Tokens) != 0 {
		for _, msg := range subscribeMessages(req.Tokens) {
			payload, err := sonic.Marshal(msg)
			if err != nil {
				_ = conn.Close(websocket.CloseNormal, "subscribe_failed")
				return nil, errors.Wrap(err, "marshal subscribe message")
			}
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				_ = conn.Close(websocket.CloseNormal, "subscribe_failed")
				return nil, errors.Wrap(err, "write subscribe message")
			}
		}
	}

	return &socketTransport{conn: conn}, nil
}

func (o NetOpener) openPush(ctx context.Context, req schema.ConnectRequest) (Transport, error) {
	target, err := pushURL(req.URL, req.Tokens)
	if err != nil {
		return nil, err
	}
	stream, err := sse.NewDialer(target, o.Header, o.Client).Dial(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "dial server push")
	}
	return &pushTransport{stream: stream}, nil
}

type controlMessage struct {
	Action string `json:"a"`
	Value  any    `json:"v"`
}

func subscribeMessages(tokens []uint32) []controlMessage {
	return []controlMessage{
		{Action: "subscribe", Value: tokens},
		{Action: "mode", Value: []any{schema.ModeFull.String(), tokens}},
	}
}

func pushURL(raw string, tokens []uint32) (string, error) {
	if len(tokens) == 0 {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrapf(err, "parse url %s", raw)
	}
	parts := make([]string, 0, len(tokens))
	for _, token := range tokens {
		parts = append(parts, strconv.FormatUint(uint64(token), 10))
	}
	q := u.Query()
	q.Set("tokens", strings.Join(parts, ","))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type socketTransport struct {
	conn websocket.Conn
}

func (t *socketTransport) Next(ctx context.Context) (Frame, error) {
	for {
		msgType, payload, err := t.conn.Read(ctx)
		if err != nil {
			return Frame{}, err
		}
		switch msgType {
		case websocket.MessageBinary:
			return Frame{Binary: true, Payload: payload}, nil
		case websocket.MessageText:
			return Frame{Payload: payload}, nil
		}
	}
}

func (t *socketTransport) Close() error {
	return t.conn.Close(websocket.CloseNormal, "teardown")
}

type pushTransport struct {
	stream *sse.Stream
}

func (t *pushTransport) Next(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		ev, err := t.stream.Next()
		if err != nil {
			if err == io.EOF {
				return Frame{}, exception.ErrConnectionClose
			}
			return Frame{}, err
		}
		if len(ev.Data) == 0 {
			continue
		}
		return Frame{Payload: ev.Data}, nil
	}
}

func (t *pushTransport) Close() error {
	return t.stream.Close()
}
