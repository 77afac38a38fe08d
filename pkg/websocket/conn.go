// Package websocket wraps gorilla/websocket behind a small context-aware
// connection used by the streaming-socket feed transport.
package websocket

import "context"

// MessageType is a data frame opcode as defined by RFC 6455.
type MessageType uint8

const (
	MessageText   MessageType = 1
	MessageBinary MessageType = 2
)

// CloseCode is sent in the close frame on teardown.
type CloseCode uint16

const CloseNormal CloseCode = 1000

// Conn is a single broker socket.
type Conn interface {
	Read(ctx context.Context) (MessageType, []byte, error)
	Write(ctx context.Context, msgType MessageType, payload []byte) error
	Close(code CloseCode, reason string) error
}

// Dialer opens a Conn.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }
