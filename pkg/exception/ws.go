package exception

import "github.com/yanun0323/errors"

// Transport errors
var (
	ErrWebSocketConnectionClose = errors.New("websocket: connection closed")
	ErrServerPushStatus         = errors.New("sse: unexpected response status")
	ErrServerPushContentType    = errors.New("sse: unexpected content type")
)
