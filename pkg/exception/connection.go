package exception

import "github.com/yanun0323/errors"

// Connection manager errors
var (
	ErrUnsupportedTransport = errors.New("feed: unsupported transport kind")
	ErrEmptyConnectionKey   = errors.New("feed: empty connection key")
	ErrEmptyURL             = errors.New("feed: empty url")
	ErrConnectionClose      = errors.New("feed: connection closed")
)
