package exception

import "github.com/yanun0323/errors"

// Core command errors
var (
	ErrUnknownCommand   = errors.New("core: unknown command")
	ErrMalformedCommand = errors.New("core: malformed command")
	ErrHalted           = errors.New("core: trading halted")
	ErrQueueFull        = errors.New("core: queue full")
	ErrQueueClosed      = errors.New("core: queue closed")
	ErrCoreStopped      = errors.New("core: stopped")
	ErrCoreRunning      = errors.New("core: already running")
)
