package exception

import "github.com/yanun0323/errors"

// Tape errors
var (
	ErrTapeInvalidMagic      = errors.New("tape: invalid magic")
	ErrTapeUnsupportedVer    = errors.New("tape: unsupported record version")
	ErrTapeInvalidHeaderSize = errors.New("tape: invalid header size")
	ErrTapeChecksumMismatch  = errors.New("tape: checksum mismatch")
	ErrTapeQueueFull         = errors.New("tape: queue full")
	ErrTapeClosed            = errors.New("tape: writer closed")
	ErrTapeNotStarted        = errors.New("tape: writer not started")
	ErrTapeAlreadyStarted    = errors.New("tape: writer already started")
	ErrTapePayloadTooLarge   = errors.New("tape: payload too large")
)
