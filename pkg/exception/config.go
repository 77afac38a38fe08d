package exception

import "github.com/yanun0323/errors"

// Config errors
var (
	ErrConfigFormat  = errors.New("config: unsupported file format")
	ErrConfigInvalid = errors.New("config: invalid value")
)
