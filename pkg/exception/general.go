package exception

import "github.com/yanun0323/errors"

var (
	ErrNilInstance     = errors.New("nil instance")
	ErrInvalidArgument = errors.New("invalid argument")
)
