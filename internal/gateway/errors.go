package gateway

import "errors"

// Gateway errors
var (
	ErrConnClosed       = errors.New("connection closed")
	ErrWriteChannelFull = errors.New("write channel full")
	ErrInvalidProtocol  = errors.New("invalid protocol")
	ErrAuthFailed       = errors.New("authentication failed")
	ErrAuthTimeout      = errors.New("authentication timeout")
	ErrPanic            = errors.New("panic error")
)
