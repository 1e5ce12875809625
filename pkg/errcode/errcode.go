package errcode

import (
	"errors"
	"fmt"
)

// Error represents a business error
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("errcode: %d, msg: %s", e.Code, e.Msg)
}

// Is reports whether target carries the same code, so wrapped copies still
// match their sentinel with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new error with code and message
func New(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap wraps an error with additional context
func (e *Error) Wrap(err error) *Error {
	if err == nil {
		return e
	}
	return &Error{
		Code: e.Code,
		Msg:  fmt.Sprintf("%s: %v", e.Msg, err),
	}
}

// WithMsg returns a copy of e carrying a more specific message
func (e *Error) WithMsg(msg string) *Error {
	return &Error{Code: e.Code, Msg: msg}
}

// CodeOf returns the code of err, or ErrInternalServer's code for foreign errors
func CodeOf(err error) int {
	if err == nil {
		return ErrSuccess.Code
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternalServer.Code
}

// Common error codes
var (
	// Success
	ErrSuccess = New(0, "success")

	// Common errors (1xxx)
	ErrInvalidParam    = New(1001, "invalid parameter")
	ErrInternalServer  = New(1002, "internal server error")
	ErrUnauthorized    = New(1003, "unauthorized")
	ErrForbidden       = New(1004, "forbidden")
	ErrNotFound        = New(1005, "not found")
	ErrTooManyRequests = New(1006, "too many requests")
	ErrNoPermission    = New(1007, "no permission to access this resource")

	// Auth errors (2xxx)
	ErrAuth          = New(2000, "authentication failed")
	ErrTokenInvalid  = New(2001, "token invalid")
	ErrTokenExpired  = New(2002, "token expired")
	ErrTokenMissing  = New(2003, "token missing")
	ErrTokenMismatch = New(2004, "token user mismatch")
	ErrTokenRevoked  = New(2005, "token revoked")
	ErrNotAuthed     = New(2006, "connection not authenticated")

	// Message errors (4xxx)
	ErrMessageNotFound  = New(4001, "message not found")
	ErrMessageDuplicate = New(4002, "duplicate message")
	ErrConvNotFound     = New(4003, "conversation not found")
	ErrSeqAllocFailed   = New(4004, "seq allocation failed")
	ErrSendFailed       = New(4005, "message send failed")
	ErrAckTimeout       = New(4006, "acknowledgment timed out")
	ErrNotMessageOwner  = New(4007, "not message owner")
	ErrEmptyMessage     = New(4008, "message has no content")

	// WebSocket errors (5xxx)
	ErrConnOverLimit   = New(5001, "connection over max limit")
	ErrConnClosed      = New(5002, "connection closed")
	ErrInvalidProtocol = New(5003, "invalid protocol")
	ErrPushFailed      = New(5004, "push message failed")
	ErrDisconnected    = New(5005, "disconnected before acknowledgment")

	// Call signaling errors (6xxx)
	ErrSignaling          = New(6000, "call signaling rejected")
	ErrCallNotFound       = New(6001, "call not found")
	ErrParticipantOffline = New(6002, "unreachable")
	ErrCallPermission     = New(6003, "no calling permission")
	ErrCallCapacity       = New(6004, "call capacity exceeded")
	ErrCallBusy           = New(6005, "busy")
	ErrNotCallParticipant = New(6006, "not a call participant")
	ErrStaleTransition    = New(6007, "call already ended")
	ErrIllegalTransition  = New(6008, "illegal call transition")

	// Integration config errors (7xxx)
	ErrConfigFetch       = New(7001, "integration config unavailable")
	ErrConfigNotEnabled  = New(7002, "video integration not configured or disabled")
	ErrNoActiveCall      = New(7003, "no active call")
	ErrMeetingNotFound   = New(7004, "meeting not found")
	ErrMeetingNotPending = New(7005, "meeting is not scheduled")
	ErrCallActive        = New(7006, "a call is already active")
)
