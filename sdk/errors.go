package sdk

import (
	"errors"
	"fmt"
)

// Error represents an API error
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %d, msg: %s", e.Code, e.Msg)
}

// Is matches errors carrying the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new error
func NewError(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// IsSuccess checks if the error code indicates success
func (e *Error) IsSuccess() bool {
	return e.Code == 0
}

// CodeOf returns the API code carried by err, or -1
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return -1
}

// Common error codes
const (
	// Success
	CodeSuccess = 0

	// Common errors (1xxx)
	CodeInvalidParam    = 1001
	CodeInternalServer  = 1002
	CodeUnauthorized    = 1003
	CodeForbidden       = 1004
	CodeNotFound        = 1005
	CodeTooManyRequests = 1006
	CodeNoPermission    = 1007

	// Auth errors (2xxx)
	CodeAuth         = 2000
	CodeTokenInvalid = 2001
	CodeTokenExpired = 2002
	CodeTokenMissing = 2003
	CodeTokenRevoked = 2005

	// Message errors (4xxx)
	CodeMessageNotFound = 4001
	CodeSendFailed      = 4005
	CodeNotMessageOwner = 4007
	CodeEmptyMessage    = 4008

	// Call and integration errors (6xxx, 7xxx)
	CodeSignaling         = 6000
	CodeConfigFetch       = 7001
	CodeConfigNotEnabled  = 7002
	CodeMeetingNotFound   = 7004
	CodeMeetingNotPending = 7005
	CodeCallActive        = 7006
)

// Predefined errors
var (
	ErrInvalidParam    = NewError(CodeInvalidParam, "invalid parameter")
	ErrInternalServer  = NewError(CodeInternalServer, "internal server error")
	ErrUnauthorized    = NewError(CodeUnauthorized, "unauthorized")
	ErrTooManyRequests = NewError(CodeTooManyRequests, "too many requests")
	ErrNoPermission    = NewError(CodeNoPermission, "no permission to access this resource")

	ErrTokenInvalid = NewError(CodeTokenInvalid, "token invalid")
	ErrTokenExpired = NewError(CodeTokenExpired, "token expired")
	ErrTokenMissing = NewError(CodeTokenMissing, "token missing")
	ErrTokenRevoked = NewError(CodeTokenRevoked, "token revoked")

	ErrMessageNotFound = NewError(CodeMessageNotFound, "message not found")
	ErrNotMessageOwner = NewError(CodeNotMessageOwner, "not message owner")
	ErrMeetingNotFound = NewError(CodeMeetingNotFound, "meeting not found")
)
