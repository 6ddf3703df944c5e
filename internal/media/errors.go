package media

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures by the action they require of the user.
type ErrorKind string

const (
	InvalidInput       ErrorKind = "InvalidInput"
	BackendUnreachable ErrorKind = "BackendUnreachable"
	ContentUnavailable ErrorKind = "ContentUnavailable"
	QuotaExceeded      ErrorKind = "QuotaExceeded"
	ProxyUnreachable   ErrorKind = "ProxyUnreachable"
)

// User-facing messages for each kind.
const (
	MsgBackendUnreachable = "OFFGRID_ENGINE_OFFLINE: the extraction engine is not reachable. Start the engine service and try again."
	MsgContentUnavailable = "Content unavailable: the post may be private, deleted or expired."
	MsgNoMediaFound       = "No media found for this post."
	MsgQuotaExceeded      = "Monthly limit exceeded. Wait for the quota to reset before trying again."
	MsgProxyUnreachable   = "Source unreachable: the media host refused or failed the request."
)

// Error is a classified pipeline failure. Message is safe to show to users;
// Err keeps the underlying cause for logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified error.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
