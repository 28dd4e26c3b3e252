package core

import "fmt"

// Error codes for domain errors. They are grouped by the failure class the
// client sees; every one is reported as an error frame and the session stays
// open unless noted otherwise.
const (
	// Authentication failures.
	ErrCodeAuthFailed      = "auth_failed"
	ErrCodeUserExists      = "user_exists"
	ErrCodeInvalidUsername = "invalid_username"
	ErrCodeInvalidPassword = "invalid_password"
	ErrCodeAlreadyOnline   = "already_online"

	// Missing rooms or users.
	ErrCodeNotFound     = "not_found"
	ErrCodeUserNotFound = "user_not_found"
	ErrCodeNotInRoom    = "not_in_room"

	// Non-creator attempting an administrative action.
	ErrCodePermissionDenied = "permission_denied"

	// Protocol misuse.
	ErrCodeBadRequest       = "bad_request"
	ErrCodeRoomExists       = "room_exists"
	ErrCodeAlreadyJoined    = "already_joined"
	ErrCodeUnknownType      = "unknown_type"
	ErrCodeNotAuthenticated = "not_authenticated" // closes the connection
	ErrCodeInvalidFrame     = "invalid_frame"
	ErrCodeRateLimited      = "rate_limited"

	// Server-side failure unrelated to the request's validity.
	ErrCodeInternal = "internal"
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// NewError builds a CoreError with a formatted message.
func NewError(code, format string, args ...any) *CoreError {
	return &CoreError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
