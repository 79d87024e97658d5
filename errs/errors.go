// errs/errors.go
package errs

import (
	"errors"
	"net/http"
)

// Code 是返回给客户端的稳定错误码
type Code string

const (
	CodeAuthenticationRequired Code = "authentication_required"
	CodeAuthenticationInvalid  Code = "authentication_invalid"
	CodeAuthorizationDenied    Code = "authorization_denied"
	CodeRoomNotFound           Code = "room_not_found"
	CodeInvalidState           Code = "invalid_state"
	CodeValidationFailed       Code = "validation_failed"
	CodeDuplicateClaim         Code = "duplicate_claim"
	CodePoolExhausted          Code = "pool_exhausted"
	CodeInternal               Code = "internal"
)

// Error carries a stable code next to a human readable message.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

var (
	ErrAuthenticationRequired = New(CodeAuthenticationRequired, "authentication is required")
	ErrAuthenticationInvalid  = New(CodeAuthenticationInvalid, "invalid token")

	ErrNotHost          = New(CodeAuthorizationDenied, "only the host can do this")
	ErrNotInRoom        = New(CodeAuthorizationDenied, "player is not in the room")
	ErrNameMismatch     = New(CodeAuthorizationDenied, "display name does not match credential")
	ErrSeatNotResumable = New(CodeAuthorizationDenied, "seat cannot be resumed")

	ErrRoomNotFound = New(CodeRoomNotFound, "room not found")

	ErrGameNotWaiting   = New(CodeInvalidState, "game is not waiting")
	ErrGameNotPlaying   = New(CodeInvalidState, "game is not being played")
	ErrGameFinished     = New(CodeInvalidState, "game already finished")
	ErrGameInProgress   = New(CodeInvalidState, "game in progress")
	ErrRoomLimitReached = New(CodeInvalidState, "room limit reached")

	ErrInvalidRoomID       = New(CodeValidationFailed, "room id is required")
	ErrInvalidName         = New(CodeValidationFailed, "display name must be 1 to 32 characters")
	ErrInvalidPayload      = New(CodeValidationFailed, "malformed payload")
	ErrUnknownNumber       = New(CodeValidationFailed, "number is not in the pool")
	ErrCategoryMismatch    = New(CodeValidationFailed, "category does not match the pool")
	ErrNumberAlreadyCalled = New(CodeValidationFailed, "number already called")
	ErrAlreadyJoined       = New(CodeValidationFailed, "connection already joined a room")
	ErrRoomFull            = New(CodeValidationFailed, "room is full")
	ErrInvalidPattern      = New(CodeValidationFailed, "pattern is required")
	ErrUnknownEvent        = New(CodeValidationFailed, "unknown event")

	ErrDuplicateClaim = New(CodeDuplicateClaim, "player already claimed a win")

	ErrPoolExhausted = New(CodePoolExhausted, "every number has been called")

	ErrInternal = New(CodeInternal, "internal error")
)

// CodeOf 返回错误对应的错误码，未知错误统一为 internal
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Public converts any error to the shape sent over the wire. Internal
// details never leave the process.
func Public(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal
}

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeAuthenticationRequired, CodeAuthenticationInvalid:
		return http.StatusUnauthorized
	case CodeAuthorizationDenied:
		return http.StatusForbidden
	case CodeRoomNotFound:
		return http.StatusNotFound
	case CodeInvalidState, CodeDuplicateClaim, CodePoolExhausted:
		return http.StatusConflict
	case CodeValidationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
