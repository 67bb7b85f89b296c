package errors

import (
	"errors"
	"net/http"
)

// Domain errors
var (
	ErrNotFound        = errors.New("resource not found")
	ErrAlreadyExists   = errors.New("resource already exists")
	ErrInvalidInput    = errors.New("invalid input")
	ErrBadRequest      = errors.New("bad request")
	ErrAttachmentShape = errors.New("invalid attachment")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("invalid state transition")
	ErrRaceLost        = errors.New("concurrent update won")
	ErrRateLimited     = errors.New("rate limited")
	ErrUpstream        = errors.New("upstream provider unavailable")
	ErrTokenInvalid    = errors.New("token invalid or already used")
	ErrSignature       = errors.New("invalid webhook signature")
)

// Machine-readable error codes
const (
	CodeBadRequest      = "BAD_REQUEST"
	CodeInvalidInput    = "INVALID_INPUT"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeUnprocessable   = "UNPROCESSABLE_ENTITY"
	CodeRateLimited     = "RATE_LIMITED"
	CodeUpstream        = "UPSTREAM_UNAVAILABLE"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeTokenInvalid    = "TOKEN_INVALID"
	CodeSignatureFailed = "SIGNATURE_VERIFICATION_FAILED"
)

// AppError represents application error with HTTP status
type AppError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new app error
func NewAppError(status int, code, message string, err error) *AppError {
	return &AppError{
		Status:  status,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func NotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, CodeNotFound, message, ErrNotFound)
}

func BadRequest(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeInvalidInput, message, ErrInvalidInput)
}

func Unauthorized(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeUnauthorized, message, ErrUnauthorized)
}

func Forbidden(message string) *AppError {
	return NewAppError(http.StatusForbidden, CodeForbidden, message, ErrForbidden)
}

// Conflict is a failed state-machine precondition, a duplicate row or a lost
// race on a locked row. Clients see 400 with the reason.
func Conflict(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeConflict, message, ErrConflict)
}

func AttachmentShape(message string) *AppError {
	return NewAppError(http.StatusUnprocessableEntity, CodeUnprocessable, message, ErrAttachmentShape)
}

func RateLimited(message string) *AppError {
	return NewAppError(http.StatusTooManyRequests, CodeRateLimited, message, ErrRateLimited)
}

func TokenInvalid() *AppError {
	return NewAppError(http.StatusForbidden, CodeTokenInvalid, ErrTokenInvalid.Error(), ErrTokenInvalid)
}

func SignatureInvalid() *AppError {
	return NewAppError(http.StatusBadRequest, CodeSignatureFailed, ErrSignature.Error(), ErrSignature)
}

// Upstream wraps a provider failure on the critical path.
func Upstream(message string, err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeUpstream, message, errors.Join(ErrUpstream, err))
}

func InternalError(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternalError, "internal server error", err)
}

// NewError creates a new error with a custom message wrapping an existing error
func NewError(message string, err error) error {
	return &AppError{
		Status:  http.StatusBadRequest,
		Code:    CodeBadRequest,
		Message: message,
		Err:     err,
	}
}

// FromError converts any error into an AppError, mapping bare domain
// sentinels to their kinds.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return NewAppError(http.StatusNotFound, CodeNotFound, "resource not found", err)
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrConflict), errors.Is(err, ErrRaceLost):
		return NewAppError(http.StatusBadRequest, CodeConflict, err.Error(), err)
	case errors.Is(err, ErrInvalidInput):
		return NewAppError(http.StatusBadRequest, CodeInvalidInput, err.Error(), err)
	case errors.Is(err, ErrTokenInvalid):
		return TokenInvalid()
	case errors.Is(err, ErrForbidden):
		return NewAppError(http.StatusForbidden, CodeForbidden, err.Error(), err)
	case errors.Is(err, ErrUnauthorized):
		return NewAppError(http.StatusUnauthorized, CodeUnauthorized, err.Error(), err)
	case errors.Is(err, ErrRateLimited):
		return NewAppError(http.StatusTooManyRequests, CodeRateLimited, err.Error(), err)
	case errors.Is(err, ErrAttachmentShape):
		return NewAppError(http.StatusUnprocessableEntity, CodeUnprocessable, err.Error(), err)
	case errors.Is(err, ErrSignature):
		return SignatureInvalid()
	}
	return InternalError(err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return errors.As(err, target) }
