// Package apperr defines the error taxonomy shared by the auth services and the HTTP boundary.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure. Kinds are stable; HTTP status and wire code derive from them.
type Kind string

const (
	KindInvalidInput       Kind = "INVALID_INPUT"
	KindNotFound           Kind = "NOT_FOUND"
	KindAlreadyExists      Kind = "ALREADY_EXISTS"
	KindRateLimited        Kind = "RATE_LIMITED"
	KindOverLimit          Kind = "OVER_LIMIT"
	KindExpired            Kind = "EXPIRED"
	KindInvalidToken       Kind = "INVALID_TOKEN"
	KindInvalidCode        Kind = "INVALID_CODE"
	KindInvalidCredentials Kind = "INVALID_CREDENTIALS"
	KindAttack             Kind = "ATTACK"
	KindBlocked            Kind = "BLOCKED"
	KindAccountFrozen      Kind = "ACCOUNT_FROZEN"
	KindUnauthenticated    Kind = "UNAUTHENTICATED"
	KindMaintenance        Kind = "MAINTENANCE"
	KindInternal           Kind = "INTERNAL"
)

// Error is a classified failure with a client-facing message
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidInput       = New(KindInvalidInput, "invalid input")
	ErrNotFound           = New(KindNotFound, "not found")
	ErrAlreadyExists      = New(KindAlreadyExists, "already exists")
	ErrRateLimited        = New(KindRateLimited, "rate limited")
	ErrOverLimit          = New(KindOverLimit, "over limit")
	ErrExpired            = New(KindExpired, "expired")
	ErrInvalidToken       = New(KindInvalidToken, "invalid token")
	ErrInvalidCode        = New(KindInvalidCode, "invalid code")
	ErrInvalidCredentials = New(KindInvalidCredentials, "invalid credentials")
	ErrAttack             = New(KindAttack, "attack")
	ErrBlocked            = New(KindBlocked, "blocked")
	ErrAccountFrozen      = New(KindAccountFrozen, "account frozen")
	ErrUnauthenticated    = New(KindUnauthenticated, "unauthenticated")
	ErrMaintenance        = New(KindMaintenance, "maintenance")
)

// KindOf returns the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a kind to the status code answered at the HTTP boundary.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidInput, KindNotFound, KindExpired, KindInvalidToken, KindInvalidCode,
		KindInvalidCredentials, KindAttack, KindBlocked, KindAccountFrozen:
		return http.StatusBadRequest
	case KindAlreadyExists:
		return http.StatusConflict
	case KindRateLimited, KindOverLimit:
		return http.StatusMethodNotAllowed
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindMaintenance:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code is the stable machine-readable code sent to clients.
func (k Kind) Code() string {
	switch k {
	case KindInvalidInput:
		return "Error_Invalid"
	case KindNotFound:
		return "Error_NotFound"
	case KindAlreadyExists:
		return "Error_UserAlreadyExist"
	case KindRateLimited:
		return "Error_RateLimited"
	case KindOverLimit:
		return "Error_OverLimit"
	case KindExpired:
		return "Error_Expired"
	case KindInvalidToken:
		return "Error_InvalidToken"
	case KindInvalidCode:
		return "Error_InvalidOtp"
	case KindInvalidCredentials:
		return "Error_InvalidCredentials"
	case KindAttack:
		return "Error_Attack"
	case KindBlocked:
		return "Error_Blocked"
	case KindAccountFrozen:
		return "Error_AccountFreeze"
	case KindUnauthenticated:
		return "Error_Unauthenticated"
	case KindMaintenance:
		return "Error_Maintenance"
	default:
		return "Error_Internal"
	}
}
