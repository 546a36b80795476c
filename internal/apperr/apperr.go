// Package apperr defines the error kinds shared by the server and the CLI and
// maps them onto HTTP responses.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrInvalidState        = errors.New("invalid oauth state")
	ErrNoPrimaryEmail      = errors.New("no primary email")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamProtocol    = errors.New("upstream protocol error")
	ErrStorage             = errors.New("storage error")

	// Device flow outcomes. These never cross the HTTP boundary.
	ErrExpired = errors.New("device code expired")
	ErrDenied  = errors.New("authorization denied")
	ErrAborted = errors.New("aborted")
)

// Error carries a kind sentinel plus the underlying cause. errors.Is matches
// both the kind and anything in the cause chain.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// New returns an error of the given kind without a cause.
func New(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an error of the given kind wrapping cause.
func Wrap(kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func Unauthenticated(format string, args ...any) *Error {
	return New(ErrUnauthenticated, format, args...)
}

func InvalidState(format string, args ...any) *Error {
	return New(ErrInvalidState, format, args...)
}

func Unavailable(cause error, format string, args ...any) *Error {
	return Wrap(ErrUpstreamUnavailable, cause, format, args...)
}

func Protocol(cause error, format string, args ...any) *Error {
	return Wrap(ErrUpstreamProtocol, cause, format, args...)
}

func Storage(cause error, format string, args ...any) *Error {
	return Wrap(ErrStorage, cause, format, args...)
}

// IsTimeout reports whether err was caused by a deadline rather than a
// refused or reset connection.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// HTTPStatus maps an error onto the status code the server answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoPrimaryEmail):
		return http.StatusForbidden
	case errors.Is(err, ErrUpstreamUnavailable):
		if IsTimeout(err) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns a short message safe to put in a response body.
// Causes are never included.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "invalid token"
	case errors.Is(err, ErrInvalidState):
		return "invalid or expired oauth state"
	case errors.Is(err, ErrNoPrimaryEmail):
		return "no primary email on github account"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "github is unavailable"
	case errors.Is(err, ErrUpstreamProtocol):
		return "unexpected response from github"
	default:
		return "internal error"
	}
}
