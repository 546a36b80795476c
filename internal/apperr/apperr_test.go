package apperr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestErrorMatchesKindAndCause(t *testing.T) {
	err := Storage(io.ErrUnexpectedEOF, "insert event")

	require.ErrorIs(t, err, ErrStorage)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.NotErrorIs(t, err, ErrUpstreamProtocol)
	require.Equal(t, "insert event: unexpected EOF", err.Error())

	wrapped := fmt.Errorf("handler: %w", err)
	require.ErrorIs(t, wrapped, ErrStorage)
}

func TestErrorMessageFallsBackToKind(t *testing.T) {
	err := &Error{Kind: ErrDenied}
	require.Equal(t, "authorization denied", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Unauthenticated("bad token"), http.StatusUnauthorized},
		{InvalidState("state not found"), http.StatusBadRequest},
		{New(ErrNoPrimaryEmail, "no primary"), http.StatusForbidden},
		{Unavailable(errors.New("connection refused"), "exchange"), http.StatusBadGateway},
		{Unavailable(context.DeadlineExceeded, "exchange"), http.StatusGatewayTimeout},
		{Unavailable(timeoutErr{}, "profile"), http.StatusGatewayTimeout},
		{Protocol(errors.New("bad json"), "decode"), http.StatusInternalServerError},
		{Storage(errors.New("disk full"), "insert"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		require.Equal(t, c.want, HTTPStatus(c.err), c.err.Error())
	}
}

func TestPublicMessageHidesCause(t *testing.T) {
	err := Storage(errors.New("database is locked: /var/lib/cairos.db"), "insert")
	require.Equal(t, "internal error", PublicMessage(err))
}
