package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aspect-build/cairos/internal/apperr"
	"github.com/stretchr/testify/require"
)

func TestAPIClientLogin(t *testing.T) {
	var gotBody map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/login", r.URL.Path)
		require.Empty(t, r.Header.Get("Authorization"))
		require.Contains(t, r.Header.Get("User-Agent"), "cairos-cli/")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"token":"cairos-token"}`))
	}))
	defer ts.Close()

	token, err := NewAPIClient(ts.URL+"/", "").Login(context.Background(), "gho_x")
	require.NoError(t, err)
	require.Equal(t, "cairos-token", token)
	require.Equal(t, "gho_x", gotBody["access_token"])
}

func TestAPIClientCapture(t *testing.T) {
	var got CaptureParams
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/events/capture", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer ts.Close()

	line := int64(3)
	err := NewAPIClient(ts.URL, "tok").Capture(context.Background(), CaptureParams{URI: "file:///a.go", LineNumber: &line})
	require.NoError(t, err)
	require.Equal(t, "file:///a.go", got.URI)
	require.Equal(t, int64(3), *got.LineNumber)
	require.Nil(t, got.Language)
}

func TestAPIClientErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusUnauthorized, `{"error":"invalid token"}`, apperr.ErrUnauthenticated},
		{http.StatusForbidden, `{"error":"no primary email on github account"}`, apperr.ErrNoPrimaryEmail},
		{http.StatusBadGateway, `{"error":"github is unavailable"}`, apperr.ErrUpstreamUnavailable},
		{http.StatusInternalServerError, `{"error":"internal error"}`, apperr.ErrUpstreamProtocol},
		{http.StatusOK, `not json`, apperr.ErrUpstreamProtocol},
		{http.StatusOK, `{"success":false}`, apperr.ErrUpstreamProtocol},
	}
	for _, c := range cases {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
			_, _ = w.Write([]byte(c.body))
		}))
		err := NewAPIClient(ts.URL, "tok").Capture(context.Background(), CaptureParams{URI: "file:///a"})
		ts.Close()
		require.ErrorIs(t, err, c.want, "status %d body %s", c.status, c.body)
	}
}

func TestAPIClientUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	err := NewAPIClient(url, "tok").Capture(context.Background(), CaptureParams{URI: "file:///a"})
	require.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
}

func TestAPIClientRequiresTokenForAuthenticatedCalls(t *testing.T) {
	err := NewAPIClient("http://127.0.0.1:1", "").Logout(context.Background())
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)
}
