package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aspect-build/cairos/internal/apperr"
	"github.com/aspect-build/cairos/internal/logx"
	"github.com/aspect-build/cairos/internal/version"
)

func httpClient() *http.Client {
	return &http.Client{Timeout: 20 * time.Second}
}

// APIClient talks to the cairos backend.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPIClient returns a client for baseURL. token may be empty for the
// unauthenticated login call.
func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{baseURL: NormalizeBaseURL(baseURL), token: token, http: httpClient()}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *APIClient) WithHTTPClient(h *http.Client) *APIClient {
	c.http = h
	return c
}

// CaptureParams is the body of POST /events/capture.
type CaptureParams struct {
	URI        string  `json:"uri"`
	IsWrite    bool    `json:"is_write"`
	Language   *string `json:"language,omitempty"`
	LineNumber *int64  `json:"line_number,omitempty"`
	CursorPos  *int64  `json:"cursor_pos,omitempty"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// Login exchanges a GitHub access token for a cairos bearer token.
func (c *APIClient) Login(ctx context.Context, accessToken string) (string, error) {
	var resp loginResponse
	if err := c.post(ctx, "/auth/login", false, map[string]string{"access_token": accessToken}, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", apperr.Protocol(nil, "login response has no token")
	}
	return resp.Token, nil
}

// Logout disables the client's token on the server.
func (c *APIClient) Logout(ctx context.Context) error {
	var resp successResponse
	return c.post(ctx, "/auth/logout", true, nil, &resp)
}

// Capture sends one editor event.
func (c *APIClient) Capture(ctx context.Context, p CaptureParams) error {
	var resp successResponse
	if err := c.post(ctx, "/events/capture", true, p, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return apperr.Protocol(nil, "capture was not acknowledged")
	}
	return nil
}

func (c *APIClient) post(ctx context.Context, path string, authenticated bool, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent("cairos-cli"))
	if authenticated {
		if c.token == "" {
			return apperr.Unauthenticated("not logged in")
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	logx.Debugf("POST %s", path)
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return apperr.Wrap(apperr.ErrAborted, err, "POST %s", path)
		}
		return apperr.Unavailable(err, "POST %s", path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperr.Unavailable(err, "read response")
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return apperr.Unauthenticated("server rejected token")
	case resp.StatusCode == http.StatusForbidden:
		return apperr.New(apperr.ErrNoPrimaryEmail, "github account has no primary email")
	case resp.StatusCode == http.StatusBadGateway || resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusServiceUnavailable:
		return apperr.Unavailable(fmt.Errorf("status %d", resp.StatusCode), "POST %s", path)
	case resp.StatusCode != http.StatusOK:
		return apperr.Protocol(fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))), "POST %s", path)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return apperr.Protocol(err, "decode %s response", path)
	}
	return nil
}
