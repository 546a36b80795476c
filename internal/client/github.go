package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aspect-build/cairos/internal/apperr"
	"github.com/aspect-build/cairos/internal/version"
	"golang.org/x/oauth2"
)

// DefaultGitHubClientID is the public client ID of the cairos GitHub OAuth app.
const DefaultGitHubClientID = "Ov23lifzTXvNg6MaDMm8"

const (
	deviceGrantType        = "urn:ietf:params:oauth:grant-type:device_code"
	defaultDeviceExpiresIn = 15 * time.Minute
	defaultDeviceInterval  = 5 * time.Second
)

// GitHubDeviceEndpoint is github.com's device flow endpoint.
var GitHubDeviceEndpoint = oauth2.Endpoint{
	DeviceAuthURL: "https://github.com/login/device/code",
	TokenURL:      "https://github.com/login/oauth/access_token",
}

// DeviceCode is the provider's answer to a device authorization request.
type DeviceCode struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	ExpiresIn       time.Duration
	Interval        time.Duration
}

// PollStatus is the outcome of one token poll.
type PollStatus int

const (
	PollPending PollStatus = iota
	PollSlowDown
	PollAuthorized
	PollExpired
	PollDenied
)

// PollResult carries the access token when Status is PollAuthorized and the
// provider's requested interval when it is PollSlowDown.
type PollResult struct {
	Status      PollStatus
	AccessToken string
	Interval    time.Duration
	Reason      string
}

// DeviceProvider is the OAuth2 provider as seen by the device flow.
type DeviceProvider interface {
	RequestCode(ctx context.Context) (*DeviceCode, error)
	Poll(ctx context.Context, deviceCode string) (*PollResult, error)
}

// GitHubDevice implements DeviceProvider against GitHub.
type GitHubDevice struct {
	oauth *oauth2.Config
	http  *http.Client
}

func NewGitHubDevice(clientID string, endpoint oauth2.Endpoint, h *http.Client) *GitHubDevice {
	if h == nil {
		h = httpClient()
	}
	return &GitHubDevice{
		oauth: &oauth2.Config{
			ClientID: clientID,
			Endpoint: endpoint,
			Scopes:   []string{"read:user", "user:email"},
		},
		http: h,
	}
}

func (g *GitHubDevice) RequestCode(ctx context.Context) (*DeviceCode, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.http)
	resp, err := g.oauth.DeviceAuth(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, apperr.Protocol(err, "request device code")
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return nil, apperr.Unavailable(err, "request device code")
		}
		return nil, apperr.Protocol(err, "request device code")
	}

	code := &DeviceCode{
		DeviceCode:      resp.DeviceCode,
		UserCode:        resp.UserCode,
		VerificationURI: resp.VerificationURI,
		ExpiresIn:       defaultDeviceExpiresIn,
		Interval:        time.Duration(resp.Interval) * time.Second,
	}
	if !resp.Expiry.IsZero() {
		code.ExpiresIn = time.Until(resp.Expiry)
	}
	if code.Interval <= 0 {
		code.Interval = defaultDeviceInterval
	}
	if code.DeviceCode == "" || code.UserCode == "" {
		return nil, apperr.Protocol(nil, "device code response is incomplete")
	}
	return code, nil
}

type devicePollResponse struct {
	AccessToken      string `json:"access_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Interval         int64  `json:"interval"`
}

// Poll asks the token endpoint once whether the user has authorized the
// device. GitHub answers pending and error states with HTTP 200.
func (g *GitHubDevice) Poll(ctx context.Context, deviceCode string) (*PollResult, error) {
	form := url.Values{
		"client_id":   {g.oauth.ClientID},
		"device_code": {deviceCode},
		"grant_type":  {deviceGrantType},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.oauth.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build poll request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent("cairos-cli"))

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, apperr.Unavailable(err, "poll device token")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperr.Unavailable(err, "read device token")
	}
	if resp.StatusCode >= 500 {
		return nil, apperr.Unavailable(fmt.Errorf("status %d", resp.StatusCode), "poll device token")
	}

	var pr devicePollResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, apperr.Protocol(err, "decode device token")
	}

	switch {
	case pr.AccessToken != "":
		return &PollResult{Status: PollAuthorized, AccessToken: pr.AccessToken}, nil
	case pr.Error == "authorization_pending":
		return &PollResult{Status: PollPending}, nil
	case pr.Error == "slow_down":
		return &PollResult{Status: PollSlowDown, Interval: time.Duration(pr.Interval) * time.Second}, nil
	case pr.Error == "expired_token":
		return &PollResult{Status: PollExpired, Reason: pr.ErrorDescription}, nil
	case pr.Error != "":
		return &PollResult{Status: PollDenied, Reason: pr.Error}, nil
	default:
		return nil, apperr.Protocol(fmt.Errorf("status %d", resp.StatusCode), "device token response has neither token nor error")
	}
}
