package client

import (
	"context"
	"testing"
	"time"

	"github.com/aspect-build/cairos/internal/apperr"
	"github.com/aspect-build/cairos/internal/githubtest"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestDevice(gh *githubtest.Server) *GitHubDevice {
	return NewGitHubDevice("test-client", oauth2.Endpoint{
		DeviceAuthURL: gh.DeviceAuthURL(),
		TokenURL:      gh.TokenURL(),
	}, nil)
}

func TestGitHubDeviceRequestCode(t *testing.T) {
	gh := githubtest.NewServer()
	defer gh.Close()
	gh.SetDevice(githubtest.Device{DeviceCode: "dev-1", UserCode: "ABCD-1234", ExpiresIn: 900, Interval: 5})

	code, err := newTestDevice(gh).RequestCode(context.Background())
	require.NoError(t, err)
	require.Equal(t, "dev-1", code.DeviceCode)
	require.Equal(t, "ABCD-1234", code.UserCode)
	require.Equal(t, gh.URL+"/login/device", code.VerificationURI)
	require.Equal(t, 5*time.Second, code.Interval)
	require.InDelta(t, (15 * time.Minute).Seconds(), code.ExpiresIn.Seconds(), 5)
}

func TestGitHubDeviceRequestCodeDisabled(t *testing.T) {
	gh := githubtest.NewServer()
	defer gh.Close()

	_, err := newTestDevice(gh).RequestCode(context.Background())
	require.ErrorIs(t, err, apperr.ErrUpstreamProtocol)
}

func TestGitHubDeviceRequestCodeUnavailable(t *testing.T) {
	gh := githubtest.NewServer()
	d := newTestDevice(gh)
	gh.Close()

	_, err := d.RequestCode(context.Background())
	require.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
}

func TestGitHubDevicePollOutcomes(t *testing.T) {
	gh := githubtest.NewServer()
	defer gh.Close()
	gh.SetDevice(githubtest.Device{
		DeviceCode: "dev-1",
		UserCode:   "ABCD-1234",
		ExpiresIn:  900,
		Interval:   5,
		Polls:      []string{githubtest.PollPending, githubtest.PollSlowDown, githubtest.PollExpired, githubtest.PollDenied, "gho_token"},
	})
	d := newTestDevice(gh)
	ctx := context.Background()

	res, err := d.Poll(ctx, "dev-1")
	require.NoError(t, err)
	require.Equal(t, PollPending, res.Status)

	res, err = d.Poll(ctx, "dev-1")
	require.NoError(t, err)
	require.Equal(t, PollSlowDown, res.Status)
	require.Equal(t, 10*time.Second, res.Interval)

	res, err = d.Poll(ctx, "dev-1")
	require.NoError(t, err)
	require.Equal(t, PollExpired, res.Status)

	res, err = d.Poll(ctx, "dev-1")
	require.NoError(t, err)
	require.Equal(t, PollDenied, res.Status)
	require.Equal(t, githubtest.PollDenied, res.Reason)

	res, err = d.Poll(ctx, "dev-1")
	require.NoError(t, err)
	require.Equal(t, PollAuthorized, res.Status)
	require.Equal(t, "gho_token", res.AccessToken)

	require.Equal(t, 5, gh.Polls())
}

func TestGitHubDevicePollUnknownCodeIsDenied(t *testing.T) {
	gh := githubtest.NewServer()
	defer gh.Close()
	gh.SetDevice(githubtest.Device{DeviceCode: "dev-1", UserCode: "X", ExpiresIn: 900, Interval: 5})

	res, err := newTestDevice(gh).Poll(context.Background(), "other")
	require.NoError(t, err)
	require.Equal(t, PollDenied, res.Status)
	require.Equal(t, "incorrect_device_code", res.Reason)
}
