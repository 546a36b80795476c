package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aspect-build/cairos/internal/apperr"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	code      *DeviceCode
	codeErr   error
	polls     []PollResult
	pollErr   error
	pollCount int
	onPoll    func()
	// block makes Poll wait for its context to end.
	block bool
}

func (p *scriptedProvider) RequestCode(ctx context.Context) (*DeviceCode, error) {
	if p.codeErr != nil {
		return nil, p.codeErr
	}
	return p.code, nil
}

func (p *scriptedProvider) Poll(ctx context.Context, deviceCode string) (*PollResult, error) {
	p.pollCount++
	if p.onPoll != nil {
		p.onPoll()
	}
	if p.block {
		<-ctx.Done()
		return nil, apperr.Unavailable(ctx.Err(), "poll device token")
	}
	if p.pollErr != nil {
		return nil, p.pollErr
	}
	if len(p.polls) == 0 {
		return &PollResult{Status: PollPending}, nil
	}
	r := p.polls[0]
	p.polls = p.polls[1:]
	return &r, nil
}

type recordingBackend struct {
	calls []string
	token string
	err   error
}

func (b *recordingBackend) Login(ctx context.Context, accessToken string) (string, error) {
	b.calls = append(b.calls, accessToken)
	return b.token, b.err
}

type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return nil
}

type flowHarness struct {
	flow      *DeviceFlow
	provider  *scriptedProvider
	backend   *recordingBackend
	clock     *fakeClock
	persisted []string
	prompted  *DeviceCode
}

func newFlowHarness(expiresIn, interval time.Duration, polls ...PollResult) *flowHarness {
	h := &flowHarness{
		provider: &scriptedProvider{
			code:  &DeviceCode{DeviceCode: "dev", UserCode: "ABCD-1234", VerificationURI: "https://github.com/login/device", ExpiresIn: expiresIn, Interval: interval},
			polls: polls,
		},
		backend: &recordingBackend{token: "cairos-token"},
		clock:   &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	h.flow = &DeviceFlow{
		Provider: h.provider,
		Backend:  h.backend,
		Persist: func(token string) error {
			h.persisted = append(h.persisted, token)
			return nil
		},
		Prompt: func(code *DeviceCode) { h.prompted = code },
		Now:    h.clock.Now,
		Sleep:  h.clock.Sleep,
	}
	return h
}

func TestDeviceFlowAuthorized(t *testing.T) {
	h := newFlowHarness(15*time.Minute, 5*time.Second,
		PollResult{Status: PollPending},
		PollResult{Status: PollPending},
		PollResult{Status: PollAuthorized, AccessToken: "gho_x"},
	)

	state, err := h.flow.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, DeviceAuthorized, state)
	require.NotNil(t, h.prompted)
	require.Equal(t, "ABCD-1234", h.prompted.UserCode)
	require.Equal(t, []string{"gho_x"}, h.backend.calls)
	require.Equal(t, []string{"cairos-token"}, h.persisted)
	require.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, h.clock.sleeps)
}

func TestDeviceFlowSlowDownGrowsInterval(t *testing.T) {
	h := newFlowHarness(15*time.Minute, 5*time.Second,
		PollResult{Status: PollSlowDown},
		PollResult{Status: PollSlowDown, Interval: 30 * time.Second},
		PollResult{Status: PollAuthorized, AccessToken: "gho_x"},
	)

	state, err := h.flow.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, DeviceAuthorized, state)
	require.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 30 * time.Second}, h.clock.sleeps)
}

func TestDeviceFlowExpiresWithoutLogin(t *testing.T) {
	h := newFlowHarness(time.Minute, 5*time.Second)

	state, err := h.flow.Run(context.Background())
	require.ErrorIs(t, err, apperr.ErrExpired)
	require.Equal(t, DeviceExpired, state)
	require.Empty(t, h.backend.calls)
	require.Empty(t, h.persisted)
	// Polling stops at the deadline: at most ExpiresIn/Interval polls.
	require.LessOrEqual(t, h.provider.pollCount, 12)
}

func TestDeviceFlowLateAuthorizationIsExpired(t *testing.T) {
	h := newFlowHarness(10*time.Second, 5*time.Second, PollResult{Status: PollAuthorized, AccessToken: "gho_x"})
	// The poll starts before the deadline and answers after it.
	h.provider.onPoll = func() { h.clock.t = h.clock.t.Add(8 * time.Second) }

	state, err := h.flow.Run(context.Background())
	require.ErrorIs(t, err, apperr.ErrExpired)
	require.Equal(t, DeviceExpired, state)
	require.Empty(t, h.backend.calls)
	require.Empty(t, h.persisted)
}

func TestDeviceFlowSlowPollIsCutAtDeadline(t *testing.T) {
	// 50ms of the code's lifetime remain when the poll starts.
	h := newFlowHarness(10*time.Second, 9950*time.Millisecond)
	h.provider.block = true

	start := time.Now()
	state, err := h.flow.Run(context.Background())
	require.ErrorIs(t, err, apperr.ErrExpired)
	require.NotErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	require.Equal(t, DeviceExpired, state)
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, 1, h.provider.pollCount)
	require.Empty(t, h.persisted)
}

func TestDeviceFlowProviderExpired(t *testing.T) {
	h := newFlowHarness(15*time.Minute, 5*time.Second, PollResult{Status: PollExpired})

	state, err := h.flow.Run(context.Background())
	require.ErrorIs(t, err, apperr.ErrExpired)
	require.Equal(t, DeviceExpired, state)
	require.Empty(t, h.persisted)
}

func TestDeviceFlowDenied(t *testing.T) {
	h := newFlowHarness(15*time.Minute, 5*time.Second, PollResult{Status: PollDenied, Reason: "access_denied"})

	state, err := h.flow.Run(context.Background())
	require.ErrorIs(t, err, apperr.ErrDenied)
	require.Equal(t, DeviceDenied, state)
	require.Empty(t, h.backend.calls)
	require.Empty(t, h.persisted)
}

func TestDeviceFlowAbortedWhilePolling(t *testing.T) {
	h := newFlowHarness(15*time.Minute, 5*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.provider.onPoll = func() {
		if h.provider.pollCount == 2 {
			cancel()
		}
	}

	state, err := h.flow.Run(ctx)
	require.ErrorIs(t, err, apperr.ErrAborted)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, DeviceAborted, state)
	require.Equal(t, 2, h.provider.pollCount)
	require.Empty(t, h.persisted)
}

func TestDeviceFlowAbortedBeforeStart(t *testing.T) {
	h := newFlowHarness(15*time.Minute, 5*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state, err := h.flow.Run(ctx)
	require.ErrorIs(t, err, apperr.ErrAborted)
	require.Equal(t, DeviceAborted, state)
	require.Nil(t, h.prompted)
}

func TestDeviceFlowBackendFailureIsNotPersisted(t *testing.T) {
	h := newFlowHarness(15*time.Minute, 5*time.Second, PollResult{Status: PollAuthorized, AccessToken: "gho_x"})
	h.backend.err = apperr.New(apperr.ErrNoPrimaryEmail, "no primary email")

	state, err := h.flow.Run(context.Background())
	require.ErrorIs(t, err, apperr.ErrNoPrimaryEmail)
	require.Equal(t, DeviceAuthorized, state)
	require.Empty(t, h.persisted)
}

func TestDeviceFlowPersistFailure(t *testing.T) {
	h := newFlowHarness(15*time.Minute, 5*time.Second, PollResult{Status: PollAuthorized, AccessToken: "gho_x"})
	h.flow.Persist = func(string) error { return errors.New("disk full") }

	_, err := h.flow.Run(context.Background())
	require.EqualError(t, err, "disk full")
}

func TestDeviceFlowRequestCodeError(t *testing.T) {
	h := newFlowHarness(15*time.Minute, 5*time.Second)
	h.provider.codeErr = apperr.Unavailable(errors.New("dial"), "request device code")

	state, err := h.flow.Run(context.Background())
	require.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	require.Equal(t, DeviceRequested, state)
	require.Nil(t, h.prompted)
}

func TestDeviceStateString(t *testing.T) {
	require.Equal(t, "authorized", DeviceAuthorized.String())
	require.Equal(t, "aborted", DeviceAborted.String())
	require.Equal(t, "unknown", DeviceState(42).String())
}
