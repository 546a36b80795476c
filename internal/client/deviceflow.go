package client

import (
	"context"
	"time"

	"github.com/aspect-build/cairos/internal/apperr"
	"github.com/aspect-build/cairos/internal/logx"
)

// DeviceState is a state of the device authorization flow.
type DeviceState int

const (
	DeviceRequested DeviceState = iota
	DevicePolling
	DeviceAuthorized
	DeviceExpired
	DeviceDenied
	DeviceAborted
)

func (s DeviceState) String() string {
	switch s {
	case DeviceRequested:
		return "requested"
	case DevicePolling:
		return "polling"
	case DeviceAuthorized:
		return "authorized"
	case DeviceExpired:
		return "expired"
	case DeviceDenied:
		return "denied"
	case DeviceAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// slowDownStep is added to the poll interval on every slow_down answer.
const slowDownStep = 5 * time.Second

// TokenExchanger turns a provider access token into a cairos token.
type TokenExchanger interface {
	Login(ctx context.Context, accessToken string) (string, error)
}

// DeviceFlow runs the OAuth2 device authorization grant from the terminal.
// Now and Sleep default to the wall clock.
type DeviceFlow struct {
	Provider DeviceProvider
	Backend  TokenExchanger
	// Persist stores the cairos token. It is the last step of a successful run.
	Persist func(token string) error
	// Prompt shows the user code and verification URI.
	Prompt func(code *DeviceCode)

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func aborted(err error) (DeviceState, error) {
	return DeviceAborted, apperr.Wrap(apperr.ErrAborted, err, "device login aborted")
}

func expired() (DeviceState, error) {
	return DeviceExpired, apperr.New(apperr.ErrExpired, "device code expired before authorization")
}

// Run drives the flow to a terminal state. Nothing is persisted and the
// backend is never called unless the provider reports authorization before
// the device code expires. Each poll is bounded by the time left on the code.
func (f *DeviceFlow) Run(ctx context.Context) (DeviceState, error) {
	now := f.Now
	if now == nil {
		now = time.Now
	}
	sleep := f.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	if err := ctx.Err(); err != nil {
		return aborted(err)
	}

	code, err := f.Provider.RequestCode(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return aborted(ctx.Err())
		}
		return DeviceRequested, err
	}
	if f.Prompt != nil {
		f.Prompt(code)
	}

	deadline := now().Add(code.ExpiresIn)
	interval := code.Interval
	if interval <= 0 {
		interval = defaultDeviceInterval
	}

	for {
		if !now().Before(deadline) {
			return expired()
		}
		if err := sleep(ctx, interval); err != nil {
			return aborted(err)
		}
		if !now().Before(deadline) {
			return expired()
		}

		pollCtx, cancel := context.WithTimeout(ctx, deadline.Sub(now()))
		res, err := f.Provider.Poll(pollCtx, code.DeviceCode)
		pollTimedOut := pollCtx.Err() != nil
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return aborted(ctx.Err())
			}
			if pollTimedOut || !now().Before(deadline) {
				return expired()
			}
			return DevicePolling, err
		}
		// An answer that arrives after the deadline is not acted on.
		if !now().Before(deadline) {
			return expired()
		}

		switch res.Status {
		case PollPending:
			logx.Debugf("device flow: authorization pending")
		case PollSlowDown:
			interval += slowDownStep
			if res.Interval > interval {
				interval = res.Interval
			}
			logx.Debugf("device flow: slow_down, interval now %s", interval)
		case PollExpired:
			return DeviceExpired, apperr.New(apperr.ErrExpired, "device code expired")
		case PollDenied:
			return DeviceDenied, apperr.New(apperr.ErrDenied, "authorization denied: %s", res.Reason)
		case PollAuthorized:
			return f.complete(ctx, res.AccessToken)
		}
	}
}

func (f *DeviceFlow) complete(ctx context.Context, accessToken string) (DeviceState, error) {
	token, err := f.Backend.Login(ctx, accessToken)
	if err != nil {
		if ctx.Err() != nil {
			return aborted(ctx.Err())
		}
		return DeviceAuthorized, err
	}
	if err := ctx.Err(); err != nil {
		return aborted(err)
	}
	if err := f.Persist(token); err != nil {
		return DeviceAuthorized, err
	}
	return DeviceAuthorized, nil
}
