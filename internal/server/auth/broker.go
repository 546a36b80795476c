package auth

import (
	"context"

	"github.com/aspect-build/cairos/internal/apperr"
	"github.com/aspect-build/cairos/internal/logx"
	"golang.org/x/oauth2"
)

// UserStore persists the outcome of a successful login.
type UserStore interface {
	// LoginUser upserts the user by email and stores token for it atomically.
	LoginUser(ctx context.Context, username, email, token string) (int64, error)
}

// Session is the result of a completed login.
type Session struct {
	UserID   int64
	Username string
	Email    string
	Token    string
}

// Broker drives the authorization code flow and mints bearer tokens.
type Broker struct {
	provider IdentityProvider
	ledger   Ledger
	users    UserStore
	newToken func() (string, error)
}

func NewBroker(provider IdentityProvider, ledger Ledger, users UserStore) *Broker {
	return &Broker{
		provider: provider,
		ledger:   ledger,
		users:    users,
		newToken: NewToken,
	}
}

// BeginAuthorization records a fresh state/verifier pair and returns the
// provider URL the browser should be sent to.
func (b *Broker) BeginAuthorization(ctx context.Context) (string, error) {
	state, err := newState()
	if err != nil {
		return "", err
	}
	verifier := oauth2.GenerateVerifier()
	if err := b.ledger.Put(ctx, state, verifier); err != nil {
		return "", apperr.Storage(err, "record oauth state")
	}
	return b.provider.AuthCodeURL(state, verifier), nil
}

// HandleCallback completes a login started by BeginAuthorization. The state
// is consumed before anything else, so a replayed callback always fails with
// ErrInvalidState.
func (b *Broker) HandleCallback(ctx context.Context, state, code string) (*Session, error) {
	if state == "" {
		return nil, apperr.InvalidState("missing state")
	}
	verifier, ok, err := b.ledger.Take(ctx, state)
	if err != nil {
		return nil, apperr.Storage(err, "consume oauth state")
	}
	if !ok {
		return nil, apperr.InvalidState("unknown or already used state")
	}
	if code == "" {
		return nil, apperr.InvalidState("missing code")
	}

	accessToken, err := b.provider.Exchange(ctx, code, verifier)
	if err != nil {
		return nil, err
	}
	return b.login(ctx, accessToken)
}

// LoginWithAccessToken resolves a provider access token the client obtained
// on its own, typically through the device flow.
func (b *Broker) LoginWithAccessToken(ctx context.Context, accessToken string) (*Session, error) {
	if accessToken == "" {
		return nil, apperr.Unauthenticated("missing access token")
	}
	return b.login(ctx, accessToken)
}

// login performs every upstream call before the first write.
func (b *Broker) login(ctx context.Context, accessToken string) (*Session, error) {
	ident, err := b.provider.Identity(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	token, err := b.newToken()
	if err != nil {
		return nil, err
	}
	userID, err := b.users.LoginUser(ctx, ident.Username, ident.Email, token)
	if err != nil {
		return nil, apperr.Storage(err, "store login")
	}

	logx.Infof("login user_id=%d username=%s", userID, ident.Username)
	return &Session{UserID: userID, Username: ident.Username, Email: ident.Email, Token: token}, nil
}
