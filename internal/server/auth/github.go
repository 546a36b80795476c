package auth

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
	"golang.org/x/oauth2/github"
)

const (
	defaultGitHubAPIURL = "https://api.github.com"
	maxProfileBytes     = 1 << 20
)

// DefaultScopes are requested on every authorization.
var DefaultScopes = []string{"read:user", "user:email"}

// Identity is what the broker needs from the provider to find or create a user.
type Identity struct {
	Username string
	Email    string
}

// IdentityProvider is the OAuth2 provider as seen by the broker.
type IdentityProvider interface {
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (accessToken string, err error)
	Identity(ctx context.Context, accessToken string) (*Identity, error)
}

// GitHubConfig configures a GitHubProvider. Empty URLs select github.com.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIURL       string
	HTTPClient   *http.Client
}

// GitHubProvider talks to GitHub's OAuth and REST endpoints.
type GitHubProvider struct {
	oauth  *oauth2.Config
	apiURL string
	http   *http.Client
}

func NewGitHubProvider(cfg GitHubConfig) *GitHubProvider {
	endpoint := github.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultGitHubAPIURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &GitHubProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       DefaultScopes,
		},
		apiURL: apiURL,
		http:   httpClient,
	}
}

// AuthCodeURL returns the authorization URL carrying state and the S256
// challenge derived from verifier.
func (p *GitHubProvider) AuthCodeURL(state, verifier string) string {
	return p.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Exchange trades an authorization code for a GitHub access token.
func (p *GitHubProvider) Exchange(ctx context.Context, code, verifier string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.http)
	tok, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return "", classifyOAuthError(err, "exchange code")
	}
	return tok.AccessToken, nil
}

// classifyOAuthError separates transport failures from answers GitHub gave
// but we could not use.
func classifyOAuthError(err error, op string) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return apperr.Protocol(err, "%s", op)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.Unavailable(err, "%s", op)
	}
	return apperr.Protocol(err, "%s", op)
}

type githubUser struct {
	Login string `json:"login"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Identity fetches the login and email behind accessToken. Users with a
// private profile email are resolved through /user/emails.
func (p *GitHubProvider) Identity(ctx context.Context, accessToken string) (*Identity, error) {
	var user githubUser
	if err := p.getJSON(ctx, accessToken, "/user", &user); err != nil {
		return nil, err
	}
	if user.Login == "" {
		return nil, apperr.Protocol(nil, "github profile has no login")
	}

	email := user.Email
	if email == "" {
		var emails []githubEmail
		if err := p.getJSON(ctx, accessToken, "/user/emails", &emails); err != nil {
			return nil, err
		}
		email = primaryEmail(emails)
	}
	if email == "" {
		return nil, apperr.New(apperr.ErrNoPrimaryEmail, "github user %s has no primary email", user.Login)
	}
	return &Identity{Username: user.Login, Email: email}, nil
}

func primaryEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Email != "" {
			return e.Email
		}
	}
	return ""
}

func (p *GitHubProvider) getJSON(ctx context.Context, accessToken, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", version.UserAgent("cairos-server"))

	resp, err := p.http.Do(req)
	if err != nil {
		return apperr.Unavailable(err, "GET %s", path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return apperr.Unavailable(err, "read %s", path)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return apperr.Unauthenticated("github rejected access token")
	case resp.StatusCode >= 500:
		return apperr.Unavailable(fmt.Errorf("status %d", resp.StatusCode), "GET %s", path)
	case resp.StatusCode != http.StatusOK:
		return apperr.Protocol(fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), "GET %s", path)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Protocol(err, "decode %s", path)
	}
	return nil
}
