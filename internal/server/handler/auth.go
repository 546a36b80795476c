package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/aspect-build/cairos/internal/logx"
	"github.com/aspect-build/cairos/internal/server/auth"
	"github.com/aspect-build/cairos/internal/server/metrics"
	"github.com/gin-gonic/gin"
)

// SessionCookieMaxAge is how long the browser keeps the session cookie.
const SessionCookieMaxAge = 7 * 24 * time.Hour

// CookieSettings describes the browser session cookie.
type CookieSettings struct {
	Name   string
	Secure bool
}

// Authenticator is the part of auth.Broker the handlers use.
type Authenticator interface {
	BeginAuthorization(ctx context.Context) (string, error)
	HandleCallback(ctx context.Context, state, code string) (*auth.Session, error)
	LoginWithAccessToken(ctx context.Context, accessToken string) (*auth.Session, error)
}

// TokenDisabler revokes bearer tokens.
type TokenDisabler interface {
	DisableToken(ctx context.Context, token string) (bool, error)
}

// HandleGitHubLogin handles GET /auth/github.
func HandleGitHubLogin(broker Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authURL, err := broker.BeginAuthorization(c.Request.Context())
		if err != nil {
			abortWithError(c, "begin authorization", err)
			return
		}
		c.Redirect(http.StatusFound, authURL)
	}
}

// HandleGitHubCallback handles GET /auth/github/callback. On success the
// minted token is set as an HttpOnly session cookie.
func HandleGitHubCallback(broker Authenticator, cookie CookieSettings) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := broker.HandleCallback(c.Request.Context(), c.Query("state"), c.Query("code"))
		metrics.Logins.WithLabelValues("web", metrics.Result(err)).Inc()
		if err != nil {
			abortWithError(c, "oauth callback", err)
			return
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cookie.Name, sess.Token, int(SessionCookieMaxAge.Seconds()), "/", "", cookie.Secure, true)
		c.Redirect(http.StatusSeeOther, "/")
	}
}

type loginRequest struct {
	AccessToken string `json:"access_token" binding:"required"`
}

// HandleLogin handles POST /auth/login. The CLI posts the GitHub access token
// it obtained through the device flow and receives a cairos token.
func HandleLogin(broker Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "access_token is required"})
			return
		}

		sess, err := broker.LoginWithAccessToken(c.Request.Context(), req.AccessToken)
		metrics.Logins.WithLabelValues("device", metrics.Result(err)).Inc()
		if err != nil {
			abortWithError(c, "login", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": sess.Token})
	}
}

// HandleLogout handles POST /auth/logout. It disables the bearer token the
// request was authenticated with.
func HandleLogout(tokens TokenDisabler) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.TokenFromContext(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		if _, err := tokens.DisableToken(c.Request.Context(), token); err != nil {
			logx.Errorf("logout: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		userID, _ := auth.UserIDFromContext(c.Request.Context())
		logx.Infof("logout user_id=%d", userID)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// HandleClearSession handles GET /auth/logout. It only expires the browser
// cookie; the token behind it stays valid for other clients.
func HandleClearSession(cookie CookieSettings) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cookie.Name, "", -1, "/", "", cookie.Secure, true)
		c.Redirect(http.StatusSeeOther, "/")
	}
}
