package handler

import (
	"context"
	"fmt"
	"html"
	"net/http"

	"github.com/aspect-build/cairos/internal/logx"
	"github.com/aspect-build/cairos/internal/server/auth"
	"github.com/aspect-build/cairos/internal/server/db"
	"github.com/gin-gonic/gin"
)

// UserReader loads users by ID.
type UserReader interface {
	GetUser(ctx context.Context, id int64) (*db.User, error)
}

const anonymousPage = `<!doctype html>
<html><body>
<h1>cairos</h1>
<p><a href="/auth/github">Log in with GitHub</a></p>
</body></html>`

// HandleIndex handles GET /. It greets a logged-in browser session and offers
// the login link otherwise.
func HandleIndex(users UserReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.UserIDFromContext(c.Request.Context())
		if !ok {
			c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(anonymousPage))
			return
		}

		u, err := users.GetUser(c.Request.Context(), userID)
		if err != nil {
			logx.Errorf("index: %v", err)
			c.String(http.StatusInternalServerError, "internal error")
			return
		}
		if u == nil {
			c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(anonymousPage))
			return
		}

		page := fmt.Sprintf(`<!doctype html>
<html><body>
<h1>cairos</h1>
<p>Welcome, %s.</p>
<p><a href="/auth/logout">Log out</a></p>
</body></html>`, html.EscapeString(u.Username))
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
	}
}

// HandleHeartbeat handles GET /heartbeat for browser sessions.
func HandleHeartbeat() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	}
}
