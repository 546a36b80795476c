package server

import (
	"net/http"

	"github.com/aspect-build/cairos/internal/server/db"
	"github.com/aspect-build/cairos/internal/server/handler"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Dependencies are the collaborators NewRouter wires into handlers.
type Dependencies struct {
	Store  *db.Store
	Broker handler.Authenticator
	Logger *zap.Logger
}

// NewRouter creates and configures the Gin router with all routes.
func NewRouter(cfg *Config, deps Dependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(CORS(cfg.CORSOrigins))
	}
	if cfg.RequestTimeout > 0 {
		r.Use(RequestTimeout(cfg.RequestTimeout))
	}

	r.GET("/healthz", func(c *gin.Context) {
		if err := deps.Store.Ping(); err != nil {
			c.String(http.StatusServiceUnavailable, "database unavailable")
			return
		}
		c.String(http.StatusOK, "ok")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	cookie := handler.CookieSettings{Name: cfg.CookieName, Secure: cfg.CookieSecure}
	session := SessionCookie(deps.Store, cfg.CookieName)
	bearer := BearerAuth(deps.Store)

	r.GET("/", session, handler.HandleIndex(deps.Store))
	r.GET("/heartbeat", session, RequireUser(), handler.HandleHeartbeat())

	authGroup := r.Group("/auth")
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst > 0 {
		authGroup.Use(RateLimit("auth", cfg.RateLimitRPS, cfg.RateLimitBurst))
	}
	{
		authGroup.GET("/github", handler.HandleGitHubLogin(deps.Broker))
		authGroup.GET("/github/callback", handler.HandleGitHubCallback(deps.Broker, cookie))
		authGroup.POST("/login", handler.HandleLogin(deps.Broker))
		authGroup.GET("/logout", handler.HandleClearSession(cookie))
		authGroup.POST("/logout", bearer, handler.HandleLogout(deps.Store))
	}

	r.POST("/events/capture", bearer, handler.HandleCaptureEvent(deps.Store))

	return r
}
