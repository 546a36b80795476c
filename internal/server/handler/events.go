package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/aspect-build/cairos/internal/apperr"
	"github.com/aspect-build/cairos/internal/server/auth"
	"github.com/aspect-build/cairos/internal/server/db"
	"github.com/aspect-build/cairos/internal/server/metrics"
	"github.com/gin-gonic/gin"
)

// EventWriter persists capture events.
type EventWriter interface {
	CreateEvent(ctx context.Context, e *db.Event) error
}

type captureEventRequest struct {
	URI        string  `json:"uri" binding:"required"`
	IsWrite    bool    `json:"is_write"`
	Language   *string `json:"language"`
	LineNumber *int64  `json:"line_number"`
	CursorPos  *int64  `json:"cursor_pos"`
}

// HandleCaptureEvent handles POST /events/capture.
func HandleCaptureEvent(events EventWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.UserIDFromContext(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		var req captureEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "uri is required"})
			return
		}

		e := &db.Event{
			URI:        req.URI,
			IsWrite:    req.IsWrite,
			Language:   req.Language,
			LineNumber: req.LineNumber,
			CursorPos:  req.CursorPos,
			UserID:     userID,
			CreatedAt:  time.Now().UTC(),
		}
		if err := events.CreateEvent(c.Request.Context(), e); err != nil {
			abortWithError(c, "capture event", apperr.Storage(err, "insert event"))
			return
		}
		metrics.EventsCaptured.Inc()
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
