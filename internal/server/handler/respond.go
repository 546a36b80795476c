package handler

import (
	"github.com/aspect-build/cairos/internal/apperr"
	"github.com/aspect-build/cairos/internal/logx"
	"github.com/gin-gonic/gin"
)

// abortWithError logs err in full and answers with its kind's status and a
// short public message.
func abortWithError(c *gin.Context, op string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= 500 {
		logx.Errorf("%s: %v", op, err)
	} else {
		logx.Warnf("%s: %v", op, err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.PublicMessage(err)})
}
