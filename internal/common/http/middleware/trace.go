package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"hdlgrade/pkg/utils/contextkey"
)

const requestIDHeader = "X-Request-Id"

// RequestContextMiddleware ensures every request carries an id in context and
// the response header. The logger picks it up as run_id so API queries and
// grading runs share one correlation field.
func RequestContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(c.Request.Context(), contextkey.RunID, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(requestIDHeader, requestID)

		c.Next()
	}
}
