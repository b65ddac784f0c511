package middleware

import (
	apperrors "faultline-go/internal/errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKeyRequestID holds the request id on the gin context.
const ContextKeyRequestID = "request_id"

// RequestID reuses X-Request-ID or generates one, echoes it on the response
// and carries it as the correlation id of errors raised while serving.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" || len(rid) > 128 {
			rid = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Request = c.Request.WithContext(apperrors.WithCorrelationID(c.Request.Context(), rid))
		c.Next()
	}
}
