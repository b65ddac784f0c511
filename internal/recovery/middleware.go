package recovery

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Middleware recovers panics in gin handlers, reports them with request
// fields and answers 500 with the error envelope.
func (h *Handler) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if err, ok := r.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(r)
			}
			fields := map[string]any{
				"path":       c.Request.URL.Path,
				"method":     c.Request.Method,
				"client_ip":  c.ClientIP(),
				"user_agent": c.Request.UserAgent(),
			}
			if rid := c.GetString("request_id"); rid != "" {
				fields["request_id"] = rid
			}
			report := h.capture(c.Request.Context(), SourcePanic, panicValue(r), captureStack(2), fields, "")

			body := gin.H{
				"error": gin.H{
					"code":      "INTERNAL_SERVER_ERROR",
					"message":   "Internal server error",
					"report_id": report.ID,
				},
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, body)
		}()
		c.Next()
	}
}
