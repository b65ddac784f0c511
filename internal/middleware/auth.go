package middleware

import (
	"net/http"
	"strings"

	apperrors "faultline-go/internal/errors"
	"github.com/gin-gonic/gin"
)

// ManagementAuth protects management routes. The key is read from
// Authorization: Bearer, X-Management-Key or the key query parameter. A nil
// validator disables the routes entirely.
func ManagementAuth(validate func(string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if validate == nil {
			AbortWithRecord(c, apperrors.New(http.StatusForbidden, apperrors.CodeForbidden,
				"management API disabled: no management key configured"))
			return
		}
		key := providedKey(c)
		if key == "" {
			AbortWithRecord(c, apperrors.New(http.StatusUnauthorized, apperrors.CodeUnauthorized, "management key not provided"))
			return
		}
		if !validate(key) {
			AbortWithRecord(c, apperrors.New(http.StatusUnauthorized, apperrors.CodeUnauthorized, "invalid management key"))
			return
		}
		c.Next()
	}
}

func providedKey(c *gin.Context) string {
	if auth := strings.TrimSpace(c.GetHeader("Authorization")); auth != "" {
		if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			return strings.TrimSpace(auth[7:])
		}
		return auth
	}
	if v := strings.TrimSpace(c.GetHeader("X-Management-Key")); v != "" {
		return v
	}
	return strings.TrimSpace(c.Query("key"))
}
