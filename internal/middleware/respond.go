package middleware

import (
	"strconv"

	apperrors "faultline-go/internal/errors"
	"github.com/gin-gonic/gin"
)

// ContextKeyErrorCode holds the code of the error a request answered with.
const ContextKeyErrorCode = "error_code"

// AbortWithRecord answers with the error envelope of rec and stops the chain.
func AbortWithRecord(c *gin.Context, rec *apperrors.ErrorRecord) {
	if rec.CorrelationID == "" {
		if rid := c.GetString(ContextKeyRequestID); rid != "" {
			rec = rec.Clone()
			rec.CorrelationID = rid
		}
	}
	if wait := rec.WaitSeconds(); wait > 0 && rec.Category == apperrors.CategoryRateLimit {
		c.Header("Retry-After", strconv.Itoa(wait))
	}
	c.Set(ContextKeyErrorCode, rec.Code)
	c.AbortWithStatusJSON(rec.ResponseStatus(), rec.ToEnvelope())
}
