package logging

import (
	"time"

	apperrors "faultline-go/internal/errors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// WithReq builds a log entry enriched with common HTTP request fields.
// Fields:
// - request_id: X-Request-ID or generated in middleware
// - method, path, ip
// Any extras passed in will be merged (extras take precedence on key conflicts).
func WithReq(c *gin.Context, extras log.Fields) *log.Entry {
	if c == nil {
		return log.WithFields(extras)
	}
	path := c.FullPath()
	if path == "" && c.Request != nil && c.Request.URL != nil {
		path = c.Request.URL.Path
	}
	rid, _ := c.Get("request_id")
	fields := log.Fields{
		"request_id": rid,
		"method":     c.Request.Method,
		"path":       path,
		"ip":         c.ClientIP(),
	}
	for k, v := range extras {
		fields[k] = v
	}
	return log.WithFields(fields)
}

// RecordFields are the log fields describing a normalized error.
func RecordFields(rec *apperrors.ErrorRecord) log.Fields {
	if rec == nil {
		return log.Fields{}
	}
	fields := log.Fields{
		"code":     rec.Code,
		"category": rec.Category,
		"severity": rec.Severity,
	}
	if rec.HTTPStatus != 0 {
		fields["http_status"] = rec.HTTPStatus
	}
	if rec.CorrelationID != "" {
		fields["correlation_id"] = rec.CorrelationID
	}
	return fields
}

// DurationMS converts a duration to integer milliseconds for logging.
func DurationMS(d time.Duration) int64 { return d.Milliseconds() }
