package errors

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// recordBuilder collects the pieces of a record before it is frozen.
type recordBuilder struct {
	info          codeInfo
	status        int
	message       string
	details       *DetailSet
	retryAfter    *int
	correlationID string
	cause         error
}

func newBuilder(info codeInfo, status int, message string) *recordBuilder {
	return &recordBuilder{info: info, status: status, message: message, details: NewDetailSet()}
}

// truncateMessage cuts msg to maxMessageLength bytes on a rune boundary.
func truncateMessage(msg string) string {
	if len(msg) <= maxMessageLength {
		return msg
	}
	cut := maxMessageLength
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut] + "..."
}

func (b *recordBuilder) build() *ErrorRecord {
	def := CategoryDefaults(b.info.Category)
	userMsg := b.info.UserMessage
	if userMsg == "" {
		userMsg = def.Message
	}
	msg := strings.TrimSpace(b.message)
	if msg == "" {
		msg = userMsg
	}
	msg = truncateMessage(msg)

	rec := &ErrorRecord{
		Code:              b.info.Code,
		HTTPStatus:        b.status,
		Message:           msg,
		UserMessage:       userMsg,
		Title:             def.Title,
		Action:            def.Action,
		Category:          b.info.Category,
		Severity:          SeverityFor(b.info.Code, b.status),
		Retryable:         b.info.Retryable,
		RetryAfterSeconds: b.retryAfter,
		Details:           b.details.Items(),
		CorrelationID:     b.correlationID,
		Timestamp:         time.Now().UTC(),
		cause:             b.cause,
	}
	if rec.Category == CategoryRateLimit {
		wait := defaultRateLimitWait
		if b.retryAfter != nil && *b.retryAfter > 0 {
			wait = *b.retryAfter
		}
		rec.UserMessage = rateLimitMessage(wait)
		rec.Action = "Wait and retry"
	}
	return rec
}

func rateLimitMessage(seconds int) string {
	unit := "seconds"
	if seconds == 1 {
		unit = "second"
	}
	return fmt.Sprintf("Too many requests. Please wait %d %s before trying again.", seconds, unit)
}
