package errorstore

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	apperrors "faultline-go/internal/errors"
)

// Entry is one archived error fingerprint.
type Entry struct {
	ID            string             `json:"id"`
	Fingerprint   string             `json:"fingerprint"`
	Code          string             `json:"code"`
	Category      apperrors.Category `json:"category"`
	Severity      apperrors.Severity `json:"severity"`
	HTTPStatus    int                `json:"httpStatus"`
	Message       string             `json:"message"`
	UserMessage   string             `json:"userMessage,omitempty"`
	Source        string             `json:"source,omitempty"`
	URL           string             `json:"url,omitempty"`
	UserAgent     string             `json:"userAgent,omitempty"`
	UserID        string             `json:"userId,omitempty"`
	SessionID     string             `json:"sessionId,omitempty"`
	CorrelationID string             `json:"correlationId,omitempty"`
	TraceID       string             `json:"traceId,omitempty"`
	Stack         string             `json:"stack,omitempty"`
	Context       map[string]any     `json:"context,omitempty"`
	Occurrences   int                `json:"occurrences"`
	FirstSeen     time.Time          `json:"firstSeen"`
	LastSeen      time.Time          `json:"lastSeen"`
	Resolved      bool               `json:"resolved"`
	ResolvedAt    *time.Time         `json:"resolvedAt,omitempty"`
}

// Fingerprint groups occurrences of the same failure: code, HTTP status and
// message.
func Fingerprint(code string, status int, message string) string {
	h := sha256.New()
	h.Write([]byte(code))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(status)))
	h.Write([]byte{0})
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Query filters archived entries. Zero fields do not filter.
type Query struct {
	Code        string
	Category    apperrors.Category
	MinSeverity apperrors.Severity
	Resolved    *bool
	Since       time.Time
	Search      string
	Limit       int
	Offset      int
}

// Page is one page of query results.
type Page struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Stats summarizes the archive.
type Stats struct {
	Fingerprints int            `json:"fingerprints"`
	Occurrences  int            `json:"occurrences"`
	Unresolved   int            `json:"unresolved"`
	LastDay      int            `json:"lastDay"`
	ByCode       map[string]int `json:"byCode"`
	ByCategory   map[string]int `json:"byCategory"`
	BySeverity   map[string]int `json:"bySeverity"`
}
