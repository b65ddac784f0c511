package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// Category groups error codes into the buckets the UI reacts to.
type Category string

const (
	CategoryNetwork    Category = "network"
	CategoryAuth       Category = "auth"
	CategoryValidation Category = "validation"
	CategoryServer     Category = "server"
	CategoryRateLimit  Category = "rate_limit"
	CategoryPermission Category = "permission"
	CategoryUnknown    Category = "unknown"
)

// Severity is the triage level of a record.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from 0 (low) to 3 (critical); unknown values rank as medium.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 1
	}
}

// Valid reports whether s is one of the four defined levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ErrorRecord is the normalized form of any caught failure.
//
// Records are created by Normalize (or the Map* helpers) and never mutated
// afterwards. Severity is always derived from Code and HTTPStatus.
type ErrorRecord struct {
	Code              string    `json:"code"`
	HTTPStatus        int       `json:"httpStatus"`
	Message           string    `json:"message"`
	UserMessage       string    `json:"userMessage"`
	Title             string    `json:"title,omitempty"`
	Action            string    `json:"action,omitempty"`
	Category          Category  `json:"category"`
	Severity          Severity  `json:"severity"`
	Retryable         bool      `json:"retryable"`
	RetryAfterSeconds *int      `json:"retryAfterSeconds,omitempty"`
	Details           []string  `json:"details,omitempty"`
	CorrelationID     string    `json:"correlationId,omitempty"`
	Timestamp         time.Time `json:"timestamp"`

	cause error
}

// Error implements the error interface.
func (e *ErrorRecord) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the original failure, if the record was built from a Go error.
func (e *ErrorRecord) Unwrap() error {
	return e.cause
}

// Clone returns a deep copy. The cause is shared.
func (e *ErrorRecord) Clone() *ErrorRecord {
	if e == nil {
		return nil
	}
	out := *e
	if e.Details != nil {
		out.Details = append([]string(nil), e.Details...)
	}
	if e.RetryAfterSeconds != nil {
		v := *e.RetryAfterSeconds
		out.RetryAfterSeconds = &v
	}
	return &out
}

// UnmarshalJSON decodes a record received over the wire and re-establishes
// the invariants: severity is recomputed and details are deduplicated.
func (e *ErrorRecord) UnmarshalJSON(data []byte) error {
	type wire ErrorRecord
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = ErrorRecord(w)
	if e.Code == "" {
		e.Code = CodeUnknown
	}
	if e.Category == "" {
		e.Category = CategoryFor(e.Code, e.HTTPStatus)
	}
	e.Severity = SeverityFor(e.Code, e.HTTPStatus)
	e.Details = NewDetailSet(e.Details...).Items()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return nil
}

// IsRetryable reports whether the UI should offer a retry affordance.
func (e *ErrorRecord) IsRetryable() bool {
	return e != nil && e.Retryable
}

// IsCritical reports whether the record should be escalated immediately.
func (e *ErrorRecord) IsCritical() bool {
	return e != nil && e.Severity == SeverityCritical
}

// WaitSeconds returns the wait a rate-limited caller should observe.
func (e *ErrorRecord) WaitSeconds() int {
	if e == nil {
		return 0
	}
	if e.RetryAfterSeconds != nil {
		return *e.RetryAfterSeconds
	}
	if e.Category == CategoryRateLimit {
		return defaultRateLimitWait
	}
	return 0
}

// RetryHint is the label of the retry affordance, empty when no retry should be offered.
func (e *ErrorRecord) RetryHint() string {
	if !e.IsRetryable() {
		return ""
	}
	if wait := e.WaitSeconds(); wait > 0 {
		return fmt.Sprintf("Retry in %d seconds", wait)
	}
	return "Retry"
}
