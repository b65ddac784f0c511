package errors

import (
	"encoding/json"
	"net/http"
)

// Envelope is the JSON error body returned by the collector API.
type Envelope struct {
	Error struct {
		Code              string   `json:"code"`
		Message           string   `json:"message"`
		UserMessage       string   `json:"userMessage"`
		Category          Category `json:"category"`
		Severity          Severity `json:"severity"`
		Retryable         bool     `json:"retryable"`
		RetryAfterSeconds *int     `json:"retryAfterSeconds,omitempty"`
		Details           []string `json:"details,omitempty"`
		CorrelationID     string   `json:"correlationId,omitempty"`
	} `json:"error"`
}

// ToEnvelope builds the response envelope of e.
func (e *ErrorRecord) ToEnvelope() Envelope {
	var env Envelope
	env.Error.Code = e.Code
	env.Error.Message = e.Message
	env.Error.UserMessage = e.UserMessage
	env.Error.Category = e.Category
	env.Error.Severity = e.Severity
	env.Error.Retryable = e.Retryable
	env.Error.RetryAfterSeconds = e.RetryAfterSeconds
	env.Error.Details = e.Details
	env.Error.CorrelationID = e.CorrelationID
	return env
}

// ToJSON renders the response envelope.
func (e *ErrorRecord) ToJSON() ([]byte, error) {
	return json.Marshal(e.ToEnvelope())
}

// ResponseStatus is the status a server should answer with for e.
func (e *ErrorRecord) ResponseStatus() int {
	if e.HTTPStatus >= 400 && e.HTTPStatus <= 599 {
		return e.HTTPStatus
	}
	switch e.Category {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryAuth:
		return http.StatusUnauthorized
	case CategoryPermission:
		return http.StatusForbidden
	case CategoryRateLimit:
		return http.StatusTooManyRequests
	case CategoryNetwork:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// New builds a record for a code raised locally (not from a transport failure).
func New(httpStatus int, code, message string) *ErrorRecord {
	info, ok := lookupCode(code)
	if !ok {
		info = lookupStatus(httpStatus)
		info.Code = code
	}
	return newBuilder(info, httpStatus, message).build()
}

// WithDetails returns a copy of e with extra details appended (deduplicated).
func (e *ErrorRecord) WithDetails(details ...string) *ErrorRecord {
	out := e.Clone()
	out.Details = NewDetailSet(append(out.Details, details...)...).Items()
	return out
}
