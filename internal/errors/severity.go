package errors

import "net/http"

// SeverityFor is the only source of a record's severity. Known codes decide
// on their own; UNKNOWN_ERROR and foreign codes fall back to the status.
func SeverityFor(code string, status int) Severity {
	switch code {
	case CodeInternal, CodeBadGateway:
		return SeverityCritical
	case CodeUnauthorized, CodeForbidden, CodeAccountLocked,
		CodeServiceUnavailable, CodeGatewayTimeout, CodeNetworkOffline:
		return SeverityHigh
	case CodeRateLimit, CodeNotFound, CodeConflict, CodeNetworkTimeout,
		CodeRegistrationConflict, CodeInvalidCredentials:
		return SeverityMedium
	case CodeValidation, CodeBadRequest:
		return SeverityLow
	}

	switch {
	case status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		return SeverityHigh
	case status >= 500:
		return SeverityCritical
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return SeverityHigh
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return SeverityLow
	}
	return SeverityMedium
}
