package errors

import (
	"net/http"

	"faultline-go/internal/constants"
)

// Taxonomy codes.
const (
	CodeBadRequest           = "BAD_REQUEST"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeNotFound             = "NOT_FOUND"
	CodeConflict             = "CONFLICT"
	CodeValidation           = "VALIDATION_ERROR"
	CodeRateLimit            = "RATE_LIMIT_EXCEEDED"
	CodeInternal             = "INTERNAL_SERVER_ERROR"
	CodeBadGateway           = "BAD_GATEWAY"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
	CodeGatewayTimeout       = "GATEWAY_TIMEOUT"
	CodeRegistrationConflict = "REGISTRATION_CONFLICT"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeAccountLocked        = "ACCOUNT_LOCKED"
	CodeNetworkOffline       = "NETWORK_OFFLINE"
	CodeNetworkTimeout       = "NETWORK_TIMEOUT"
	CodeUnknown              = "UNKNOWN_ERROR"
)

const defaultRateLimitWait = constants.DefaultRateLimitWaitSeconds

// CategoryInfo holds the default presentation of a category.
type CategoryInfo struct {
	Title     string
	Message   string
	Action    string
	Retryable bool
}

var categoryDefaults = map[Category]CategoryInfo{
	CategoryNetwork: {
		Title:     "Connection Problem",
		Message:   "Unable to connect. Please check your internet connection and try again.",
		Action:    "Retry",
		Retryable: true,
	},
	CategoryAuth: {
		Title:   "Authentication Required",
		Message: "Your session is no longer valid. Please log in again.",
		Action:  "Log in again",
	},
	CategoryValidation: {
		Title:   "Invalid Input",
		Message: "Please check the highlighted fields and try again.",
		Action:  "Fix the highlighted fields",
	},
	CategoryServer: {
		Title:     "Server Error",
		Message:   "Something went wrong on our end. Please try again in a moment.",
		Action:    "Try again later",
		Retryable: true,
	},
	CategoryRateLimit: {
		Title:     "Too Many Requests",
		Message:   "Too many requests. Please wait before trying again.",
		Action:    "Wait and retry",
		Retryable: true,
	},
	CategoryPermission: {
		Title:   "Access Denied",
		Message: "You don't have permission to perform this action.",
		Action:  "Contact your administrator",
	},
	CategoryUnknown: {
		Title:     "Unexpected Error",
		Message:   "An unexpected error occurred. Please try again.",
		Action:    "Try again",
		Retryable: true,
	},
}

// CategoryDefaults returns the presentation defaults of c, falling back to unknown.
func CategoryDefaults(c Category) CategoryInfo {
	if info, ok := categoryDefaults[c]; ok {
		return info
	}
	return categoryDefaults[CategoryUnknown]
}

// codeInfo is a concrete taxonomy entry; per-code values override the category defaults.
type codeInfo struct {
	Code        string
	Category    Category
	Retryable   bool
	UserMessage string
}

// statusTable is the single status -> taxonomy mapping used everywhere.
var statusTable = map[int]codeInfo{
	http.StatusBadRequest:          {CodeBadRequest, CategoryValidation, false, "The request was invalid. Please check your input and try again."},
	http.StatusUnauthorized:        {CodeUnauthorized, CategoryAuth, false, "Your session has expired. Please log in again."},
	http.StatusForbidden:           {CodeForbidden, CategoryAuth, false, "You don't have access to this resource. Please log in again with an account that does."},
	http.StatusNotFound:            {CodeNotFound, CategoryServer, false, "The requested resource could not be found."},
	http.StatusConflict:            {CodeConflict, CategoryValidation, false, "This item was changed or already exists. Please refresh and try again."},
	http.StatusUnprocessableEntity: {CodeValidation, CategoryValidation, false, "Please check the highlighted fields and try again."},
	http.StatusTooManyRequests:     {CodeRateLimit, CategoryRateLimit, true, ""},
	http.StatusInternalServerError: {CodeInternal, CategoryServer, true, "Something went wrong on our end. Please try again in a moment."},
	http.StatusBadGateway:          {CodeBadGateway, CategoryServer, true, "The server is having trouble reaching a dependency. Please try again in a moment."},
	http.StatusServiceUnavailable:  {CodeServiceUnavailable, CategoryServer, true, "The service is temporarily unavailable. Please try again shortly."},
	http.StatusGatewayTimeout:      {CodeGatewayTimeout, CategoryNetwork, true, "The request timed out. Please try again."},
}

// messageCodes are the non-HTTP codes produced by the heuristics and typed network checks.
var messageCodes = map[string]codeInfo{
	CodeRegistrationConflict: {CodeRegistrationConflict, CategoryValidation, false, "An account with these details already exists. Try logging in instead."},
	CodeInvalidCredentials:   {CodeInvalidCredentials, CategoryAuth, false, "The email or password is incorrect. Please check your credentials and log in again."},
	CodeAccountLocked:        {CodeAccountLocked, CategoryAuth, false, "Your account is temporarily locked after too many attempts. Please log in again later."},
	CodeNetworkOffline:       {CodeNetworkOffline, CategoryNetwork, true, "Unable to connect. Please check your internet connection and try again."},
	CodeNetworkTimeout:       {CodeNetworkTimeout, CategoryNetwork, true, "The request timed out. Please try again."},
	CodeUnknown:              {CodeUnknown, CategoryUnknown, true, "An unexpected error occurred. Please try again."},
}

// lookupStatus returns the taxonomy entry of an HTTP status. Unmapped statuses
// fall back to unknown, retryable only for 5xx.
func lookupStatus(status int) codeInfo {
	if info, ok := statusTable[status]; ok {
		return info
	}
	return codeInfo{
		Code:      CodeUnknown,
		Category:  CategoryUnknown,
		Retryable: status >= 500,
	}
}

func lookupCode(code string) (codeInfo, bool) {
	if info, ok := messageCodes[code]; ok {
		return info, true
	}
	for _, info := range statusTable {
		if info.Code == code {
			return info, true
		}
	}
	return codeInfo{}, false
}

// CategoryFor resolves the category of a code/status pair.
func CategoryFor(code string, status int) Category {
	if info, ok := lookupCode(code); ok {
		return info.Category
	}
	if status > 0 {
		return lookupStatus(status).Category
	}
	return CategoryUnknown
}

// StatusMapping exposes the fixed status table for documentation endpoints and tests.
func StatusMapping() map[int]struct {
	Code      string
	Category  Category
	Retryable bool
} {
	out := make(map[int]struct {
		Code      string
		Category  Category
		Retryable bool
	}, len(statusTable))
	for status, info := range statusTable {
		out[status] = struct {
			Code      string
			Category  Category
			Retryable bool
		}{info.Code, info.Category, info.Retryable}
	}
	return out
}
