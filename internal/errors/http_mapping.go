package errors

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"faultline-go/internal/constants"
	"github.com/tidwall/gjson"
)

const (
	maxMessageLength = constants.MaxErrorMessageLength
	maxBodySniff     = 64 * 1024
)

// HTTPError is the failure an API client returns for a non-2xx response.
type HTTPError struct {
	Status int
	Body   []byte
	Header http.Header
	Method string
	URL    string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	text := http.StatusText(e.Status)
	if e.URL != "" {
		return fmt.Sprintf("%s %s: HTTP %d %s", e.Method, e.URL, e.Status, text)
	}
	return fmt.Sprintf("HTTP %d %s", e.Status, text)
}

// NewHTTPError reads (and restores) the body of resp into an HTTPError.
func NewHTTPError(resp *http.Response) *HTTPError {
	if resp == nil {
		return &HTTPError{}
	}
	he := &HTTPError{Status: resp.StatusCode, Header: resp.Header}
	if resp.Request != nil {
		he.Method = resp.Request.Method
		if resp.Request.URL != nil {
			he.URL = resp.Request.URL.String()
		}
	}
	if resp.Body != nil {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySniff))
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(data))
		he.Body = data
	}
	return he
}

// MapHTTPError maps HTTP status codes and upstream payloads to records.
func MapHTTPError(statusCode int, upstreamBody []byte) *ErrorRecord {
	return mapHTTP(HTTPFailure{Status: statusCode, Payload: upstreamBody})
}

// MapHTTPResponse maps a failed response, including its Retry-After and request id headers.
func MapHTTPResponse(resp *http.Response) *ErrorRecord {
	he := NewHTTPError(resp)
	return mapHTTP(HTTPFailure{Status: he.Status, Payload: he.Body, Header: he.Header, Cause: he})
}

func mapHTTP(f HTTPFailure) *ErrorRecord {
	info := lookupStatus(f.Status)
	p := parsePayload(f.Payload)

	msg := p.message
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d error", f.Status)
		if text := http.StatusText(f.Status); text != "" {
			msg = fmt.Sprintf("HTTP %d %s", f.Status, text)
		}
	}

	b := newBuilder(info, f.Status, msg)
	b.details = p.details
	if p.code != "" && p.code != info.Code {
		b.details.AddField("code", p.code)
	}
	b.retryAfter = p.retryAfter
	if b.retryAfter == nil {
		b.retryAfter = retryAfterFromHeader(f.Header, time.Now())
	}
	b.correlationID = firstNonEmpty(p.correlationID, headerCorrelationID(f.Header))
	b.cause = f.Cause
	return b.build()
}

type payloadInfo struct {
	message       string
	code          string
	details       *DetailSet
	retryAfter    *int
	correlationID string
}

var (
	statusPaths      = []string{"status", "statusCode", "status_code", "response.status", "response.statusCode", "error.status", "error.statusCode", "error.code"}
	messagePaths     = []string{"message", "detail", "error.message", "error.detail", "response.data.message", "response.data.detail", "response.message", "error_description", "error"}
	codePaths        = []string{"code", "error.code", "response.data.code"}
	fieldErrorPaths  = []string{"errors", "error.errors", "response.data.errors", "data.errors", "detail", "error.detail", "response.data.detail"}
	retryAfterPaths  = []string{"retryAfterSeconds", "retryAfter", "retry_after", "error.retryAfter", "error.retry_after", "response.data.retryAfter", "response.data.retry_after"}
	correlationPaths = []string{"correlationId", "correlation_id", "requestId", "request_id", "error.request_id", "error.requestId", "response.headers.x-request-id"}
)

// parsePayload pulls the fields we care about out of a JSON body. Non-JSON
// bodies contribute only a truncated message.
func parsePayload(body []byte) payloadInfo {
	info := payloadInfo{details: NewDetailSet()}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return info
	}
	if !gjson.ValidBytes(body) {
		msg := string(body)
		info.message = truncateMessage(msg)
		return info
	}

	for _, p := range messagePaths {
		if r := gjson.GetBytes(body, p); r.Type == gjson.String && strings.TrimSpace(r.Str) != "" {
			info.message = r.Str
			break
		}
	}
	for _, p := range codePaths {
		if r := gjson.GetBytes(body, p); r.Type == gjson.String && r.Str != "" {
			info.code = r.Str
			break
		}
	}
	for _, p := range fieldErrorPaths {
		collectFieldErrors(info.details, gjson.GetBytes(body, p))
	}
	for _, p := range retryAfterPaths {
		if n, ok := resultInt(gjson.GetBytes(body, p)); ok && n >= 0 {
			info.retryAfter = &n
			break
		}
	}
	for _, p := range correlationPaths {
		if r := gjson.GetBytes(body, p); r.Type == gjson.String && r.Str != "" {
			info.correlationID = r.Str
			break
		}
	}
	return info
}

// findStatus returns the first plausible HTTP status found in a JSON payload.
func findStatus(body []byte) int {
	for _, p := range statusPaths {
		if n, ok := resultInt(gjson.GetBytes(body, p)); ok && n >= 100 && n <= 599 {
			return n
		}
	}
	return 0
}

// collectFieldErrors understands {"field": "msg"}, {"field": ["a","b"]},
// [{"loc": [...,"field"], "msg": "..."}], [{"field": "...", "message": "..."}] and ["msg"].
func collectFieldErrors(set *DetailSet, r gjson.Result) {
	switch {
	case r.IsObject():
		r.ForEach(func(key, val gjson.Result) bool {
			if val.IsArray() {
				for _, m := range val.Array() {
					set.AddField(key.String(), resultMessage(m))
				}
			} else {
				set.AddField(key.String(), resultMessage(val))
			}
			return true
		})
	case r.IsArray():
		for _, item := range r.Array() {
			if !item.IsObject() {
				set.Add(item.String())
				continue
			}
			field := item.Get("field").String()
			if field == "" {
				if loc := item.Get("loc").Array(); len(loc) > 0 {
					field = loc[len(loc)-1].String()
				}
			}
			set.AddField(field, resultMessage(item))
		}
	}
}

func resultMessage(r gjson.Result) string {
	if r.IsObject() {
		for _, k := range []string{"message", "msg", "detail"} {
			if v := r.Get(k); v.Exists() {
				return v.String()
			}
		}
	}
	return r.String()
}

func resultInt(r gjson.Result) (int, bool) {
	switch r.Type {
	case gjson.Number:
		if r.Num != math.Trunc(r.Num) {
			return int(math.Ceil(r.Num)), true
		}
		return int(r.Int()), true
	case gjson.String:
		if n, err := strconv.Atoi(strings.TrimSpace(r.Str)); err == nil {
			return n, true
		}
	}
	return 0, false
}

// retryAfterFromHeader parses Retry-After as delta-seconds or an HTTP date.
func retryAfterFromHeader(h http.Header, now time.Time) *int {
	if h == nil {
		return nil
	}
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return nil
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return &n
	}
	if t, err := http.ParseTime(v); err == nil {
		n := int(math.Ceil(t.Sub(now).Seconds()))
		if n < 0 {
			n = 0
		}
		return &n
	}
	return nil
}

func headerCorrelationID(h http.Header) string {
	if h == nil {
		return ""
	}
	return firstNonEmpty(h.Get("X-Correlation-ID"), h.Get("X-Request-ID"))
}

func firstNonEmpty(strs ...string) string {
	for _, s := range strs {
		if s != "" {
			return s
		}
	}
	return ""
}
