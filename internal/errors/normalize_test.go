package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUnauthorizedScenario(t *testing.T) {
	rec := Normalize(map[string]any{"status": 401})

	require.Equal(t, CodeUnauthorized, rec.Code)
	require.Equal(t, CategoryAuth, rec.Category)
	require.False(t, rec.Retryable)
	require.Equal(t, 401, rec.HTTPStatus)
	assert.Contains(t, rec.UserMessage, "log in again")
	assert.Equal(t, SeverityHigh, rec.Severity)
	assert.Empty(t, rec.RetryHint())
}

func TestNormalizeNetworkRequestFailed(t *testing.T) {
	rec := Normalize(stderrors.New("Network request failed"))

	require.Equal(t, CategoryNetwork, rec.Category)
	require.True(t, rec.Retryable)
	require.Equal(t, CodeNetworkOffline, rec.Code)
	require.Zero(t, rec.HTTPStatus)
	require.Equal(t, "Retry", rec.RetryHint())
}

func TestNormalizeIsIdempotent(t *testing.T) {
	first := Normalize(map[string]any{"status": 422, "errors": map[string]any{"email": "is invalid"}})
	require.Same(t, first, Normalize(first))

	var wrapped error = fmt.Errorf("submit: %w", first)
	require.Same(t, first, Normalize(wrapped))

	copied := Normalize(*first)
	require.Equal(t, first, copied)

	data, err := json.Marshal(first)
	require.NoError(t, err)
	again := Normalize(data)
	require.Equal(t, first.Code, again.Code)
	require.Equal(t, first.Category, again.Category)
	require.Equal(t, first.Severity, again.Severity)
	require.Equal(t, first.UserMessage, again.UserMessage)
	require.Equal(t, first.Details, again.Details)
	require.True(t, first.Timestamp.Equal(again.Timestamp))
}

func TestStatusMappingIsDeterministic(t *testing.T) {
	cases := map[int]struct {
		code      string
		category  Category
		retryable bool
	}{
		400: {CodeBadRequest, CategoryValidation, false},
		401: {CodeUnauthorized, CategoryAuth, false},
		403: {CodeForbidden, CategoryAuth, false},
		404: {CodeNotFound, CategoryServer, false},
		409: {CodeConflict, CategoryValidation, false},
		422: {CodeValidation, CategoryValidation, false},
		429: {CodeRateLimit, CategoryRateLimit, true},
		500: {CodeInternal, CategoryServer, true},
		502: {CodeBadGateway, CategoryServer, true},
		503: {CodeServiceUnavailable, CategoryServer, true},
		504: {CodeGatewayTimeout, CategoryNetwork, true},
	}
	for status, want := range cases {
		for i := 0; i < 3; i++ {
			rec := MapHTTPError(status, nil)
			assert.Equal(t, want.code, rec.Code, "status %d", status)
			assert.Equal(t, want.category, rec.Category, "status %d", status)
			assert.Equal(t, want.retryable, rec.Retryable, "status %d", status)
			assert.Equal(t, SeverityFor(rec.Code, status), rec.Severity)
		}
	}
	require.Len(t, StatusMapping(), len(cases))
}

func TestUnmappedStatusFallsBackToUnknown(t *testing.T) {
	rec := MapHTTPError(418, nil)
	require.Equal(t, CodeUnknown, rec.Code)
	require.Equal(t, CategoryUnknown, rec.Category)
	require.False(t, rec.Retryable)

	rec = MapHTTPError(501, nil)
	require.Equal(t, CodeUnknown, rec.Code)
	require.True(t, rec.Retryable)
	require.Equal(t, SeverityCritical, rec.Severity)
}

func TestRateLimitMessage(t *testing.T) {
	rec := Normalize(map[string]any{"status": 429, "retryAfterSeconds": 45})
	require.Contains(t, rec.UserMessage, "45 seconds")
	require.NotNil(t, rec.RetryAfterSeconds)
	require.Equal(t, 45, *rec.RetryAfterSeconds)
	require.Equal(t, "Wait and retry", rec.Action)

	rec = Normalize(map[string]any{"status": 429})
	require.Contains(t, rec.UserMessage, "60 seconds")
	require.Nil(t, rec.RetryAfterSeconds)
	require.Equal(t, 60, rec.WaitSeconds())
	require.Equal(t, "Retry in 60 seconds", rec.RetryHint())
}

func TestRetryAfterHeader(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     http.Header{"Retry-After": []string{"12"}, "X-Request-Id": []string{"req-9"}},
		Body:       io.NopCloser(strings.NewReader(`{"message":"slow down"}`)),
	}
	rec := Normalize(resp)
	require.Equal(t, CodeRateLimit, rec.Code)
	require.Equal(t, "slow down", rec.Message)
	require.Equal(t, 12, *rec.RetryAfterSeconds)
	require.Contains(t, rec.UserMessage, "12 seconds")
	require.Equal(t, "req-9", rec.CorrelationID)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, `{"message":"slow down"}`, string(body))
}

func TestNestedStatus(t *testing.T) {
	rec := Normalize(map[string]any{
		"response": map[string]any{
			"status": 503,
			"data":   map[string]any{"message": "maintenance"},
		},
	})
	require.Equal(t, CodeServiceUnavailable, rec.Code)
	require.Equal(t, "maintenance", rec.Message)
	require.Equal(t, SeverityHigh, rec.Severity)

	rec = Normalize(`{"error":{"status":403,"message":"nope"}}`)
	require.Equal(t, CodeForbidden, rec.Code)
	require.Equal(t, "nope", rec.Message)
}

func TestHTTPErrorValue(t *testing.T) {
	he := &HTTPError{Status: 409, Body: []byte(`{"code":"DUPLICATE","detail":"name taken"}`)}
	var err error = fmt.Errorf("create: %w", he)

	rec := Normalize(err)
	require.Equal(t, CodeConflict, rec.Code)
	require.Equal(t, "name taken", rec.Message)
	require.Equal(t, []string{"code: DUPLICATE"}, rec.Details)
	require.ErrorIs(t, rec, he)
}

func TestFieldErrorsFlattenedAndDeduplicated(t *testing.T) {
	body := []byte(`{"status":422,"errors":{"email":["is required","is required","must be valid"],"password":"too short"}}`)
	rec := Normalize(body)
	require.Equal(t, CodeValidation, rec.Code)
	require.Equal(t, []string{
		"email: is required",
		"email: must be valid",
		"password: too short",
	}, rec.Details)
	require.Equal(t, SeverityLow, rec.Severity)
}

func TestFieldErrorsFromDetailArray(t *testing.T) {
	body := []byte(`{"status":422,"detail":[{"loc":["body","email"],"msg":"field required"},{"loc":["body","age"],"msg":"not an int"}]}`)
	rec := Normalize(body)
	require.Equal(t, []string{"email: field required", "age: not an int"}, rec.Details)
}

func TestTypedFieldMap(t *testing.T) {
	rec := Normalize(map[string][]string{"name": {"required"}, "age": {"too low", "too low"}})
	require.Equal(t, CodeValidation, rec.Code)
	require.Equal(t, []string{"age: too low", "name: required"}, rec.Details)

	local := NewValidationError("form invalid", map[string][]string{"zip": {"bad"}})
	require.Equal(t, []string{"zip: bad"}, local.Details)
	require.Equal(t, "form invalid", local.Message)
}

func TestMessageHeuristics(t *testing.T) {
	cases := []struct {
		msg  string
		code string
	}{
		{"User already exists", CodeRegistrationConflict},
		{"email ALREADY REGISTERED", CodeRegistrationConflict},
		{"Invalid credentials supplied", CodeInvalidCredentials},
		{"wrong password", CodeInvalidCredentials},
		{"Account locked", CodeAccountLocked},
		{"too many attempts, slow down", CodeAccountLocked},
		{"fetch failed", CodeNetworkOffline},
		{"connect ECONNREFUSED 127.0.0.1:443", CodeNetworkOffline},
		{"getaddrinfo ENOTFOUND api", CodeNetworkOffline},
		{"request timeout", CodeNetworkTimeout},
		{"something odd", CodeUnknown},
	}
	for _, tc := range cases {
		rec := Normalize(tc.msg)
		assert.Equal(t, tc.code, rec.Code, tc.msg)
	}

	unknown := Normalize("something odd")
	require.True(t, unknown.Retryable)
	require.Equal(t, CategoryUnknown, unknown.Category)
}

func TestTypedTransportErrors(t *testing.T) {
	rec := Normalize(context.DeadlineExceeded)
	require.Equal(t, CodeNetworkTimeout, rec.Code)

	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: stderrors.New("refused")}
	rec = Normalize(opErr)
	require.Equal(t, CodeNetworkOffline, rec.Code)
	require.True(t, rec.Retryable)
	require.ErrorIs(t, rec, opErr)
}

type panickyStringer struct{}

func (panickyStringer) String() string { panic("boom") }

func TestNormalizeNeverPanics(t *testing.T) {
	var rec *ErrorRecord
	require.NotPanics(t, func() { rec = Normalize(panickyStringer{}) })
	require.Equal(t, CodeUnknown, rec.Code)

	for _, v := range []any{nil, (*ErrorRecord)(nil), 42, []int{1}, struct{ A chan int }{}, []byte("not json")} {
		require.NotPanics(t, func() { rec = Normalize(v) })
		require.NotNil(t, rec)
	}
}

func TestCorrelationIDFromContext(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "corr-1")
	rec := NormalizeWithContext(ctx, "network down")
	require.Equal(t, "corr-1", rec.CorrelationID)

	fromPayload := NormalizeWithContext(ctx, map[string]any{"status": 500, "requestId": "req-2"})
	require.Equal(t, "req-2", fromPayload.CorrelationID)
}

func TestUnmarshalRecomputesSeverity(t *testing.T) {
	var rec ErrorRecord
	err := json.Unmarshal([]byte(`{"code":"UNAUTHORIZED","httpStatus":401,"category":"auth","severity":"low","userMessage":"x","retryable":false,"details":["a","a","b"]}`), &rec)
	require.NoError(t, err)
	require.Equal(t, SeverityHigh, rec.Severity)
	require.Equal(t, []string{"a", "b"}, rec.Details)
}

func TestEnvelope(t *testing.T) {
	rec := MapHTTPError(401, []byte(`{"error":{"message":"token expired"}}`))
	data, err := rec.ToJSON()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	require.Equal(t, CodeUnauthorized, env.Error.Code)
	require.Equal(t, "token expired", env.Error.Message)
	require.Equal(t, http.StatusUnauthorized, rec.ResponseStatus())
	require.Equal(t, http.StatusBadGateway, Normalize("connection reset").ResponseStatus())
}

func TestNonJSONBodyTruncated(t *testing.T) {
	body := strings.Repeat("x", 500)
	rec := MapHTTPError(502, []byte(body))
	require.Equal(t, CodeBadGateway, rec.Code)
	require.True(t, strings.HasSuffix(rec.Message, "..."))
	require.LessOrEqual(t, len(rec.Message), maxMessageLength+3)
}

func TestTruncationKeepsValidUTF8(t *testing.T) {
	body := "x" + strings.Repeat("é", maxMessageLength)
	rec := MapHTTPError(502, []byte(body))
	require.True(t, utf8.ValidString(rec.Message))
	require.True(t, strings.HasSuffix(rec.Message, "..."))
	require.LessOrEqual(t, len(rec.Message), maxMessageLength+3)

	rec = Normalize(stderrors.New(strings.Repeat("错", maxMessageLength)))
	require.True(t, utf8.ValidString(rec.Message))
}

func TestURLParseErrorIsNotOffline(t *testing.T) {
	_, err := url.Parse("http://[::1")
	require.Error(t, err)
	rec := MapNetworkError(err)
	require.NotEqual(t, CodeNetworkOffline, rec.Code)
	require.Equal(t, CodeUnknown, rec.Code)

	transport := &url.Error{Op: "Get", URL: "http://api.local", Err: stderrors.New("stopped after 10 redirects")}
	require.Equal(t, CodeNetworkOffline, MapNetworkError(transport).Code)
}
