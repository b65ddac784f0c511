package errors

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// Failure is the closed set of shapes a caught failure is classified into
// before normalization. It is implemented only by the types below.
type Failure interface {
	failure()
}

// AlreadyNormalized wraps a value that already is an ErrorRecord.
type AlreadyNormalized struct{ Record *ErrorRecord }

// HTTPFailure is a failure that carries an HTTP status.
type HTTPFailure struct {
	Status  int
	Payload []byte
	Header  http.Header
	Cause   error
}

// ThrownException is a Go error without any HTTP status.
type ThrownException struct{ Err error }

// PlainMessage is a bare message, optionally with the JSON payload it came from.
type PlainMessage struct {
	Text    string
	Payload []byte
}

func (AlreadyNormalized) failure() {}
func (HTTPFailure) failure()       {}
func (ThrownException) failure()   {}
func (PlainMessage) failure()      {}

// Classify determines the shape of v. It never panics on well-behaved values;
// Normalize additionally guards against panicking Stringers and marshalers.
func Classify(v any) Failure {
	switch t := v.(type) {
	case nil:
		return PlainMessage{Text: "unknown error"}
	case *ErrorRecord:
		if t == nil {
			return PlainMessage{Text: "unknown error"}
		}
		return AlreadyNormalized{Record: t}
	case ErrorRecord:
		return AlreadyNormalized{Record: t.Clone()}
	case *HTTPError:
		return HTTPFailure{Status: t.Status, Payload: t.Body, Header: t.Header, Cause: t}
	case HTTPError:
		return HTTPFailure{Status: t.Status, Payload: t.Body, Header: t.Header, Cause: &t}
	case *http.Response:
		he := NewHTTPError(t)
		return HTTPFailure{Status: he.Status, Payload: he.Body, Header: he.Header, Cause: he}
	case error:
		var rec *ErrorRecord
		if stderrors.As(t, &rec) && rec != nil {
			return AlreadyNormalized{Record: rec}
		}
		var he *HTTPError
		if stderrors.As(t, &he) && he != nil {
			return HTTPFailure{Status: he.Status, Payload: he.Body, Header: he.Header, Cause: t}
		}
		return ThrownException{Err: t}
	case string:
		trimmed := bytes.TrimSpace([]byte(t))
		if len(trimmed) > 0 && trimmed[0] == '{' && gjson.ValidBytes(trimmed) {
			return classifyJSON(trimmed)
		}
		return PlainMessage{Text: t}
	case json.RawMessage:
		return classifyJSON(t)
	case []byte:
		return classifyJSON(t)
	case map[string][]string, map[string]string:
		data, err := json.Marshal(map[string]any{"errors": t})
		if err != nil {
			return PlainMessage{Text: fmt.Sprint(t)}
		}
		return HTTPFailure{Status: http.StatusUnprocessableEntity, Payload: data}
	case map[string]any:
		data, err := json.Marshal(t)
		if err != nil {
			return PlainMessage{Text: fmt.Sprint(t)}
		}
		return classifyJSON(data)
	case fmt.Stringer:
		return PlainMessage{Text: t.String()}
	}

	data, err := json.Marshal(v)
	if err == nil && len(data) > 0 && data[0] == '{' {
		return classifyJSON(data)
	}
	return PlainMessage{Text: fmt.Sprint(v)}
}

func classifyJSON(data []byte) Failure {
	data = bytes.TrimSpace(data)
	if !gjson.ValidBytes(data) {
		return PlainMessage{Text: string(data)}
	}
	if looksNormalized(data) {
		var rec ErrorRecord
		if err := json.Unmarshal(data, &rec); err == nil {
			return AlreadyNormalized{Record: &rec}
		}
	}
	if status := findStatus(data); status > 0 {
		return HTTPFailure{Status: status, Payload: data}
	}
	text := parsePayload(data).message
	if text == "" {
		text = string(data)
	}
	return PlainMessage{Text: text, Payload: data}
}

// looksNormalized reports whether a JSON object has the ErrorRecord shape.
func looksNormalized(data []byte) bool {
	res := gjson.GetManyBytes(data, "code", "category", "userMessage", "retryable")
	return res[0].Type == gjson.String &&
		res[1].Type == gjson.String &&
		res[2].Type == gjson.String &&
		(res[3].Type == gjson.True || res[3].Type == gjson.False)
}

// Normalize converts any caught failure into exactly one record. Records
// are returned unchanged, so normalizing twice is a no-op.
func Normalize(v any) *ErrorRecord {
	return NormalizeWithContext(context.Background(), v)
}

// NormalizeWithContext is Normalize plus correlation id propagation from ctx.
func NormalizeWithContext(ctx context.Context, v any) (rec *ErrorRecord) {
	defer func() {
		if r := recover(); r != nil {
			rec = mapMessage(fmt.Sprintf("unclassifiable failure: %v", r), nil)
		}
	}()

	switch f := Classify(v).(type) {
	case AlreadyNormalized:
		return f.Record
	case HTTPFailure:
		rec = mapHTTP(f)
	case ThrownException:
		rec = MapNetworkError(f.Err)
	case PlainMessage:
		var details *DetailSet
		if len(f.Payload) > 0 {
			details = parsePayload(f.Payload).details
		}
		rec = mapMessage(f.Text, details)
	default:
		rec = mapMessage(fmt.Sprint(v), nil)
	}

	if rec.CorrelationID == "" {
		rec.CorrelationID = CorrelationIDFromContext(ctx)
	}
	return rec
}

// NewValidationError builds a 422 record from field errors raised locally,
// e.g. by form validation before any request is sent.
func NewValidationError(message string, fields map[string][]string) *ErrorRecord {
	b := newBuilder(lookupStatus(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity, message)
	for _, d := range StringFieldErrors(fields) {
		b.details.Add(d)
	}
	return b.build()
}
