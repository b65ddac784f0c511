package recovery

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"faultline-go/internal/constants"
	apperrors "faultline-go/internal/errors"
	"faultline-go/internal/errorlog"
)

// Source tells how a failure reached the handler.
type Source string

const (
	// SourcePanic is a recovered panic; the Go analogue of an uncaught exception.
	SourcePanic Source = "panic"
	// SourceUnhandled is an error returned from background work nobody awaited.
	SourceUnhandled Source = "unhandled"
	// SourceManual is an explicit Report call.
	SourceManual Source = "manual"
)

// DefaultSeverity is the severity assigned when the caller gives none.
func (s Source) DefaultSeverity() apperrors.Severity {
	switch s {
	case SourcePanic:
		return apperrors.SeverityCritical
	case SourceUnhandled:
		return apperrors.SeverityHigh
	}
	return apperrors.SeverityMedium
}

// Report is one queued item of the batch sent to the collector.
type Report struct {
	ID            string             `json:"id"`
	Message       string             `json:"message"`
	Stack         string             `json:"stack,omitempty"`
	Context       map[string]any     `json:"context,omitempty"`
	Severity      apperrors.Severity `json:"severity"`
	Timestamp     time.Time          `json:"timestamp"`
	Source        Source             `json:"source"`
	Code          string             `json:"code"`
	CorrelationID string             `json:"correlationId,omitempty"`
}

// Batch is the body of a flush request.
type Batch struct {
	Errors []Report `json:"errors"`
}

// BatchSender delivers a batch of reports.
type BatchSender interface {
	SendBatch(ctx context.Context, reports []Report) error
}

// BatchSenderFunc adapts a function to BatchSender.
type BatchSenderFunc func(ctx context.Context, reports []Report) error

// SendBatch calls f.
func (f BatchSenderFunc) SendBatch(ctx context.Context, reports []Report) error { return f(ctx, reports) }

// HTTPBatchSender POSTs {"errors": [...]} to Endpoint.
type HTTPBatchSender struct {
	Endpoint string
	Client   *http.Client
	Headers  map[string]string
}

// SendBatch implements BatchSender.
func (s *HTTPBatchSender) SendBatch(ctx context.Context, reports []Report) error {
	return errorlog.PostJSON(ctx, s.Client, s.Endpoint, Batch{Errors: reports}, s.Headers)
}

// Notifier surfaces a report to the user.
type Notifier interface {
	Notify(ctx context.Context, rec *apperrors.ErrorRecord, severity apperrors.Severity)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, rec *apperrors.ErrorRecord, severity apperrors.Severity)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, rec *apperrors.ErrorRecord, severity apperrors.Severity) {
	f(ctx, rec, severity)
}

// captureStack formats the caller's stack, skipping skip frames above it.
func captureStack(skip int) string {
	pcs := make([]uintptr, constants.ErrorStackTraceMaxDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var b strings.Builder
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}
	return b.String()
}
