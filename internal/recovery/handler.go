// Package recovery is the process-wide safety net: it catches panics and
// errors from unawaited goroutines, logs them, notifies the user and batches
// reports to the collector.
package recovery

import (
	"context"
	"net/http"
	"sync"
	"time"

	"faultline-go/internal/constants"
	apperrors "faultline-go/internal/errors"
	"faultline-go/internal/errorlog"
	"faultline-go/internal/events"
	"faultline-go/internal/monitoring"
	"faultline-go/internal/ringbuf"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Options configures a Handler.
type Options struct {
	// Endpoint receives batched reports. Ignored when Sender is set.
	Endpoint string
	Headers  map[string]string
	Sender   BatchSender

	Logger   *errorlog.Logger
	Notifier Notifier
	Sampling *SamplingRegistry
	Events   events.Publisher

	QueueSize     int
	FlushInterval time.Duration
	FlushTimeout  time.Duration
	Now           func() time.Time
}

// Stats is a snapshot of handler activity.
type Stats struct {
	Total         int                        `json:"total"`
	BySeverity    map[apperrors.Severity]int `json:"bySeverity"`
	BySource      map[Source]int             `json:"bySource"`
	Queued        int                        `json:"queued"`
	Dropped       int                        `json:"dropped"`
	Flushed       int                        `json:"flushed"`
	FlushFailures int                        `json:"flushFailures"`
	Notified      int                        `json:"notified"`
	Suppressed    int                        `json:"suppressed"`
}

// Handler is constructed once at startup and passed to whoever needs it.
type Handler struct {
	opts   Options
	sender BatchSender
	queue  *ringbuf.Buffer[Report]

	flushMu sync.Mutex
	bg      sync.WaitGroup

	mu    sync.Mutex
	stats Stats
}

// New builds a handler.
func New(opts Options) *Handler {
	if opts.QueueSize <= 0 {
		opts.QueueSize = constants.ReportQueueCapacity
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = constants.FlushInterval
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = constants.FlushTimeout
	}
	if opts.Sampling == nil {
		opts.Sampling = NewSamplingRegistry(0, 0)
	}
	h := &Handler{
		opts:   opts,
		sender: opts.Sender,
		queue:  ringbuf.New[Report](opts.QueueSize),
		stats: Stats{
			BySeverity: make(map[apperrors.Severity]int),
			BySource:   make(map[Source]int),
		},
	}
	if h.sender == nil && opts.Endpoint != "" {
		h.sender = &HTTPBatchSender{
			Endpoint: opts.Endpoint,
			Client:   &http.Client{Timeout: opts.FlushTimeout},
			Headers:  opts.Headers,
		}
	}
	return h
}

func (h *Handler) now() time.Time {
	if h.opts.Now != nil {
		return h.opts.Now()
	}
	return time.Now()
}

// Report is the manual entry point for call sites that caught and classified
// a failure themselves. An empty severity uses the medium default.
func (h *Handler) Report(ctx context.Context, err any, fields map[string]any, severity apperrors.Severity) Report {
	return h.capture(ctx, SourceManual, err, captureStack(1), fields, severity)
}

func (h *Handler) capture(ctx context.Context, source Source, v any, stack string, fields map[string]any, severity apperrors.Severity) Report {
	if ctx == nil {
		ctx = context.Background()
	}
	if !severity.Valid() {
		severity = source.DefaultSeverity()
	}

	var rec *apperrors.ErrorRecord
	if h.opts.Logger != nil {
		rec = h.opts.Logger.Log(ctx, v, errorlog.Context{Extra: fields}).Error
	} else {
		rec = apperrors.NormalizeWithContext(ctx, v)
	}

	report := Report{
		ID:            uuid.NewString(),
		Message:       rec.Message,
		Stack:         stack,
		Context:       fields,
		Severity:      severity,
		Timestamp:     h.now().UTC(),
		Source:        source,
		Code:          rec.Code,
		CorrelationID: rec.CorrelationID,
	}

	logFields := log.Fields{
		"report_id": report.ID,
		"source":    source,
		"severity":  severity,
		"code":      rec.Code,
	}
	for k, v := range fields {
		logFields["ctx_"+k] = v
	}
	if stack != "" && severity == apperrors.SeverityCritical {
		logFields["stack"] = stack
	}
	log.WithFields(logFields).Error(rec.Message)

	_, dropped := h.queue.Push(report)
	monitoring.ReportsTotal.WithLabelValues(string(source), string(severity)).Inc()
	monitoring.ReportQueueDepth.Set(float64(h.queue.Len()))

	h.mu.Lock()
	h.stats.Total++
	h.stats.BySeverity[severity]++
	h.stats.BySource[source]++
	if dropped {
		h.stats.Dropped++
	}
	h.mu.Unlock()

	if h.opts.Events != nil {
		h.opts.Events.Publish(ctx, events.TopicErrorReported, report, map[string]string{
			"source":   string(source),
			"severity": string(severity),
		})
	}

	h.notify(ctx, source, rec, severity)

	if severity == apperrors.SeverityCritical && h.sender != nil {
		h.bg.Add(1)
		go func() {
			defer h.bg.Done()
			h.sendImmediate(report)
		}()
	}
	return report
}

// notify shows the failure to the user. Only manual reports are sampled;
// panics and unhandled errors always notify unless their severity is low.
func (h *Handler) notify(ctx context.Context, source Source, rec *apperrors.ErrorRecord, severity apperrors.Severity) {
	if severity == apperrors.SeverityLow || h.opts.Notifier == nil {
		return
	}
	ok := true
	if source == SourceManual {
		ok, _ = h.opts.Sampling.ShouldNotify(rec.Code, severity, h.now())
	}
	h.mu.Lock()
	if ok {
		h.stats.Notified++
	} else {
		h.stats.Suppressed++
	}
	h.mu.Unlock()
	if !ok {
		monitoring.NotificationsTotal.WithLabelValues(string(rec.Category), "suppressed").Inc()
		return
	}
	monitoring.NotificationsTotal.WithLabelValues(string(rec.Category), "sent").Inc()
	h.opts.Notifier.Notify(ctx, rec, severity)
}

// Reports returns the queued reports, oldest first.
func (h *Handler) Reports() []Report {
	return h.queue.Values()
}

// Stats returns counters and the current queue depth.
func (h *Handler) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.stats
	out.BySeverity = make(map[apperrors.Severity]int, len(h.stats.BySeverity))
	for k, v := range h.stats.BySeverity {
		out.BySeverity[k] = v
	}
	out.BySource = make(map[Source]int, len(h.stats.BySource))
	for k, v := range h.stats.BySource {
		out.BySource[k] = v
	}
	out.Queued = h.queue.Len()
	return out
}

// Wait blocks until immediate deliveries started by critical reports finish.
func (h *Handler) Wait() {
	h.bg.Wait()
}
