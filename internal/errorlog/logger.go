// Package errorlog records normalized errors in a bounded in-memory buffer and
// delivers them to a remote collector on a best-effort basis.
package errorlog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"faultline-go/internal/constants"
	apperrors "faultline-go/internal/errors"
	"faultline-go/internal/events"
	"faultline-go/internal/monitoring"
	"faultline-go/internal/ringbuf"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Options configures a Logger. Zero values fall back to the package defaults.
type Options struct {
	// Endpoint is the collector URL. Ignored when Deliverer is set; when both
	// are empty the logger runs local-only and never queues retries.
	Endpoint  string
	Headers   map[string]string
	Deliverer Deliverer

	BufferSize      int
	RetryQueueSize  int
	DeliveryTimeout time.Duration
	RetryInterval   time.Duration

	Defaults               Context
	Events                 events.Publisher
	DisableRuntimeSnapshot bool
	Now                    func() time.Time
}

// Logger is safe for concurrent use.
type Logger struct {
	opts      Options
	deliverer Deliverer
	buffer    *ringbuf.Buffer[*LogEntry]
	retry     *ringbuf.Buffer[*LogEntry]
	limiter   *rate.Limiter
	started   time.Time

	mu       sync.Mutex
	draining atomic.Bool
	inflight sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// New builds a logger from opts.
func New(opts Options) *Logger {
	if opts.BufferSize <= 0 {
		opts.BufferSize = constants.LogBufferCapacity
	}
	if opts.RetryQueueSize <= 0 {
		opts.RetryQueueSize = constants.RetryQueueCapacity
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = constants.DeliveryTimeout
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = constants.RetryDrainInterval
	}
	if opts.Defaults.UserAgent == "" {
		opts.Defaults.UserAgent = constants.UserAgent()
	}

	l := &Logger{
		opts:      opts,
		deliverer: opts.Deliverer,
		buffer:    ringbuf.New[*LogEntry](opts.BufferSize),
		retry:     ringbuf.New[*LogEntry](opts.RetryQueueSize),
		limiter:   rate.NewLimiter(rate.Every(opts.RetryInterval), 1),
	}
	if l.deliverer == nil && opts.Endpoint != "" {
		l.deliverer = NewHTTPDeliverer(opts.Endpoint, opts.Headers)
	}
	l.started = l.now()
	l.ctx, l.cancel = context.WithCancel(context.Background())
	return l
}

func (l *Logger) now() time.Time {
	if l.opts.Now != nil {
		return l.opts.Now()
	}
	return time.Now()
}

// Remote reports whether entries are delivered to a collector.
func (l *Logger) Remote() bool { return l.deliverer != nil }

// Log normalizes v, buffers the resulting entry and starts delivery in the
// background. It never blocks on the network.
func (l *Logger) Log(ctx context.Context, v any, meta ...Context) *LogEntry {
	if ctx == nil {
		ctx = context.Background()
	}
	rec := apperrors.NormalizeWithContext(ctx, v)
	entry := l.newEntry(ctx, rec, meta)

	// Holding mu across push keeps buffer order identical to call order
	// even when entries are built concurrently.
	l.mu.Lock()
	l.buffer.Push(entry)
	l.mu.Unlock()

	monitoring.LogBufferSize.Set(float64(l.buffer.Len()))
	monitoring.ErrorsLoggedTotal.WithLabelValues(rec.Code, string(rec.Category), string(rec.Severity)).Inc()
	logEntry(entry)

	if l.opts.Events != nil {
		l.opts.Events.Publish(ctx, events.TopicErrorLogged, entry, map[string]string{
			"code":     rec.Code,
			"severity": string(rec.Severity),
		})
	}

	if l.deliverer != nil && l.ctx.Err() == nil {
		l.inflight.Add(1)
		go l.deliver(entry)
	}
	return entry
}

func logEntry(e *LogEntry) {
	rec := e.Error
	fields := log.Fields{
		"entry_id":   e.ID,
		"code":       rec.Code,
		"category":   rec.Category,
		"severity":   rec.Severity,
		"status":     rec.HTTPStatus,
		"retryable":  rec.Retryable,
		"user_agent": e.UserAgent,
	}
	if rec.CorrelationID != "" {
		fields["correlation_id"] = rec.CorrelationID
	}
	if e.TraceID != "" {
		fields["trace_id"] = e.TraceID
	}
	if e.URL != "" {
		fields["url"] = e.URL
	}
	entry := log.WithFields(fields)
	switch rec.Severity {
	case apperrors.SeverityCritical, apperrors.SeverityHigh:
		entry.Error(rec.Message)
	case apperrors.SeverityMedium:
		entry.Warn(rec.Message)
	default:
		entry.Info(rec.Message)
	}
}

func (l *Logger) deliver(entry *LogEntry) {
	defer l.inflight.Done()

	if err := l.attempt(entry); err != nil {
		log.WithFields(log.Fields{"entry_id": entry.ID, "error": err}).Debug("error delivery failed, queued for retry")
		monitoring.DeliveriesTotal.WithLabelValues("direct", "failure").Inc()
		l.enqueueRetry(entry)
		return
	}
	monitoring.DeliveriesTotal.WithLabelValues("direct", "success").Inc()
	l.triggerDrain()
}

func (l *Logger) attempt(entry *LogEntry) error {
	ctx, cancel := context.WithTimeout(l.ctx, l.opts.DeliveryTimeout)
	defer cancel()
	return l.deliverer.Deliver(ctx, entry)
}

func (l *Logger) enqueueRetry(entry *LogEntry) {
	if evicted, ok := l.retry.Push(entry); ok {
		monitoring.RetryQueueEvictions.Inc()
		log.WithField("entry_id", evicted.ID).Warn("retry queue full, dropped oldest entry")
	}
	monitoring.RetryQueueDepth.Set(float64(l.retry.Len()))
}

// triggerDrain starts the single drainer unless one is already running.
func (l *Logger) triggerDrain() {
	if l.retry.Len() == 0 || l.ctx.Err() != nil {
		return
	}
	if !l.draining.CompareAndSwap(false, true) {
		return
	}
	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		defer l.draining.Store(false)
		l.drain()
	}()
}

// drain delivers queued entries one at a time, oldest first, paced by the
// limiter. The first failure stops the drain and leaves that entry at the head.
func (l *Logger) drain() {
	for {
		head, ok := l.retry.Peek()
		if !ok {
			return
		}
		if err := l.limiter.Wait(l.ctx); err != nil {
			return
		}
		if err := l.attempt(head); err != nil {
			monitoring.DeliveriesTotal.WithLabelValues("retry", "failure").Inc()
			log.WithFields(log.Fields{"entry_id": head.ID, "queued": l.retry.Len(), "error": err}).Debug("retry drain stopped")
			return
		}
		monitoring.DeliveriesTotal.WithLabelValues("retry", "success").Inc()
		l.retry.RemoveFunc(func(e *LogEntry) bool { return e == head })
		monitoring.RetryQueueDepth.Set(float64(l.retry.Len()))
	}
}

// Wait blocks until all in-flight deliveries and drains have finished.
func (l *Logger) Wait() {
	l.inflight.Wait()
}

// Close stops accepting deliveries, aborts pending ones and waits for them.
// Buffered entries stay queryable.
func (l *Logger) Close() {
	l.cancel()
	l.inflight.Wait()
}
