package storage

import (
	"context"
	"time"

	"faultline-go/internal/monitoring"
	"faultline-go/internal/monitoring/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// WithInstrumentation wraps a backend with tracing and metrics instrumentation.
func WithInstrumentation(inner Backend, label string) Backend {
	if inner == nil {
		return nil
	}
	if label == "" {
		label = "unknown"
	}
	return &instrumentedBackend{Backend: inner, label: label}
}

// Unwrap returns the backend below any instrumentation.
func Unwrap(b Backend) Backend {
	if ib, ok := b.(*instrumentedBackend); ok {
		return ib.Backend
	}
	return b
}

type instrumentedBackend struct {
	Backend
	label string
}

func (i *instrumentedBackend) Health(ctx context.Context) error {
	return i.instrument(ctx, "health", func(ctx context.Context) error {
		return i.Backend.Health(ctx)
	})
}

func (i *instrumentedBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var result []byte
	err := i.instrument(ctx, "get", func(ctx context.Context) error {
		var innerErr error
		result, innerErr = i.Backend.Get(ctx, key)
		return innerErr
	})
	return result, err
}

func (i *instrumentedBackend) Set(ctx context.Context, key string, value []byte) error {
	return i.instrument(ctx, "set", func(ctx context.Context) error {
		return i.Backend.Set(ctx, key, value)
	})
}

func (i *instrumentedBackend) Delete(ctx context.Context, key string) error {
	return i.instrument(ctx, "delete", func(ctx context.Context) error {
		return i.Backend.Delete(ctx, key)
	})
}

func (i *instrumentedBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var result []string
	err := i.instrument(ctx, "list", func(ctx context.Context) error {
		var innerErr error
		result, innerErr = i.Backend.List(ctx, prefix)
		return innerErr
	})
	return result, err
}

func (i *instrumentedBackend) instrument(ctx context.Context, operation string, fn func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(ctx, "storage", i.label+"/"+operation)
	span.SetAttributes(
		attribute.String("storage.backend", i.label),
		attribute.String("storage.operation", operation),
	)
	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)
	// a missing key is an answer, not a failure
	if err != nil && !IsNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	result := "success"
	switch {
	case IsNotFound(err):
		result = "not_found"
	case err != nil:
		result = "failure"
	}
	monitoring.StorageOperations.WithLabelValues(i.label, operation, result).Inc()
	monitoring.StorageDuration.WithLabelValues(i.label, operation).Observe(duration.Seconds())
	return err
}
