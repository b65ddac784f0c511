package constants

import "time"

const (
	// DeliveryTimeout bounds a single remote delivery attempt of a log entry.
	DeliveryTimeout = 5 * time.Second
	// FlushTimeout bounds a batched flush of the global handler queue.
	FlushTimeout = 10 * time.Second
	// FlushInterval is the period of the global handler batch flush.
	FlushInterval = 30 * time.Second
	// HealthCheckInterval is the default system health probe period.
	HealthCheckInterval = 1 * time.Minute
	// HealthCheckTimeout bounds each service probe.
	HealthCheckTimeout = 5 * time.Second
	// StorageTimeout bounds a single key-value storage call.
	StorageTimeout = 5 * time.Second
	// ServerShutdownTimeout bounds graceful HTTP server shutdown.
	ServerShutdownTimeout = 30 * time.Second
)
