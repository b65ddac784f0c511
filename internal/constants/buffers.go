package constants

// 缓冲区容量
const (
	// LogBufferCapacity bounds the error logger's in-memory ring buffer.
	LogBufferCapacity = 100
	// RetryQueueCapacity bounds the logger's failed-delivery queue.
	RetryQueueCapacity = 50
	// ReportQueueCapacity bounds the global handler's pending report queue.
	ReportQueueCapacity = 50
	// NotificationCapacity bounds the UI notification list.
	NotificationCapacity = 50
	// StreamHistoryCapacity bounds the websocket stream replay history.
	StreamHistoryCapacity = 500
	// IngestBatchLimit bounds the reports accepted in one batch request.
	IngestBatchLimit = 200
	// StreamReplayDefault is the history replayed to a new stream client without a cursor.
	StreamReplayDefault = 100
)
