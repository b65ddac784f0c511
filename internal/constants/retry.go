package constants

import "time"

// 重试策略常量
const (
	// RetryDrainInterval is the fixed pause between sequential retry-queue deliveries.
	RetryDrainInterval = 1 * time.Second

	// DefaultRateLimitWaitSeconds is used when a 429 carries no retry-after signal.
	DefaultRateLimitWaitSeconds = 60

	// 持久化重试（UI 状态写入）
	PersistInitialInterval = 100 * time.Millisecond
	PersistMaxInterval     = 2 * time.Second
	PersistMaxElapsed      = 10 * time.Second

	// SQLite busy 重试
	StoreRetryInitialInterval = 50 * time.Millisecond
	StoreRetryMaxInterval     = 2 * time.Second
	StoreRetryMaxElapsed      = 10 * time.Second
)

// 错误处理配置
const (
	MaxErrorMessageLength   = 200
	ErrorStackTraceMaxDepth = 32

	// NotificationSampleWindow suppresses repeat notifications for the same code.
	NotificationSampleWindow = 5 * time.Minute
	// SampleRetention is how long sampling records are kept.
	SampleRetention = 24 * time.Hour
)
