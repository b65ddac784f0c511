package monitoring

import (
	"context"
	"sync"
	"time"

	"faultline-go/internal/ringbuf"
	log "github.com/sirupsen/logrus"
)

// SlowQueryThreshold 慢查询阈值
const SlowQueryThreshold = 100 * time.Millisecond

// SlowQueryLogger keeps the most recent slow archive/storage operations.
type SlowQueryLogger struct {
	mu        sync.RWMutex
	threshold time.Duration
	queries   *ringbuf.Buffer[SlowQuery]
}

// SlowQuery 慢查询记录
type SlowQuery struct {
	Timestamp time.Time     `json:"timestamp"`
	Operation string        `json:"operation"`
	Duration  time.Duration `json:"duration"`
	Details   string        `json:"details,omitempty"`
	Err       string        `json:"error,omitempty"`
}

// SlowQueryStats 慢查询统计信息
type SlowQueryStats struct {
	Count           int            `json:"count"`
	Threshold       time.Duration  `json:"threshold"`
	AvgDuration     time.Duration  `json:"avg_duration"`
	MaxDuration     time.Duration  `json:"max_duration"`
	OperationCounts map[string]int `json:"operation_counts"`
}

// NewSlowQueryLogger 创建慢查询日志记录器
func NewSlowQueryLogger(threshold time.Duration, maxSize int) *SlowQueryLogger {
	if threshold <= 0 {
		threshold = SlowQueryThreshold
	}
	if maxSize <= 0 {
		maxSize = 100
	}
	return &SlowQueryLogger{
		threshold: threshold,
		queries:   ringbuf.New[SlowQuery](maxSize),
	}
}

// SetThreshold 设置慢查询阈值
func (l *SlowQueryLogger) SetThreshold(threshold time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.threshold = threshold
}

// Threshold 获取慢查询阈值
func (l *SlowQueryLogger) Threshold() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.threshold
}

// Track runs fn and records it when it takes longer than the threshold.
func (l *SlowQueryLogger) Track(ctx context.Context, operation, details string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start)

	if l == nil || duration < l.Threshold() {
		return err
	}
	q := SlowQuery{
		Timestamp: start,
		Operation: operation,
		Duration:  duration,
		Details:   details,
	}
	if err != nil {
		q.Err = err.Error()
	}
	l.queries.Push(q)
	log.WithContext(ctx).WithFields(log.Fields{
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	}).Warn("slow query")
	return err
}

// Recent 获取最近的N条慢查询记录
func (l *SlowQueryLogger) Recent(n int) []SlowQuery {
	all := l.queries.Values()
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	return all[len(all)-n:]
}

// Stats 获取慢查询统计信息
func (l *SlowQueryLogger) Stats() SlowQueryStats {
	all := l.queries.Values()
	stats := SlowQueryStats{
		Count:           len(all),
		Threshold:       l.Threshold(),
		OperationCounts: make(map[string]int),
	}
	if len(all) == 0 {
		return stats
	}
	var total time.Duration
	for _, q := range all {
		total += q.Duration
		if q.Duration > stats.MaxDuration {
			stats.MaxDuration = q.Duration
		}
		stats.OperationCounts[q.Operation]++
	}
	stats.AvgDuration = total / time.Duration(len(all))
	return stats
}

// Clear 清空慢查询记录
func (l *SlowQueryLogger) Clear() {
	l.queries.Clear()
}
