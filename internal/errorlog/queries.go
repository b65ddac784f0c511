package errorlog

import (
	"time"

	apperrors "faultline-go/internal/errors"
	"faultline-go/internal/monitoring"
)

// Stats aggregates the buffered entries.
type Stats struct {
	Total      int                        `json:"total"`
	ByCode     map[string]int             `json:"byCode"`
	BySeverity map[apperrors.Severity]int `json:"bySeverity"`
	ByCategory map[apperrors.Category]int `json:"byCategory"`
	LastHour   int                        `json:"lastHour"`
	RetryQueue int                        `json:"retryQueue"`
	Remote     bool                       `json:"remote"`
}

// Entries returns the buffered entries, oldest first.
func (l *Logger) Entries() []*LogEntry {
	return l.buffer.Values()
}

// Len returns the number of buffered entries.
func (l *Logger) Len() int { return l.buffer.Len() }

// ByCode returns the buffered entries with the given code, oldest first.
func (l *Logger) ByCode(code string) []*LogEntry {
	return l.filter(func(e *LogEntry) bool { return e.Error.Code == code })
}

// BySeverity returns the buffered entries at severity s, oldest first.
func (l *Logger) BySeverity(s apperrors.Severity) []*LogEntry {
	return l.filter(func(e *LogEntry) bool { return e.Error.Severity == s })
}

// AtLeast returns the buffered entries at or above severity s.
func (l *Logger) AtLeast(s apperrors.Severity) []*LogEntry {
	rank := s.Rank()
	return l.filter(func(e *LogEntry) bool { return e.Error.Severity.Rank() >= rank })
}

// Recent returns up to n of the newest entries, oldest first.
func (l *Logger) Recent(n int) []*LogEntry {
	all := l.buffer.Values()
	if n <= 0 {
		return nil
	}
	if n > len(all) {
		n = len(all)
	}
	return all[len(all)-n:]
}

func (l *Logger) filter(match func(*LogEntry) bool) []*LogEntry {
	var out []*LogEntry
	for _, e := range l.buffer.Values() {
		if match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Stats computes counts over the buffer.
func (l *Logger) Stats() Stats {
	entries := l.buffer.Values()
	stats := Stats{
		Total:      len(entries),
		ByCode:     make(map[string]int),
		BySeverity: make(map[apperrors.Severity]int),
		ByCategory: make(map[apperrors.Category]int),
		RetryQueue: l.retry.Len(),
		Remote:     l.Remote(),
	}
	cutoff := l.now().Add(-time.Hour)
	for _, e := range entries {
		stats.ByCode[e.Error.Code]++
		stats.BySeverity[e.Error.Severity]++
		stats.ByCategory[e.Error.Category]++
		if e.LoggedAt.After(cutoff) {
			stats.LastHour++
		}
	}
	return stats
}

// RetryQueue returns the entries awaiting redelivery, oldest first.
func (l *Logger) RetryQueue() []*LogEntry {
	return l.retry.Values()
}

// Clear empties the buffer. The retry queue is left alone so undelivered
// entries are not lost.
func (l *Logger) Clear() {
	l.mu.Lock()
	l.buffer.Clear()
	l.mu.Unlock()
	monitoring.LogBufferSize.Set(0)
}
