package errorlog

import (
	"context"
	"runtime"
	"time"

	apperrors "faultline-go/internal/errors"
	"faultline-go/internal/monitoring/tracing"
	"github.com/google/uuid"
)

// Context is the environment metadata attached to a log entry. Non-empty
// fields of a per-call Context override the logger defaults.
type Context struct {
	UserAgent string         `json:"userAgent,omitempty"`
	URL       string         `json:"url,omitempty"`
	UserID    string         `json:"userId,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

func (c Context) merge(o Context) Context {
	if o.UserAgent != "" {
		c.UserAgent = o.UserAgent
	}
	if o.URL != "" {
		c.URL = o.URL
	}
	if o.UserID != "" {
		c.UserID = o.UserID
	}
	if o.SessionID != "" {
		c.SessionID = o.SessionID
	}
	if len(o.Extra) > 0 {
		extra := make(map[string]any, len(c.Extra)+len(o.Extra))
		for k, v := range c.Extra {
			extra[k] = v
		}
		for k, v := range o.Extra {
			extra[k] = v
		}
		c.Extra = extra
	}
	return c
}

// MemorySnapshot is the runtime memory state at logging time.
type MemorySnapshot struct {
	HeapAlloc    uint64 `json:"heapAlloc"`
	HeapSys      uint64 `json:"heapSys"`
	NumGC        uint32 `json:"numGC"`
	NumGoroutine int    `json:"numGoroutine"`
}

// Timing is the process timing state at logging time.
type Timing struct {
	UptimeMs int64 `json:"uptimeMs"`
}

// LogEntry is the unit that is buffered, delivered and exported.
type LogEntry struct {
	ID       string                 `json:"id"`
	Error    *apperrors.ErrorRecord `json:"error"`
	LoggedAt time.Time              `json:"loggedAt"`
	Context
	Memory  *MemorySnapshot `json:"memory,omitempty"`
	Timing  *Timing         `json:"timing,omitempty"`
	TraceID string          `json:"traceId,omitempty"`
}

func (l *Logger) newEntry(ctx context.Context, rec *apperrors.ErrorRecord, meta []Context) *LogEntry {
	env := l.opts.Defaults
	for _, m := range meta {
		env = env.merge(m)
	}
	now := l.now()
	entry := &LogEntry{
		ID:       uuid.NewString(),
		Error:    rec,
		LoggedAt: now,
		Context:  env,
		Timing:   &Timing{UptimeMs: now.Sub(l.started).Milliseconds()},
		TraceID:  tracing.TraceID(ctx),
	}
	if !l.opts.DisableRuntimeSnapshot {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		entry.Memory = &MemorySnapshot{
			HeapAlloc:    ms.HeapAlloc,
			HeapSys:      ms.HeapSys,
			NumGC:        ms.NumGC,
			NumGoroutine: runtime.NumGoroutine(),
		}
	}
	return entry
}
