package monitoring

import (
	"sync"
	"sync/atomic"
	"time"
)

// IngestTracker keeps in-process counters for collector ingest requests:
// totals, per-endpoint and per-status breakdowns and a sliding window.
type IngestTracker struct {
	mu sync.RWMutex

	total    atomic.Int64
	accepted atomic.Int64
	rejected atomic.Int64

	totalDuration atomic.Int64 // 纳秒
	maxDuration   atomic.Int64 // 纳秒

	endpoints map[string]*endpointCounters
	statuses  map[int]*atomic.Int64

	window *slidingWindow
	start  time.Time
	now    func() time.Time
}

type endpointCounters struct {
	requests atomic.Int64
	accepted atomic.Int64
	rejected atomic.Int64
	duration atomic.Int64
}

// NewIngestTracker splits window into buckets; zero values pick one
// minute and 60 buckets.
func NewIngestTracker(window time.Duration, buckets int) *IngestTracker {
	if window <= 0 {
		window = time.Minute
	}
	if buckets <= 0 {
		buckets = 60
	}
	return &IngestTracker{
		endpoints: make(map[string]*endpointCounters),
		statuses:  make(map[int]*atomic.Int64),
		window: &slidingWindow{
			span:    window,
			buckets: make([]windowBucket, buckets),
		},
		start: time.Now(),
		now:   time.Now,
	}
}

// Record counts one request. A status below 400 counts as accepted.
func (t *IngestTracker) Record(endpoint string, status int, d time.Duration) {
	ok := status > 0 && status < 400
	ns := d.Nanoseconds()

	t.total.Add(1)
	if ok {
		t.accepted.Add(1)
	} else {
		t.rejected.Add(1)
	}
	t.totalDuration.Add(ns)
	for {
		old := t.maxDuration.Load()
		if ns <= old || t.maxDuration.CompareAndSwap(old, ns) {
			break
		}
	}

	ep := t.endpoint(endpoint)
	ep.requests.Add(1)
	if ok {
		ep.accepted.Add(1)
	} else {
		ep.rejected.Add(1)
	}
	ep.duration.Add(ns)

	t.statusCounter(status).Add(1)
	t.window.record(t.now(), ok)
}

func (t *IngestTracker) endpoint(name string) *endpointCounters {
	t.mu.RLock()
	ep, ok := t.endpoints[name]
	t.mu.RUnlock()
	if ok {
		return ep
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if ep, ok = t.endpoints[name]; !ok {
		ep = &endpointCounters{}
		t.endpoints[name] = ep
	}
	return ep
}

func (t *IngestTracker) statusCounter(status int) *atomic.Int64 {
	t.mu.RLock()
	c, ok := t.statuses[status]
	t.mu.RUnlock()
	if ok {
		return c
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok = t.statuses[status]; !ok {
		c = &atomic.Int64{}
		t.statuses[status] = c
	}
	return c
}

// IngestSnapshot is a point-in-time copy of the tracker.
type IngestSnapshot struct {
	Requests      int64                     `json:"requests"`
	Accepted      int64                     `json:"accepted"`
	Rejected      int64                     `json:"rejected"`
	AvgDurationMs float64                   `json:"avgDurationMs"`
	MaxDurationMs float64                   `json:"maxDurationMs"`
	Endpoints     map[string]EndpointIngest `json:"endpoints"`
	Statuses      map[int]int64             `json:"statuses"`
	Window        WindowIngest              `json:"window"`
	UptimeSec     int64                     `json:"uptimeSec"`
}

// EndpointIngest is the per-endpoint part of a snapshot.
type EndpointIngest struct {
	Requests      int64   `json:"requests"`
	Accepted      int64   `json:"accepted"`
	Rejected      int64   `json:"rejected"`
	AvgDurationMs float64 `json:"avgDurationMs"`
}

// WindowIngest covers only the sliding window.
type WindowIngest struct {
	SpanSec  int64   `json:"spanSec"`
	Requests int64   `json:"requests"`
	Rejected int64   `json:"rejected"`
	PerSec   float64 `json:"perSec"`
}

// Snapshot copies the current counters.
func (t *IngestTracker) Snapshot() IngestSnapshot {
	requests := t.total.Load()
	out := IngestSnapshot{
		Requests:      requests,
		Accepted:      t.accepted.Load(),
		Rejected:      t.rejected.Load(),
		AvgDurationMs: avgMillis(t.totalDuration.Load(), requests),
		MaxDurationMs: float64(t.maxDuration.Load()) / float64(time.Millisecond),
		Endpoints:     make(map[string]EndpointIngest),
		Statuses:      make(map[int]int64),
		Window:        t.window.summary(t.now()),
		UptimeSec:     int64(t.now().Sub(t.start) / time.Second),
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	for name, ep := range t.endpoints {
		n := ep.requests.Load()
		out.Endpoints[name] = EndpointIngest{
			Requests:      n,
			Accepted:      ep.accepted.Load(),
			Rejected:      ep.rejected.Load(),
			AvgDurationMs: avgMillis(ep.duration.Load(), n),
		}
	}
	for status, c := range t.statuses {
		out.Statuses[status] = c.Load()
	}
	return out
}

func avgMillis(totalNs, n int64) float64 {
	if n == 0 {
		return 0
	}
	return float64(totalNs) / float64(n) / float64(time.Millisecond)
}

// 时间窗口统计
type slidingWindow struct {
	mu      sync.Mutex
	span    time.Duration
	buckets []windowBucket
	current int
}

type windowBucket struct {
	start    time.Time
	requests int64
	rejected int64
}

func (w *slidingWindow) width() time.Duration {
	return w.span / time.Duration(len(w.buckets))
}

func (w *slidingWindow) record(now time.Time, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b := &w.buckets[w.current]
	if now.Sub(b.start) >= w.width() {
		w.current = (w.current + 1) % len(w.buckets)
		b = &w.buckets[w.current]
		*b = windowBucket{start: now}
	}
	b.requests++
	if !ok {
		b.rejected++
	}
}

func (w *slidingWindow) summary(now time.Time) WindowIngest {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := WindowIngest{SpanSec: int64(w.span / time.Second)}
	for _, b := range w.buckets {
		if b.start.IsZero() || now.Sub(b.start) > w.span {
			continue
		}
		out.Requests += b.requests
		out.Rejected += b.rejected
	}
	if secs := w.span.Seconds(); secs > 0 {
		out.PerSec = float64(out.Requests) / secs
	}
	return out
}
