package recovery

import (
	"sync"
	"time"

	"faultline-go/internal/constants"
	apperrors "faultline-go/internal/errors"
)

// Occurrence tracks notifications of one error code.
type Occurrence struct {
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Count     int       `json:"count"`
	Notified  bool      `json:"notified"`
}

// SamplingRegistry suppresses repeated notifications of the same code
// inside a window. Critical reports always notify.
type SamplingRegistry struct {
	mu          sync.Mutex
	seen        map[string]*Occurrence
	window      time.Duration
	retention   time.Duration
	lastCleanup time.Time
}

// NewSamplingRegistry returns a registry; zero durations use the defaults (5m window, 24h retention).
func NewSamplingRegistry(window, retention time.Duration) *SamplingRegistry {
	if window <= 0 {
		window = constants.NotificationSampleWindow
	}
	if retention <= 0 {
		retention = constants.SampleRetention
	}
	return &SamplingRegistry{
		seen:        make(map[string]*Occurrence),
		window:      window,
		retention:   retention,
		lastCleanup: time.Now(),
	}
}

// ShouldNotify records an occurrence of code at t and reports whether the
// user should be notified. It returns the number of occurrences folded into
// this notification (1 unless earlier repeats were suppressed).
func (r *SamplingRegistry) ShouldNotify(code string, severity apperrors.Severity, t time.Time) (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maybeCleanup(t)

	occ, ok := r.seen[code]
	if !ok {
		r.seen[code] = &Occurrence{FirstSeen: t, LastSeen: t, Count: 1, Notified: true}
		return true, 1
	}

	if severity == apperrors.SeverityCritical {
		occ.Count++
		occ.LastSeen = t
		occ.Notified = true
		return true, 1
	}

	if t.Sub(occ.LastSeen) < r.window {
		occ.Count++
		occ.LastSeen = t
		return false, 0
	}

	repeats := occ.Count
	occ.Count = 1
	occ.LastSeen = t
	occ.Notified = true
	return true, repeats
}

// Get returns a copy of the occurrence of code.
func (r *SamplingRegistry) Get(code string) (Occurrence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	occ, ok := r.seen[code]
	if !ok {
		return Occurrence{}, false
	}
	return *occ, true
}

// Reset forgets code so its next occurrence notifies again.
func (r *SamplingRegistry) Reset(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.seen, code)
}

// Len returns the number of tracked codes.
func (r *SamplingRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func (r *SamplingRegistry) maybeCleanup(now time.Time) {
	if now.Sub(r.lastCleanup) < time.Hour {
		return
	}
	r.lastCleanup = now
	cutoff := now.Add(-r.retention)
	for code, occ := range r.seen {
		if occ.LastSeen.Before(cutoff) {
			delete(r.seen, code)
		}
	}
}
