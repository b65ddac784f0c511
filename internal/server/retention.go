package server

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"faultline-go/internal/recovery"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

const retentionRunTimeout = 5 * time.Minute

// Cleaner removes archived entries past retention.
type Cleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// RetentionScheduler runs archive cleanup on a cron schedule. Overlapping
// runs are skipped.
type RetentionScheduler struct {
	cron    *cron.Cron
	archive Cleaner
	guard   *recovery.Handler
	removed atomic.Int64
	runs    atomic.Int64
}

// NewRetentionScheduler parses schedule (standard five fields or a
// descriptor like @daily). guard may be nil.
func NewRetentionScheduler(schedule string, archive Cleaner, guard *recovery.Handler) (*RetentionScheduler, error) {
	r := &RetentionScheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		archive: archive,
		guard:   guard,
	}
	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start begins scheduling in the background.
func (r *RetentionScheduler) Start() {
	r.cron.Start()
	entries := r.cron.Entries()
	if len(entries) > 0 {
		log.WithField("next_run", entries[0].Next).Info("retention cleanup scheduled")
	}
}

// Stop prevents further runs and waits for a running one to finish.
func (r *RetentionScheduler) Stop() {
	<-r.cron.Stop().Done()
}

// RunNow performs one cleanup synchronously.
func (r *RetentionScheduler) RunNow(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := r.archive.Cleanup(ctx)
	r.runs.Add(1)
	if err != nil {
		return 0, err
	}
	r.removed.Add(n)
	log.WithFields(log.Fields{
		"removed":     n,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("retention cleanup finished")
	return n, nil
}

// Totals returns completed runs and entries removed since start.
func (r *RetentionScheduler) Totals() (runs, removed int64) {
	return r.runs.Load(), r.removed.Load()
}

func (r *RetentionScheduler) run() {
	if r.guard != nil {
		defer r.guard.Recover("retention-cleanup")
	}
	ctx, cancel := context.WithTimeout(context.Background(), retentionRunTimeout)
	defer cancel()
	if _, err := r.RunNow(ctx); err != nil {
		log.WithError(err).Error("retention cleanup failed")
	}
}
