package recovery

import (
	"context"
	"time"

	"faultline-go/internal/monitoring"
	log "github.com/sirupsen/logrus"
)

// Run flushes the queue every FlushInterval until ctx is done, then performs
// a final flush bounded by FlushTimeout.
func (h *Handler) Run(ctx context.Context) {
	ticker := time.NewTicker(h.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), h.opts.FlushTimeout)
			if err := h.flush(shutdownCtx, "shutdown"); err != nil {
				log.WithError(err).Warn("final report flush failed")
			}
			cancel()
			h.Wait()
			return
		case <-ticker.C:
			if err := h.flush(ctx, "periodic"); err != nil {
				log.WithError(err).Debug("periodic report flush failed")
			}
		}
	}
}

// Flush sends every queued report in one batch. On failure the batch is put
// back in front of anything queued meanwhile. Without a sender it is a no-op
// and the queue only serves as local history.
func (h *Handler) Flush(ctx context.Context) error {
	return h.flush(ctx, "manual")
}

func (h *Handler) flush(ctx context.Context, kind string) error {
	if h.sender == nil {
		return nil
	}
	h.flushMu.Lock()
	defer h.flushMu.Unlock()

	batch := h.queue.Drain()
	if len(batch) == 0 {
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, h.opts.FlushTimeout)
	err := h.sender.SendBatch(sendCtx, batch)
	cancel()
	monitoring.FlushesTotal.WithLabelValues(kind, monitoring.ResultLabel(err)).Inc()

	h.mu.Lock()
	if err != nil {
		h.stats.FlushFailures++
	} else {
		h.stats.Flushed += len(batch)
	}
	h.mu.Unlock()

	if err != nil {
		if dropped := h.queue.PushFront(batch...); dropped > 0 {
			h.mu.Lock()
			h.stats.Dropped += dropped
			h.mu.Unlock()
			log.WithField("dropped", dropped).Warn("report queue overflow after failed flush")
		}
	}
	monitoring.ReportQueueDepth.Set(float64(h.queue.Len()))
	return err
}

// sendImmediate delivers a single critical report out of band. It claims
// the report by taking it out of the queue first, so a report already sent
// by a batch flush is not sent again. It does not wait for a running flush.
// On failure the report goes back to the front of the queue.
func (h *Handler) sendImmediate(r Report) {
	if h.queue.RemoveFunc(func(q Report) bool { return q.ID == r.ID }) == 0 {
		return
	}
	monitoring.ReportQueueDepth.Set(float64(h.queue.Len()))

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.FlushTimeout)
	defer cancel()

	err := h.sender.SendBatch(ctx, []Report{r})
	monitoring.FlushesTotal.WithLabelValues("immediate", monitoring.ResultLabel(err)).Inc()
	if err != nil {
		log.WithFields(log.Fields{"report_id": r.ID, "error": err}).Warn("immediate critical report delivery failed, left for next flush")
		if dropped := h.queue.PushFront(r); dropped > 0 {
			h.mu.Lock()
			h.stats.Dropped += dropped
			h.mu.Unlock()
		}
		monitoring.ReportQueueDepth.Set(float64(h.queue.Len()))
		return
	}
	h.mu.Lock()
	h.stats.Flushed++
	h.mu.Unlock()
}
