package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "faultline-go/internal/errors"
	"faultline-go/internal/errorlog"
	"faultline-go/internal/events"
	"faultline-go/internal/recovery"
	log "github.com/sirupsen/logrus"
)

// demoClient drives the client pipeline with synthetic failures so the
// collector, notifications and streams have something to show.
type demoClient struct {
	logger  *errorlog.Logger
	handler *recovery.Handler
	events  events.Publisher
	step    int
}

type demoScenario struct {
	name string
	fire func(ctx context.Context, d *demoClient)
}

var demoScenarios = []demoScenario{
	{"upstream-503", func(ctx context.Context, d *demoClient) {
		body := []byte(`{"error":{"message":"backend is warming up"}}`)
		d.logger.Log(ctx, apperrors.MapHTTPError(http.StatusServiceUnavailable, body), errorlog.Context{URL: "/api/orders"})
	}},
	{"network", func(ctx context.Context, d *demoClient) {
		d.logger.Log(ctx, errors.New("Network request failed"), errorlog.Context{URL: "/api/profile"})
	}},
	{"validation", func(ctx context.Context, d *demoClient) {
		rec := apperrors.NewValidationError("Invalid input", map[string][]string{
			"email": {"must be a valid address"},
		})
		d.handler.Report(ctx, rec, map[string]any{"form": "signup"}, apperrors.SeverityLow)
	}},
	{"async-failure", func(ctx context.Context, d *demoClient) {
		d.handler.GoErr(ctx, "demo-sync", func(context.Context) error {
			return fmt.Errorf("sync job %d: %w", d.step, context.DeadlineExceeded)
		})
	}},
	{"panic", func(_ context.Context, d *demoClient) {
		d.handler.Go("demo-render", func() {
			var widgets map[string][]int
			_ = widgets["header"][d.step]
		})
	}},
	{"connectivity", func(ctx context.Context, d *demoClient) {
		if d.events == nil {
			return
		}
		d.events.Publish(ctx, events.TopicConnectivityOffline, nil, map[string]string{"source": "demo"})
		time.AfterFunc(2*time.Second, func() {
			d.events.Publish(context.Background(), events.TopicConnectivityOnline, nil, map[string]string{"source": "demo"})
		})
	}},
}

// fire runs the next scenario in rotation and returns its name.
func (d *demoClient) fire(ctx context.Context) string {
	sc := demoScenarios[d.step%len(demoScenarios)]
	d.step++
	sc.fire(ctx, d)
	return sc.name
}

func (d *demoClient) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.WithField("scenario", d.fire(ctx)).Debug("demo scenario fired")
		}
	}
}
