package uistate

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"faultline-go/internal/constants"
	"faultline-go/internal/monitoring"
	"faultline-go/internal/storage"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Probe checks one dependency.
type Probe interface {
	Probe(ctx context.Context) error
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) error

// Probe calls f.
func (f ProbeFunc) Probe(ctx context.Context) error { return f(ctx) }

// StorageProbe checks a storage backend.
func StorageProbe(b storage.Backend) Probe {
	return ProbeFunc(b.Health)
}

// HTTPProbe issues a GET against url and expects a non-5xx answer.
func HTTPProbe(client *http.Client, url string) Probe {
	if client == nil {
		client = http.DefaultClient
	}
	return ProbeFunc(func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", constants.UserAgent())
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
		}
		return nil
	})
}

// RedisProbe pings a redis client.
func RedisProbe(client redis.UniversalClient) Probe {
	return ProbeFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// HealthMonitor probes the database, api and cache services and stores the
// result on a Store. A nil probe counts as healthy.
type HealthMonitor struct {
	Store    *Store
	Database Probe
	API      Probe
	Cache    Probe

	Interval time.Duration
	Timeout  time.Duration
	// SlowThreshold marks a successful probe slower than this as degraded.
	// Zero disables the check.
	SlowThreshold time.Duration
	Now           func() time.Time
}

// Check runs every probe concurrently, records the result and returns it.
func (m *HealthMonitor) Check(ctx context.Context) SystemHealth {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = constants.HealthCheckTimeout
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}

	var (
		wg       sync.WaitGroup
		services Services
	)
	run := func(name string, p Probe, out *HealthStatus) {
		defer wg.Done()
		*out = m.probe(ctx, name, p, timeout)
	}
	wg.Add(3)
	go run("database", m.Database, &services.Database)
	go run("api", m.API, &services.API)
	go run("cache", m.Cache, &services.Cache)
	wg.Wait()

	health := SystemHealth{
		Status:    overallStatus(services),
		LastCheck: now(),
		Services:  services,
	}
	if m.Store != nil {
		m.Store.SetSystemHealth(health)
	}
	return health
}

func (m *HealthMonitor) probe(ctx context.Context, name string, p Probe, timeout time.Duration) HealthStatus {
	status := StatusHealthy
	if p != nil {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		err := p.Probe(pctx)
		elapsed := time.Since(start)
		cancel()
		switch {
		case err != nil:
			status = StatusDown
			log.WithFields(log.Fields{"service": name, "elapsed": elapsed.String()}).WithError(err).Warn("health probe failed")
		case m.SlowThreshold > 0 && elapsed > m.SlowThreshold:
			status = StatusDegraded
		}
	}
	monitoring.HealthStatus.WithLabelValues(name).Set(statusGauge(status))
	return status
}

// overallStatus is down when the database or api is down, degraded when
// any service is not healthy, healthy otherwise.
func overallStatus(s Services) HealthStatus {
	if s.Database == StatusDown || s.API == StatusDown {
		return StatusDown
	}
	if s.Database != StatusHealthy || s.API != StatusHealthy || s.Cache != StatusHealthy {
		return StatusDegraded
	}
	return StatusHealthy
}

func statusGauge(s HealthStatus) float64 {
	switch s {
	case StatusHealthy:
		return 1
	case StatusDegraded:
		return 0.5
	default:
		return 0
	}
}

// Run checks immediately and then every Interval until ctx is done.
func (m *HealthMonitor) Run(ctx context.Context) {
	interval := m.Interval
	if interval <= 0 {
		interval = constants.HealthCheckInterval
	}
	m.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
