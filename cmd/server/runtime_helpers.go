package main

import (
	"net/http"
	"strings"
	"time"

	"faultline-go/internal/config"
	"faultline-go/internal/constants"
	"faultline-go/internal/errorstore"
	store "faultline-go/internal/storage"
	"faultline-go/internal/uistate"
)

// newHealthMonitor probes the archive as the database, the storage backend
// as the cache and, when configured, an upstream API.
func newHealthMonitor(cfg config.HealthConfig, ui *uistate.Store, archive *errorstore.Store, backend store.Backend) *uistate.HealthMonitor {
	timeout := config.Seconds(cfg.TimeoutSec, constants.HealthCheckTimeout)
	return &uistate.HealthMonitor{
		Store:         ui,
		Database:      uistate.ProbeFunc(archive.Ping),
		API:           apiProbe(cfg.APIURL, timeout),
		Cache:         cacheProbe(backend),
		Interval:      config.Seconds(cfg.IntervalSec, constants.HealthCheckInterval),
		Timeout:       timeout,
		SlowThreshold: config.Millis(cfg.SlowThresholdMs, 0),
	}
}

// cacheProbe pings redis directly when it backs storage; other backends
// answer through their own health check.
func cacheProbe(backend store.Backend) uistate.Probe {
	if backend == nil {
		return nil
	}
	if rb, ok := store.Unwrap(backend).(*store.RedisBackend); ok {
		return uistate.RedisProbe(rb.Client())
	}
	return uistate.StorageProbe(backend)
}

// apiProbe returns nil when no url is configured, which counts as healthy.
func apiProbe(url string, timeout time.Duration) uistate.Probe {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	return uistate.HTTPProbe(&http.Client{Timeout: timeout}, url)
}
