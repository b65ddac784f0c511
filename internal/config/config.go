// Package config loads faultline configuration from a YAML, JSON or TOML
// file, applies FAULTLINE_* environment overrides and watches the file for
// changes.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"faultline-go/internal/constants"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server" toml:"server"`
	Security  SecurityConfig  `yaml:"security" json:"security" toml:"security"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging" toml:"logging"`
	Storage   StorageConfig   `yaml:"storage" json:"storage" toml:"storage"`
	ErrorLog  ErrorLogConfig  `yaml:"error_log" json:"error_log" toml:"error_log"`
	Handler   HandlerConfig   `yaml:"handler" json:"handler" toml:"handler"`
	Archive   ArchiveConfig   `yaml:"archive" json:"archive" toml:"archive"`
	Health    HealthConfig    `yaml:"health" json:"health" toml:"health"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit" toml:"rate_limit"`
	Stream    StreamConfig    `yaml:"stream" json:"stream" toml:"stream"`
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Security.CORSOrigins = append([]string(nil), c.Security.CORSOrigins...)
	if c.ErrorLog.Headers != nil {
		out.ErrorLog.Headers = make(map[string]string, len(c.ErrorLog.Headers))
		for k, v := range c.ErrorLog.Headers {
			out.ErrorLog.Headers[k] = v
		}
	}
	return &out
}

// Addr is the listen address of the collector.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8088,
			MaxBodyBytes: 1 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			Backend:         "file",
			BaseDir:         "./data",
			RedisPrefix:     "faultline:",
			MongoDatabase:   "faultline",
			MongoCollection: "kv",
		},
		ErrorLog: ErrorLogConfig{
			BufferSize:         constants.LogBufferCapacity,
			RetryQueueSize:     constants.RetryQueueCapacity,
			DeliveryTimeoutSec: int(constants.DeliveryTimeout / time.Second),
			RetryIntervalMs:    int(constants.RetryDrainInterval / time.Millisecond),
		},
		Handler: HandlerConfig{
			QueueSize:                constants.ReportQueueCapacity,
			FlushIntervalSec:         int(constants.FlushInterval / time.Second),
			FlushTimeoutSec:          int(constants.FlushTimeout / time.Second),
			NotificationWindowSec:    int(constants.NotificationSampleWindow / time.Second),
			NotificationRetentionHrs: int(constants.SampleRetention / time.Hour),
		},
		Archive: ArchiveConfig{
			Path:            "./data/errors.db",
			RetentionDays:   30,
			CleanupSchedule: "@daily",
			SlowQueryMs:     200,
		},
		Health: HealthConfig{
			Enabled:         true,
			IntervalSec:     int(constants.HealthCheckInterval / time.Second),
			TimeoutSec:      int(constants.HealthCheckTimeout / time.Second),
			SlowThresholdMs: 1000,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     50,
			Burst:   100,
		},
		Stream: StreamConfig{
			HistorySize: constants.StreamHistoryCapacity,
		},
	}
}

// Seconds converts a whole-second setting, falling back to def when unset.
func Seconds(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Second
}

// Millis converts a millisecond setting, falling back to def when unset.
func Millis(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Millisecond
}

func (c *Config) String() string {
	return fmt.Sprintf("addr=%s storage=%s archive=%s", c.Addr(), c.Storage.Backend, c.Archive.Path)
}
