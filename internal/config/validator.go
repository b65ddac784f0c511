package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s=%s]: %s", e.Field, e.Value, e.Message)
}

// ValidationResult holds the results of configuration validation
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
	Valid    bool
}

// AddError adds a validation error
func (r *ValidationResult) AddError(field, value, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Value: value, Message: message})
	r.Valid = false
}

// AddWarning adds a validation warning
func (r *ValidationResult) AddWarning(field, value, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Value: value, Message: message})
}

var validBackends = []string{"file", "redis", "mongodb", "memory", "auto"}

// Validate validates the configuration and returns validation results
func (c *Config) Validate() ValidationResult {
	result := ValidationResult{Valid: true}

	if err := validatePort(c.Server.Port); err != nil {
		result.AddError("server.port", strconv.Itoa(c.Server.Port), err.Error())
	}

	if !contains(validBackends, c.Storage.Backend) {
		result.AddError("storage.backend", c.Storage.Backend,
			fmt.Sprintf("must be one of: %s", strings.Join(validBackends, ", ")))
	}
	switch c.Storage.Backend {
	case "redis":
		if c.Storage.RedisAddr == "" {
			result.AddError("storage.redis_addr", c.Storage.RedisAddr, "required when using redis backend")
		}
	case "mongodb":
		if c.Storage.MongoURI == "" {
			result.AddError("storage.mongodb_uri", c.Storage.MongoURI, "required when using mongodb backend")
		}
	}

	for field, raw := range map[string]string{
		"error_log.endpoint": c.ErrorLog.Endpoint,
		"handler.endpoint":   c.Handler.Endpoint,
		"health.api_url":     c.Health.APIURL,
	} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			result.AddError(field, raw, "must be an absolute http(s) URL")
		}
	}

	if c.ErrorLog.BufferSize < 0 || c.ErrorLog.RetryQueueSize < 0 || c.Handler.QueueSize < 0 {
		result.AddError("queue_size", "", "capacities must not be negative")
	}
	if c.Archive.RetentionDays < 0 {
		result.AddError("archive.retention_days", strconv.Itoa(c.Archive.RetentionDays), "must not be negative")
	}
	if c.Archive.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(c.Archive.CleanupSchedule); err != nil {
			result.AddError("archive.cleanup_schedule", c.Archive.CleanupSchedule, err.Error())
		}
	}

	switch c.Logging.Format {
	case "", "json", "text":
	default:
		result.AddError("logging.format", c.Logging.Format, "must be json or text")
	}
	if c.Logging.Level != "" {
		if _, err := log.ParseLevel(c.Logging.Level); err != nil {
			result.AddError("logging.level", c.Logging.Level, err.Error())
		}
	}

	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		result.AddError("rate_limit.rps", strconv.Itoa(c.RateLimit.RPS), "must be positive when rate limiting is enabled")
	}

	if !c.ManagementConfigured() {
		result.AddWarning("security.management_key", "", "management routes are disabled without a key")
	}
	if c.Security.ManagementKey != "" && len(c.Security.ManagementKey) < 12 {
		result.AddWarning("security.management_key", "***", "short management key")
	}

	return result
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
