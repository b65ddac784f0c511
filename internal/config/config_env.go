package config

import "strings"

// applyEnv overrides cfg with FAULTLINE_* variables.
func applyEnv(cfg *Config) {
	if v := getenv("FAULTLINE_HOST", ""); v != "" {
		cfg.Server.Host = v
	}
	if v := getenv("FAULTLINE_PORT", ""); v != "" {
		if port, err := parsePort(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := getenv("FAULTLINE_BASE_PATH", ""); v != "" {
		cfg.Server.BasePath = normalizeBasePath(v)
	}

	if v := getenv("FAULTLINE_MANAGEMENT_KEY", ""); v != "" {
		cfg.Security.ManagementKey = v
	}
	if v := getenv("FAULTLINE_MANAGEMENT_KEY_HASH", ""); v != "" {
		cfg.Security.ManagementKeyHash = v
	}
	if v := getenv("FAULTLINE_CORS_ORIGINS", ""); v != "" {
		cfg.Security.CORSOrigins = splitAndTrim(v, ",")
	}

	if v := getenv("FAULTLINE_LOG_LEVEL", ""); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := getenv("FAULTLINE_LOG_FORMAT", ""); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := getenv("FAULTLINE_LOG_FILE", ""); v != "" {
		cfg.Logging.File = v
	}
	setToggleFromEnv("FAULTLINE_DEBUG", func(b bool) { cfg.Logging.Debug = b })

	if v := getenv("FAULTLINE_STORAGE_BACKEND", ""); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v := getenv("FAULTLINE_STORAGE_DIR", ""); v != "" {
		cfg.Storage.BaseDir = v
	}
	cfg.Storage.RedisAddr = getenv("FAULTLINE_REDIS_ADDR", cfg.Storage.RedisAddr)
	cfg.Storage.RedisPassword = getenv("FAULTLINE_REDIS_PASSWORD", cfg.Storage.RedisPassword)
	setIntFromEnv("FAULTLINE_REDIS_DB", func(n int) { cfg.Storage.RedisDB = n })
	cfg.Storage.RedisPrefix = getenv("FAULTLINE_REDIS_PREFIX", cfg.Storage.RedisPrefix)
	cfg.Storage.MongoURI = getenv("FAULTLINE_MONGODB_URI", cfg.Storage.MongoURI)
	cfg.Storage.MongoDatabase = getenv("FAULTLINE_MONGODB_DATABASE", cfg.Storage.MongoDatabase)

	cfg.ErrorLog.Endpoint = getenv("FAULTLINE_ERROR_LOG_ENDPOINT", cfg.ErrorLog.Endpoint)
	setIntFromEnv("FAULTLINE_ERROR_LOG_BUFFER", func(n int) { cfg.ErrorLog.BufferSize = n })
	cfg.Handler.Endpoint = getenv("FAULTLINE_REPORT_ENDPOINT", cfg.Handler.Endpoint)
	setIntFromEnv("FAULTLINE_FLUSH_INTERVAL_SEC", func(n int) { cfg.Handler.FlushIntervalSec = n })

	cfg.Archive.Path = getenv("FAULTLINE_ARCHIVE_PATH", cfg.Archive.Path)
	setIntFromEnv("FAULTLINE_RETENTION_DAYS", func(n int) { cfg.Archive.RetentionDays = n })
	cfg.Archive.CleanupSchedule = getenv("FAULTLINE_CLEANUP_SCHEDULE", cfg.Archive.CleanupSchedule)

	setToggleFromEnv("FAULTLINE_HEALTH_ENABLED", func(b bool) { cfg.Health.Enabled = b })
	cfg.Health.APIURL = getenv("FAULTLINE_HEALTH_API_URL", cfg.Health.APIURL)

	setToggleFromEnv("FAULTLINE_RATE_LIMIT_ENABLED", func(b bool) { cfg.RateLimit.Enabled = b })
	setIntFromEnv("FAULTLINE_RATE_LIMIT_RPS", func(n int) { cfg.RateLimit.RPS = n })
	setIntFromEnv("FAULTLINE_RATE_LIMIT_BURST", func(n int) { cfg.RateLimit.Burst = n })
}
