package config

// ServerConfig 服务器配置
type ServerConfig struct {
	Host     string `yaml:"host" json:"host" toml:"host"`
	Port     int    `yaml:"port" json:"port" toml:"port"`
	BasePath string `yaml:"base_path" json:"base_path" toml:"base_path"`
	// MaxBodyBytes bounds ingest request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes" json:"max_body_bytes" toml:"max_body_bytes"`
}

// SecurityConfig 管理接口访问配置
type SecurityConfig struct {
	ManagementKey     string   `yaml:"management_key" json:"management_key" toml:"management_key"`
	ManagementKeyHash string   `yaml:"management_key_hash" json:"management_key_hash" toml:"management_key_hash"`
	CORSOrigins       []string `yaml:"cors_origins" json:"cors_origins" toml:"cors_origins"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" toml:"level"`
	Format string `yaml:"format" json:"format" toml:"format"` // json or text
	File   string `yaml:"file" json:"file" toml:"file"`
	Debug  bool   `yaml:"debug" json:"debug" toml:"debug"`
}

// StorageConfig 存储后端配置
type StorageConfig struct {
	Backend         string `yaml:"backend" json:"backend" toml:"backend"` // file, redis, mongodb, memory
	BaseDir         string `yaml:"base_dir" json:"base_dir" toml:"base_dir"`
	RedisAddr       string `yaml:"redis_addr" json:"redis_addr" toml:"redis_addr"`
	RedisPassword   string `yaml:"redis_password" json:"redis_password" toml:"redis_password"`
	RedisDB         int    `yaml:"redis_db" json:"redis_db" toml:"redis_db"`
	RedisPrefix     string `yaml:"redis_prefix" json:"redis_prefix" toml:"redis_prefix"`
	MongoURI        string `yaml:"mongodb_uri" json:"mongodb_uri" toml:"mongodb_uri"`
	MongoDatabase   string `yaml:"mongodb_database" json:"mongodb_database" toml:"mongodb_database"`
	MongoCollection string `yaml:"mongodb_collection" json:"mongodb_collection" toml:"mongodb_collection"`
}

// ErrorLogConfig 错误日志器配置
type ErrorLogConfig struct {
	Endpoint           string            `yaml:"endpoint" json:"endpoint" toml:"endpoint"`
	Headers            map[string]string `yaml:"headers" json:"headers" toml:"headers"`
	BufferSize         int               `yaml:"buffer_size" json:"buffer_size" toml:"buffer_size"`
	RetryQueueSize     int               `yaml:"retry_queue_size" json:"retry_queue_size" toml:"retry_queue_size"`
	DeliveryTimeoutSec int               `yaml:"delivery_timeout_sec" json:"delivery_timeout_sec" toml:"delivery_timeout_sec"`
	RetryIntervalMs    int               `yaml:"retry_interval_ms" json:"retry_interval_ms" toml:"retry_interval_ms"`
}

// HandlerConfig 全局错误处理器配置
type HandlerConfig struct {
	Endpoint                 string `yaml:"endpoint" json:"endpoint" toml:"endpoint"`
	QueueSize                int    `yaml:"queue_size" json:"queue_size" toml:"queue_size"`
	FlushIntervalSec         int    `yaml:"flush_interval_sec" json:"flush_interval_sec" toml:"flush_interval_sec"`
	FlushTimeoutSec          int    `yaml:"flush_timeout_sec" json:"flush_timeout_sec" toml:"flush_timeout_sec"`
	NotificationWindowSec    int    `yaml:"notification_window_sec" json:"notification_window_sec" toml:"notification_window_sec"`
	NotificationRetentionHrs int    `yaml:"notification_retention_hours" json:"notification_retention_hours" toml:"notification_retention_hours"`
}

// ArchiveConfig 错误归档配置
type ArchiveConfig struct {
	Path            string `yaml:"path" json:"path" toml:"path"`
	RetentionDays   int    `yaml:"retention_days" json:"retention_days" toml:"retention_days"`
	CleanupSchedule string `yaml:"cleanup_schedule" json:"cleanup_schedule" toml:"cleanup_schedule"`
	SlowQueryMs     int    `yaml:"slow_query_ms" json:"slow_query_ms" toml:"slow_query_ms"`
}

// HealthConfig 健康检查配置
type HealthConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled" toml:"enabled"`
	IntervalSec     int    `yaml:"interval_sec" json:"interval_sec" toml:"interval_sec"`
	TimeoutSec      int    `yaml:"timeout_sec" json:"timeout_sec" toml:"timeout_sec"`
	SlowThresholdMs int    `yaml:"slow_threshold_ms" json:"slow_threshold_ms" toml:"slow_threshold_ms"`
	APIURL          string `yaml:"api_url" json:"api_url" toml:"api_url"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`
	RPS     int  `yaml:"rps" json:"rps" toml:"rps"`
	Burst   int  `yaml:"burst" json:"burst" toml:"burst"`
}

// StreamConfig 实时错误流配置
type StreamConfig struct {
	HistorySize int `yaml:"history_size" json:"history_size" toml:"history_size"`
}
