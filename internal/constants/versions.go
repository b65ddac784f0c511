package constants

// Version information (injected at build time)
var (
	// Version 应用版本号（通过 -ldflags 注入）
	Version = "dev"

	// BuildTime 构建时间（通过 -ldflags 注入）
	BuildTime = "unknown"

	// GitCommit Git 提交哈希（通过 -ldflags 注入）
	GitCommit = "unknown"
)

// ServiceName is used for tracing resources, metric prefixes and user agents.
const ServiceName = "faultline"

// GetVersion 获取应用版本信息
func GetVersion() string {
	return Version
}

// UserAgent is sent on every outbound report delivery.
func UserAgent() string {
	return ServiceName + "/" + Version
}
