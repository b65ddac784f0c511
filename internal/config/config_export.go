package config

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Redacted returns a copy with secrets masked.
func (c *Config) Redacted() *Config {
	out := c.Clone()
	if out.Security.ManagementKey != "" {
		out.Security.ManagementKey = "***"
	}
	if out.Security.ManagementKeyHash != "" {
		out.Security.ManagementKeyHash = "***"
	}
	if out.Storage.RedisPassword != "" {
		out.Storage.RedisPassword = "***"
	}
	return out
}

// Export writes cfg with secrets masked in the given format.
func Export(w io.Writer, cfg *Config, format string) error {
	redacted := cfg.Redacted()
	switch strings.ToLower(format) {
	case "yaml", "yml":
		return yaml.NewEncoder(w).Encode(redacted)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(redacted)
	case "toml":
		return toml.NewEncoder(w).Encode(redacted)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// ExportConfig exports the current configuration to a writer
func (cm *ConfigManager) ExportConfig(w io.Writer, format string) error {
	return Export(w, cm.GetConfig(), format)
}
