package storage

import "strings"

// DetectBackendLabel returns a normalized label for the configured backend.
func DetectBackendLabel(configured string, backend Backend) string {
	if raw := strings.TrimSpace(strings.ToLower(configured)); raw != "" && raw != "auto" {
		if raw == "mongo" {
			return "mongodb"
		}
		return raw
	}
	switch Unwrap(backend).(type) {
	case *MongoDBBackend:
		return "mongodb"
	case *RedisBackend:
		return "redis"
	case *FileBackend:
		return "file"
	case *MemoryBackend:
		return "memory"
	default:
		return "unknown"
	}
}
