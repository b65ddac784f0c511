package storage

import (
	"context"
	"fmt"
	"strings"

	"faultline-go/internal/config"
	log "github.com/sirupsen/logrus"
)

// New builds and initializes the backend selected by cfg.Backend:
// file, redis, mongodb (alias mongo), memory or auto. auto tries redis,
// then mongodb, then falls back to the file backend.
func New(ctx context.Context, cfg config.StorageConfig) (Backend, error) {
	switch backend := strings.ToLower(strings.TrimSpace(cfg.Backend)); backend {
	case "", "file":
		return initialize(ctx, NewFileBackend(fileDir(cfg)))
	case "memory":
		return NewMemoryBackend(), nil
	case "redis":
		rb, err := NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		if err != nil {
			return nil, err
		}
		return initialize(ctx, rb)
	case "mongo", "mongodb":
		mb, err := NewMongoDBBackend(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			return nil, err
		}
		return initialize(ctx, mb)
	case "auto":
		if cfg.RedisAddr != "" {
			if rb, err := NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix); err == nil {
				if b, err := initialize(ctx, rb); err == nil {
					log.Info("storage auto: using redis backend")
					return b, nil
				}
			}
			log.Warn("storage auto: redis backend initialization failed, falling back")
		}
		if cfg.MongoURI != "" {
			if mb, err := NewMongoDBBackend(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection); err == nil {
				if b, err := initialize(ctx, mb); err == nil {
					log.Info("storage auto: using mongodb backend")
					return b, nil
				}
			}
			log.Warn("storage auto: mongodb backend initialization failed, falling back")
		}
		log.Info("storage auto: using local file backend")
		return initialize(ctx, NewFileBackend(fileDir(cfg)))
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", backend)
	}
}

// NewWithFallback is New that degrades to the file backend when the
// configured one cannot be initialized.
func NewWithFallback(ctx context.Context, cfg config.StorageConfig) (Backend, error) {
	b, err := New(ctx, cfg)
	if err == nil {
		return b, nil
	}
	// 存储后端初始化失败时降级为文件后端，避免服务无法启动
	log.WithError(err).WithField("backend", cfg.Backend).Warn("primary storage backend initialization failed; falling back to file backend")
	fallback := cfg
	fallback.Backend = "file"
	b, ferr := New(ctx, fallback)
	if ferr != nil {
		return nil, fmt.Errorf("file backend fallback failed: %w (primary: %v)", ferr, err)
	}
	return b, nil
}

func fileDir(cfg config.StorageConfig) string {
	if dir := strings.TrimSpace(cfg.BaseDir); dir != "" {
		return dir
	}
	return "./data"
}

func initialize(ctx context.Context, b Backend) (Backend, error) {
	if err := b.Initialize(ctx); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}
