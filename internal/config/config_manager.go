package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"faultline-go/internal/events"
	log "github.com/sirupsen/logrus"
)

// ConfigManager manages configuration file and hot reload
type ConfigManager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
	stopCh     chan struct{}
	stopOnce   sync.Once
	onChange   []func(*Config)
	lastMod    time.Time
	publisher  events.Publisher
	pollEvery  time.Duration
}

// NewConfigManager loads configPath (or a discovered default location) and
// starts watching it. A missing file falls back to defaults plus environment.
func NewConfigManager(configPath string) (*ConfigManager, error) {
	if configPath == "" {
		configPath = DiscoverPath()
	}
	configPath, err := expandHome(configPath)
	if err != nil {
		return nil, err
	}

	cm := &ConfigManager{
		configPath: configPath,
		stopCh:     make(chan struct{}),
		pollEvery:  5 * time.Second,
	}

	if err := cm.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg := DefaultConfig()
		applyEnv(cfg)
		cm.config = cfg
		log.WithField("path", configPath).Warn("using default configuration (no config file found)")
	}

	if cm.configPath != "" {
		if _, err := os.Stat(cm.configPath); err == nil {
			cm.startWatcher()
		}
	}
	return cm, nil
}

func (cm *ConfigManager) load() error {
	if cm.configPath == "" {
		return os.ErrNotExist
	}
	info, err := os.Stat(cm.configPath)
	if err != nil {
		return err
	}
	cfg, err := Load(cm.configPath)
	if err != nil {
		return err
	}
	cm.mu.Lock()
	cm.config = cfg
	cm.lastMod = info.ModTime()
	cm.mu.Unlock()
	log.WithField("path", cm.configPath).Info("configuration loaded")
	return nil
}

// Path returns the watched file, or "" when running on defaults.
func (cm *ConfigManager) Path() string {
	return cm.configPath
}

// OnChange registers a callback for configuration changes
func (cm *ConfigManager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.onChange = append(cm.onChange, fn)
}

// SetEventPublisher wires the event hub used to broadcast config updates.
func (cm *ConfigManager) SetEventPublisher(p events.Publisher) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.publisher = p
}

// GetConfig returns a copy of the current configuration
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if cm.config == nil {
		return DefaultConfig()
	}
	return cm.config.Clone()
}

// Reload re-reads the file and notifies listeners when it parses.
func (cm *ConfigManager) Reload() error {
	oldConfig := cm.GetConfig()
	if err := cm.load(); err != nil {
		return err
	}
	newConfig := cm.GetConfig()
	cm.emitChange(oldConfig, newConfig)
	logConfigChanges(oldConfig, newConfig)
	return nil
}

// Close stops the configuration manager
func (cm *ConfigManager) Close() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}

func (cm *ConfigManager) listenersSnapshot() ([]func(*Config), events.Publisher, string) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	callbacks := make([]func(*Config), len(cm.onChange))
	copy(callbacks, cm.onChange)
	return callbacks, cm.publisher, cm.configPath
}

func (cm *ConfigManager) emitChange(oldCfg, newCfg *Config) {
	callbacks, publisher, path := cm.listenersSnapshot()

	for _, fn := range callbacks {
		fn(newCfg)
	}

	if publisher != nil && newCfg != nil {
		event := ConfigChangeEvent{
			Path:      path,
			UpdatedAt: time.Now().UTC(),
			Config:    *newCfg,
		}
		if oldCfg != nil {
			prev := *oldCfg
			event.Previous = &prev
		}
		publisher.Publish(context.Background(), events.TopicConfigUpdated, event, nil)
	}
}

// ConfigChangeEvent is the payload broadcast when configuration changes.
type ConfigChangeEvent struct {
	Path      string    `json:"path"`
	UpdatedAt time.Time `json:"updated_at"`
	Config    Config    `json:"config"`
	Previous  *Config   `json:"previous,omitempty"`
}
