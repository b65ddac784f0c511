package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileBackend implements storage using local files, one file per key.
// Values are cached in memory after Initialize and written through on Set.
type FileBackend struct {
	baseDir string
	mu      sync.RWMutex
	data    map[string][]byte
}

// NewFileBackend creates a new file-based storage backend
func NewFileBackend(baseDir string) *FileBackend {
	return &FileBackend{
		baseDir: baseDir,
		data:    make(map[string][]byte),
	}
}

// Dir returns the directory holding the key files.
func (f *FileBackend) Dir() string { return filepath.Join(f.baseDir, "kv") }

func (f *FileBackend) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(f.Dir(), 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", f.Dir(), err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadAll(); err != nil {
		return fmt.Errorf("failed to load existing data: %w", err)
	}
	return nil
}

func (f *FileBackend) Close() error { return nil }

func (f *FileBackend) Health(ctx context.Context) error {
	// Check if base directory is accessible
	_, err := os.Stat(f.Dir())
	return err
}

func (f *FileBackend) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.data[key]
	if !ok {
		return nil, &ErrNotFound{Key: key}
	}
	return append([]byte(nil), v...), nil
}

func (f *FileBackend) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeFile(key, value); err != nil {
		return err
	}
	f.data[key] = append([]byte(nil), value...)
	return nil
}

func (f *FileBackend) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; !ok {
		return &ErrNotFound{Key: key}
	}
	delete(f.data, key)
	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (f *FileBackend) List(ctx context.Context, prefix string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// 本地文件加载/保存辅助方法

func (f *FileBackend) path(key string) string {
	return filepath.Join(f.Dir(), url.PathEscape(key)+".json")
}

func (f *FileBackend) loadAll() error {
	files, err := os.ReadDir(f.Dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(file.Name(), ".json"))
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.Dir(), file.Name()))
		if err != nil {
			continue
		}
		f.data[key] = data
	}
	return nil
}

// writeFile replaces the key file atomically via rename.
func (f *FileBackend) writeFile(key string, value []byte) error {
	tmp, err := os.CreateTemp(f.Dir(), ".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, f.path(key))
}
