package errorlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"faultline-go/internal/constants"
	"github.com/tidwall/sjson"
)

// Export renders the buffer as a JSON document:
// {"exportedAt": ..., "version": ..., "count": N, "stats": {...}, "entries": [...]}.
func (l *Logger) Export() ([]byte, error) {
	entries := l.Entries()
	if entries == nil {
		entries = []*LogEntry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal entries: %w", err)
	}
	stats, err := json.Marshal(l.Stats())
	if err != nil {
		return nil, fmt.Errorf("marshal stats: %w", err)
	}

	doc := []byte(`{}`)
	if doc, err = sjson.SetBytes(doc, "exportedAt", l.now().UTC().Format(time.RFC3339)); err != nil {
		return nil, err
	}
	if doc, err = sjson.SetBytes(doc, "version", constants.Version); err != nil {
		return nil, err
	}
	if doc, err = sjson.SetBytes(doc, "count", len(entries)); err != nil {
		return nil, err
	}
	if doc, err = sjson.SetRawBytes(doc, "stats", stats); err != nil {
		return nil, err
	}
	if doc, err = sjson.SetRawBytes(doc, "entries", raw); err != nil {
		return nil, err
	}
	return doc, nil
}

// ExportToFile writes Export() to path, creating parent directories.
func (l *Logger) ExportToFile(path string) error {
	doc, err := l.Export()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}
