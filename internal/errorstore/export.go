package errorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"faultline-go/internal/constants"
	"github.com/tidwall/sjson"
)

const exportPageSize = 500

// Export renders every entry matching q (Limit and Offset are ignored) as
// {"exportedAt": ..., "version": ..., "count": N, "stats": {...}, "entries": [...]}.
func (s *Store) Export(ctx context.Context, q Query) ([]byte, error) {
	entries := make([]Entry, 0)
	q.Offset = 0
	q.Limit = exportPageSize
	for {
		page, err := s.Query(ctx, q)
		if err != nil {
			return nil, err
		}
		entries = append(entries, page.Entries...)
		if len(page.Entries) < exportPageSize || len(entries) >= page.Total {
			break
		}
		q.Offset += len(page.Entries)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}
	rawEntries, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal entries: %w", err)
	}
	rawStats, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("marshal stats: %w", err)
	}

	doc := []byte(`{}`)
	if doc, err = sjson.SetBytes(doc, "exportedAt", s.opts.Now().UTC().Format(time.RFC3339)); err != nil {
		return nil, err
	}
	if doc, err = sjson.SetBytes(doc, "version", constants.Version); err != nil {
		return nil, err
	}
	if doc, err = sjson.SetBytes(doc, "count", len(entries)); err != nil {
		return nil, err
	}
	if doc, err = sjson.SetRawBytes(doc, "stats", rawStats); err != nil {
		return nil, err
	}
	if doc, err = sjson.SetRawBytes(doc, "entries", rawEntries); err != nil {
		return nil, err
	}
	return doc, nil
}
