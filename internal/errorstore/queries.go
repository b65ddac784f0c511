package errorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "faultline-go/internal/errors"
	"faultline-go/internal/monitoring"
	"github.com/google/uuid"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

const entryColumns = `id, fingerprint, code, category, severity, http_status, message, user_message,
	source, url, user_agent, user_id, session_id, correlation_id, trace_id, stack, context_json,
	occurrences, first_seen, last_seen, resolved, resolved_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e                   Entry
		category, severity  string
		contextJSON         string
		firstSeen, lastSeen int64
		resolved            int
		resolvedAt          sql.NullInt64
	)
	err := row.Scan(&e.ID, &e.Fingerprint, &e.Code, &category, &severity, &e.HTTPStatus,
		&e.Message, &e.UserMessage, &e.Source, &e.URL, &e.UserAgent, &e.UserID, &e.SessionID,
		&e.CorrelationID, &e.TraceID, &e.Stack, &contextJSON, &e.Occurrences,
		&firstSeen, &lastSeen, &resolved, &resolvedAt)
	if err != nil {
		return Entry{}, err
	}
	e.Category = apperrors.Category(category)
	e.Severity = apperrors.Severity(severity)
	e.FirstSeen = time.UnixMilli(firstSeen).UTC()
	e.LastSeen = time.UnixMilli(lastSeen).UTC()
	e.Resolved = resolved != 0
	if resolvedAt.Valid {
		t := time.UnixMilli(resolvedAt.Int64).UTC()
		e.ResolvedAt = &t
	}
	if contextJSON != "" && contextJSON != "{}" {
		_ = json.Unmarshal([]byte(contextJSON), &e.Context)
	}
	return e, nil
}

// normalize fills the derived fields of an incoming entry.
func (s *Store) normalize(e Entry) Entry {
	if e.Code == "" {
		e.Code = apperrors.CodeUnknown
	}
	if e.Message == "" {
		e.Message = e.UserMessage
	}
	if !e.Severity.Valid() {
		e.Severity = apperrors.SeverityFor(e.Code, e.HTTPStatus)
	}
	if e.Category == "" {
		e.Category = apperrors.CategoryUnknown
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.LastSeen.IsZero() {
		e.LastSeen = s.opts.Now()
	}
	e.FirstSeen = e.LastSeen
	e.Fingerprint = Fingerprint(e.Code, e.HTTPStatus, e.Message)
	return e
}

// Store records one occurrence. An existing fingerprint has its occurrence
// count incremented, its latest-occurrence fields refreshed and is reopened
// if it had been resolved. The stored entry is returned.
func (s *Store) Store(ctx context.Context, in Entry) (Entry, error) {
	out, err := s.StoreBatch(ctx, []Entry{in})
	if err != nil {
		return Entry{}, err
	}
	return out[0], nil
}

// StoreBatch records several occurrences in one transaction. Either every
// entry is stored or none is.
func (s *Store) StoreBatch(ctx context.Context, in []Entry) ([]Entry, error) {
	if len(in) == 0 {
		return nil, nil
	}
	entries := make([]Entry, len(in))
	for i, e := range in {
		entries[i] = s.normalize(e)
	}

	var out []Entry
	operation := "store"
	if len(entries) > 1 {
		operation = "store_batch"
	}
	err := s.do(ctx, operation, entries[0].Code, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		out = make([]Entry, 0, len(entries))
		for _, e := range entries {
			stored, err := upsertEntry(ctx, tx, e)
			if err != nil {
				return err
			}
			out = append(out, stored)
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	_, _ = s.refreshUnresolved(ctx)
	return out, nil
}

func upsertEntry(ctx context.Context, tx *sql.Tx, e Entry) (Entry, error) {
	contextJSON := "{}"
	if len(e.Context) > 0 {
		data, err := json.Marshal(e.Context)
		if err != nil {
			return Entry{}, fmt.Errorf("encode context: %w", err)
		}
		contextJSON = string(data)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO errors (id, fingerprint, code, category, severity, severity_rank, http_status,
			message, user_message, source, url, user_agent, user_id, session_id, correlation_id,
			trace_id, stack, context_json, occurrences, first_seen, last_seen, resolved)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, 0)
		ON CONFLICT(fingerprint) DO UPDATE SET
			occurrences = errors.occurrences + 1,
			first_seen = MIN(errors.first_seen, excluded.first_seen),
			last_seen = MAX(errors.last_seen, excluded.last_seen),
			severity = excluded.severity,
			severity_rank = excluded.severity_rank,
			category = excluded.category,
			user_message = excluded.user_message,
			source = excluded.source,
			url = excluded.url,
			user_agent = excluded.user_agent,
			user_id = excluded.user_id,
			session_id = excluded.session_id,
			correlation_id = excluded.correlation_id,
			trace_id = excluded.trace_id,
			stack = CASE WHEN excluded.stack <> '' THEN excluded.stack ELSE errors.stack END,
			context_json = excluded.context_json,
			resolved = 0,
			resolved_at = NULL`,
		e.ID, e.Fingerprint, e.Code, string(e.Category), string(e.Severity), e.Severity.Rank(),
		e.HTTPStatus, e.Message, e.UserMessage, e.Source, e.URL, e.UserAgent, e.UserID,
		e.SessionID, e.CorrelationID, e.TraceID, e.Stack, contextJSON,
		e.FirstSeen.UnixMilli(), e.LastSeen.UnixMilli())
	if err != nil {
		return Entry{}, err
	}
	row := tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM errors WHERE fingerprint = ?`, e.Fingerprint)
	return scanEntry(row)
}

// Get returns the entry with id.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	var out Entry
	err := s.do(ctx, "get", id, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM errors WHERE id = ?`, id)
		e, err := scanEntry(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		out = e
		return err
	})
	return out, err
}

// Query returns one page of entries matching q, most recent first.
func (s *Store) Query(ctx context.Context, q Query) (Page, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		where []string
		args  []any
	)
	if q.Code != "" {
		where = append(where, "code = ?")
		args = append(args, q.Code)
	}
	if q.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(q.Category))
	}
	if q.MinSeverity != "" {
		where = append(where, "severity_rank >= ?")
		args = append(args, q.MinSeverity.Rank())
	}
	if q.Resolved != nil {
		where = append(where, "resolved = ?")
		args = append(args, boolInt(*q.Resolved))
	}
	if !q.Since.IsZero() {
		where = append(where, "last_seen >= ?")
		args = append(args, q.Since.UnixMilli())
	}
	if term := strings.TrimSpace(q.Search); term != "" {
		where = append(where, "(message LIKE ? OR user_message LIKE ? OR code LIKE ?)")
		like := "%" + term + "%"
		args = append(args, like, like, like)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	page := Page{Entries: []Entry{}, Limit: limit, Offset: offset}
	err := s.do(ctx, "query", clause, func(ctx context.Context) error {
		page.Entries = page.Entries[:0]
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM errors`+clause, args...).Scan(&page.Total); err != nil {
			return err
		}
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+entryColumns+` FROM errors`+clause+` ORDER BY last_seen DESC, id LIMIT ? OFFSET ?`,
			append(append([]any(nil), args...), limit, offset)...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				return err
			}
			page.Entries = append(page.Entries, e)
		}
		return rows.Err()
	})
	return page, err
}

// Resolve marks the entry with id resolved and returns it.
func (s *Store) Resolve(ctx context.Context, id string) (Entry, error) {
	return s.setResolved(ctx, "resolve", id, true)
}

// Unresolve reopens the entry with id and returns it.
func (s *Store) Unresolve(ctx context.Context, id string) (Entry, error) {
	return s.setResolved(ctx, "unresolve", id, false)
}

func (s *Store) setResolved(ctx context.Context, operation, id string, resolved bool) (Entry, error) {
	var resolvedAt any
	if resolved {
		resolvedAt = s.opts.Now().UnixMilli()
	}
	err := s.do(ctx, operation, id, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE errors SET resolved = ?, resolved_at = ? WHERE id = ?`,
			boolInt(resolved), resolvedAt, id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
	if err != nil {
		return Entry{}, err
	}
	_, _ = s.refreshUnresolved(ctx)
	return s.Get(ctx, id)
}

// Delete removes the entry with id.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.do(ctx, "delete", id, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM errors WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
	if err == nil {
		_, _ = s.refreshUnresolved(ctx)
	}
	return err
}

// Cleanup deletes entries whose last occurrence is older than the
// retention period. It returns the number of deleted entries.
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	if s.opts.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.opts.Now().AddDate(0, 0, -s.opts.RetentionDays)
	return s.CleanupBefore(ctx, cutoff)
}

// CleanupBefore deletes entries last seen before cutoff.
func (s *Store) CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.do(ctx, "cleanup", cutoff.Format(time.RFC3339), func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM errors WHERE last_seen < ?`, cutoff.UnixMilli())
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err == nil {
		_, _ = s.refreshUnresolved(ctx)
	}
	return deleted, err
}

// Stats summarizes the archive. Breakdowns count occurrences.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		ByCode:     map[string]int{},
		ByCategory: map[string]int{},
		BySeverity: map[string]int{},
	}
	dayAgo := s.opts.Now().Add(-24 * time.Hour).UnixMilli()
	err := s.do(ctx, "stats", "", func(ctx context.Context) error {
		err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(*),
				COALESCE(SUM(occurrences), 0),
				COALESCE(SUM(CASE WHEN resolved = 0 THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN last_seen >= ? THEN 1 ELSE 0 END), 0)
			FROM errors`, dayAgo).Scan(&st.Fingerprints, &st.Occurrences, &st.Unresolved, &st.LastDay)
		if err != nil {
			return err
		}
		for column, into := range map[string]map[string]int{
			"code":     st.ByCode,
			"category": st.ByCategory,
			"severity": st.BySeverity,
		} {
			if err := s.groupCount(ctx, column, into); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		monitoring.ArchiveUnresolved.Set(float64(st.Unresolved))
	}
	return st, err
}

// groupCount sums occurrences per value of column. column is never user input.
func (s *Store) groupCount(ctx context.Context, column string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+column+`, SUM(occurrences) FROM errors GROUP BY `+column)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		into[key] = count
	}
	return rows.Err()
}

func (s *Store) refreshUnresolved(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM errors WHERE resolved = 0`).Scan(&n); err != nil {
		return 0, err
	}
	monitoring.ArchiveUnresolved.Set(float64(n))
	return n, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
