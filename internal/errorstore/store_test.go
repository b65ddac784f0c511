package errorstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	apperrors "faultline-go/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func openTestStore(t *testing.T, retentionDays int) (*Store, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	s, err := Open(context.Background(), Options{
		Path:          filepath.Join(t.TempDir(), "archive", "errors.db"),
		RetentionDays: retentionDays,
		Now:           clock.Now,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func entryFor(rec *apperrors.ErrorRecord) Entry {
	return Entry{
		Code:        rec.Code,
		Category:    rec.Category,
		Severity:    rec.Severity,
		HTTPStatus:  rec.HTTPStatus,
		Message:     rec.Message,
		UserMessage: rec.UserMessage,
	}
}

func TestStoreGroupsByFingerprint(t *testing.T) {
	s, clock := openTestStore(t, 0)
	ctx := context.Background()
	rec := apperrors.MapHTTPError(500, nil)

	first, err := s.Store(ctx, entryFor(rec))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Occurrences)
	assert.Equal(t, Fingerprint(rec.Code, 500, rec.Message), first.Fingerprint)

	clock.now = clock.now.Add(time.Minute)
	in := entryFor(rec)
	in.URL = "https://app.example/checkout"
	second, err := s.Store(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Occurrences)
	assert.Equal(t, "https://app.example/checkout", second.URL)
	assert.True(t, second.LastSeen.After(second.FirstSeen))

	other, err := s.Store(ctx, entryFor(apperrors.MapHTTPError(404, nil)))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestStoreFillsDefaults(t *testing.T) {
	s, _ := openTestStore(t, 0)
	e, err := s.Store(context.Background(), Entry{Message: "boom", Context: map[string]any{"route": "/x"}})
	require.NoError(t, err)
	assert.Equal(t, apperrors.CodeUnknown, e.Code)
	assert.Equal(t, apperrors.CategoryUnknown, e.Category)
	assert.True(t, e.Severity.Valid())
	assert.Equal(t, "/x", e.Context["route"])

	got, err := s.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestResolveAndRecurrenceReopens(t *testing.T) {
	s, _ := openTestStore(t, 0)
	ctx := context.Background()
	e, err := s.Store(ctx, Entry{Code: apperrors.CodeInternal, HTTPStatus: 500, Message: "down"})
	require.NoError(t, err)

	resolved, err := s.Resolve(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	require.NotNil(t, resolved.ResolvedAt)

	reopened, err := s.Unresolve(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, reopened.Resolved)
	assert.Nil(t, reopened.ResolvedAt)

	_, err = s.Resolve(ctx, e.ID)
	require.NoError(t, err)
	again, err := s.Store(ctx, Entry{Code: apperrors.CodeInternal, HTTPStatus: 500, Message: "down"})
	require.NoError(t, err)
	assert.False(t, again.Resolved, "a new occurrence reopens the entry")
}

func TestNotFound(t *testing.T) {
	s, _ := openTestStore(t, 0)
	ctx := context.Background()
	_, err := s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.Resolve(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(s.Delete(ctx, "missing"), ErrNotFound))
}

func TestQueryFilters(t *testing.T) {
	s, clock := openTestStore(t, 0)
	ctx := context.Background()
	seed := []Entry{
		{Code: apperrors.CodeUnauthorized, HTTPStatus: 401, Message: "token expired", Category: apperrors.CategoryAuth},
		{Code: apperrors.CodeInternal, HTTPStatus: 500, Message: "upstream down", Category: apperrors.CategoryServer},
		{Code: apperrors.CodeValidation, HTTPStatus: 400, Message: "email invalid", Category: apperrors.CategoryValidation},
	}
	var ids []string
	for _, e := range seed {
		clock.now = clock.now.Add(time.Minute)
		stored, err := s.Store(ctx, e)
		require.NoError(t, err)
		ids = append(ids, stored.ID)
	}
	_, err := s.Resolve(ctx, ids[2])
	require.NoError(t, err)

	page, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Entries, 3)
	assert.Equal(t, ids[2], page.Entries[0].ID, "most recent first")

	page, err = s.Query(ctx, Query{Category: apperrors.CategoryAuth})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, ids[0], page.Entries[0].ID)

	unresolved := false
	page, err = s.Query(ctx, Query{Resolved: &unresolved})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = s.Query(ctx, Query{Search: "upstream"})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, apperrors.CodeInternal, page.Entries[0].Code)

	page, err = s.Query(ctx, Query{MinSeverity: apperrors.SeverityHigh})
	require.NoError(t, err)
	for _, e := range page.Entries {
		assert.GreaterOrEqual(t, e.Severity.Rank(), apperrors.SeverityHigh.Rank())
	}

	page, err = s.Query(ctx, Query{Since: clock.now.Add(-90 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = s.Query(ctx, Query{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, ids[1], page.Entries[0].ID)
}

func TestCleanupByRetention(t *testing.T) {
	s, clock := openTestStore(t, 7)
	ctx := context.Background()
	old, err := s.Store(ctx, Entry{Code: "OLD", Message: "old"})
	require.NoError(t, err)
	clock.now = clock.now.AddDate(0, 0, 10)
	fresh, err := s.Store(ctx, Entry{Code: "NEW", Message: "new"})
	require.NoError(t, err)

	deleted, err := s.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = s.Get(ctx, old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestCleanupDisabled(t *testing.T) {
	s, _ := openTestStore(t, 0)
	n, err := s.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStats(t *testing.T) {
	s, clock := openTestStore(t, 0)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.Store(ctx, Entry{Code: apperrors.CodeNetworkOffline, Category: apperrors.CategoryNetwork, Message: "offline"})
		require.NoError(t, err)
	}
	clock.now = clock.now.Add(-48 * time.Hour)
	stale, err := s.Store(ctx, Entry{Code: apperrors.CodeInternal, Category: apperrors.CategoryServer, HTTPStatus: 500, Message: "boom"})
	require.NoError(t, err)
	clock.now = clock.now.Add(48 * time.Hour)
	_, err = s.Resolve(ctx, stale.ID)
	require.NoError(t, err)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Fingerprints)
	assert.Equal(t, 4, st.Occurrences)
	assert.Equal(t, 1, st.Unresolved)
	assert.Equal(t, 1, st.LastDay)
	assert.Equal(t, 3, st.ByCode[apperrors.CodeNetworkOffline])
	assert.Equal(t, 1, st.ByCategory[string(apperrors.CategoryServer)])
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.db")
	ctx := context.Background()
	s, err := Open(ctx, Options{Path: path})
	require.NoError(t, err)
	e, err := s.Store(ctx, Entry{Code: "X", Message: "persisted"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, Options{Path: path})
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Message)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Options{})
	assert.Error(t, err)
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint("SERVER_ERROR", 500, "boom")
	assert.Len(t, a, 16)
	assert.Equal(t, a, Fingerprint("SERVER_ERROR", 500, "boom"))
	assert.NotEqual(t, a, Fingerprint("SERVER_ERROR", 502, "boom"))
	assert.NotEqual(t, Fingerprint("ab", 1, "c"), Fingerprint("a", 1, "bc"))
}

func TestIsBusy(t *testing.T) {
	assert.True(t, isBusy(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, isBusy(errors.New("UNIQUE constraint failed")))

	calls := 0
	err := retryBusy(func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = retryBusy(func() error {
		calls++
		return errors.New("syntax error")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPing(t *testing.T) {
	s, _ := openTestStore(t, 0)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}

func TestStoreBatchIsAllOrNothing(t *testing.T) {
	s, _ := openTestStore(t, 0)
	ctx := context.Background()
	good := entryFor(apperrors.MapHTTPError(500, nil))

	bad := Entry{Message: "unencodable", Context: map[string]any{"ch": make(chan int)}}
	_, err := s.StoreBatch(ctx, []Entry{good, bad})
	require.Error(t, err)

	page, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)

	stored, err := s.StoreBatch(ctx, []Entry{good, good, entryFor(apperrors.MapHTTPError(404, nil))})
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, stored[0].ID, stored[1].ID)
	assert.Equal(t, 2, stored[1].Occurrences)

	page, err = s.Query(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
}
