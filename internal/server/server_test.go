package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"faultline-go/internal/config"
	"faultline-go/internal/constants"
	apperrors "faultline-go/internal/errors"
	"faultline-go/internal/errorstore"
	"faultline-go/internal/events"
	"faultline-go/internal/logging"
	"faultline-go/internal/recovery"
	rt "faultline-go/internal/runtime"
	"faultline-go/internal/storage"
	"faultline-go/internal/uistate"
	"github.com/gin-gonic/gin"
	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const testKey = "test-management-key"

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	engine *gin.Engine
	cfg    *config.Config
	deps   Dependencies
	hub    *events.Hub
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Security.ManagementKey = testKey
	cfg.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	archive, err := errorstore.Open(context.Background(), errorstore.Options{
		Path:          filepath.Join(t.TempDir(), "errors.db"),
		RetentionDays: 30,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Close() })

	hub := events.NewHub()
	ui := uistate.New(uistate.Options{Backend: storage.NewMemoryBackend()})
	t.Cleanup(ui.Close)
	errStream := logging.NewStreamer(50)
	logStream := logging.NewStreamer(50)
	t.Cleanup(errStream.Stop)
	t.Cleanup(logStream.Stop)

	handler := recovery.New(recovery.Options{Notifier: ui})
	tasks := rt.NewTaskManager(context.Background(), handler)
	t.Cleanup(tasks.StopAll)

	deps := Dependencies{
		Archive:     archive,
		Handler:     handler,
		Tasks:       tasks,
		UI:          ui,
		Events:      hub,
		ErrorStream: errStream,
		LogStream:   logStream,
	}
	return &testServer{engine: BuildEngine(cfg, deps), cfg: cfg, deps: deps, hub: hub}
}

func (s *testServer) do(method, path string, body []byte, authed bool) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) apperrors.Envelope {
	t.Helper()
	var env apperrors.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func logEntryBody(t *testing.T, errValue any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":        "entry-1",
		"error":     errValue,
		"loggedAt":  time.Now().UTC(),
		"url":       "https://app.example/checkout",
		"userAgent": "test-agent",
		"userId":    "u-1",
		"sessionId": "s-1",
		"extra":     map[string]any{"route": "/checkout"},
		"traceId":   "4bf92f3577b34da6a3ce929d0e0e4736",
	})
	require.NoError(t, err)
	return body
}

func TestIngestEntryStoresAndPublishes(t *testing.T) {
	s := newTestServer(t, nil)

	var mu sync.Mutex
	var published []errorstore.Entry
	s.hub.Subscribe(events.TopicErrorIngested, func(_ context.Context, ev events.Event) {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, ev.Payload.(errorstore.Entry))
	})

	body := logEntryBody(t, apperrors.MapHTTPError(http.StatusInternalServerError, nil))
	w := s.do(http.MethodPost, "/api/v1/errors", body, false)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, apperrors.CodeInternal, gjson.Get(w.Body.String(), "code").String())
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "occurrences").Int())

	w = s.do(http.MethodPost, "/api/v1/errors", body, false)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), "occurrences").Int())

	id := gjson.Get(w.Body.String(), "id").String()
	stored, err := s.deps.Archive.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "https://app.example/checkout", stored.URL)
	assert.Equal(t, "u-1", stored.UserID)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", stored.TraceID)
	assert.Equal(t, "/checkout", stored.Context["route"])
	assert.Equal(t, "entry-1", stored.Context["entryId"])
	assert.Equal(t, apperrors.SeverityCritical, stored.Severity)

	mu.Lock()
	assert.Len(t, published, 2)
	mu.Unlock()

	msgs, cursor, more := s.deps.ErrorStream.FetchSince(0, 10)
	require.Len(t, msgs, 2)
	assert.Equal(t, "error", msgs[0].Kind)
	assert.Equal(t, msgs[1].ID, cursor)
	assert.False(t, more)
}

func TestIngestEntryNormalizesRawErrors(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("message string", func(t *testing.T) {
		want := apperrors.Normalize("Failed to fetch")
		w := s.do(http.MethodPost, "/api/v1/errors", logEntryBody(t, "Failed to fetch"), false)
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		assert.Equal(t, want.Code, gjson.Get(w.Body.String(), "code").String())
	})

	t.Run("raw http payload", func(t *testing.T) {
		raw := map[string]any{"status": 429, "message": "slow down", "retryAfterSeconds": 7}
		w := s.do(http.MethodPost, "/api/v1/errors", logEntryBody(t, raw), false)
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		assert.Equal(t, apperrors.CodeRateLimit, gjson.Get(w.Body.String(), "code").String())
	})
}

func TestIngestEntryRejectsInvalidPayloads(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodPost, "/api/v1/errors", []byte("not json"), false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.CodeBadRequest, decodeEnvelope(t, w).Error.Code)
	assert.NotEmpty(t, decodeEnvelope(t, w).Error.CorrelationID)

	w = s.do(http.MethodPost, "/api/v1/errors", []byte(`{"url":"x"}`), false)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apperrors.CodeValidation, decodeEnvelope(t, w).Error.Code)

	w = s.do(http.MethodPost, "/api/v1/errors", []byte(`{"error":42}`), false)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodPost, "/api/v1/errors", []byte(`{"error":"boom","url":7}`), false)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestIngestRejectsOversizedBody(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.Server.MaxBodyBytes = 64 })
	body := logEntryBody(t, strings.Repeat("x", 200))
	w := s.do(http.MethodPost, "/api/v1/errors", body, false)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestIngestBatch(t *testing.T) {
	s := newTestServer(t, nil)

	batch := recovery.Batch{Errors: []recovery.Report{
		{ID: "r1", Message: "nil map write", Severity: apperrors.SeverityCritical, Source: recovery.SourcePanic, Code: apperrors.CodeUnknown, Stack: "goroutine 1"},
		{ID: "r2", Message: "upstream unavailable", Code: apperrors.CodeServiceUnavailable, Context: map[string]any{"job": "sync"}},
	}}
	body, err := json.Marshal(batch)
	require.NoError(t, err)

	w := s.do(http.MethodPost, "/api/v1/errors/batch", body, false)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), "accepted").Int())
	ids := gjson.Get(w.Body.String(), "ids").Array()
	require.Len(t, ids, 2)

	first, err := s.deps.Archive.Get(context.Background(), ids[0].String())
	require.NoError(t, err)
	assert.Equal(t, apperrors.SeverityCritical, first.Severity)
	assert.Equal(t, "goroutine 1", first.Stack)
	assert.Equal(t, "panic", first.Context["reportSource"])

	second, err := s.deps.Archive.Get(context.Background(), ids[1].String())
	require.NoError(t, err)
	assert.Equal(t, apperrors.CodeServiceUnavailable, second.Code)
	assert.Equal(t, apperrors.CategoryServer, second.Category)
	assert.Equal(t, apperrors.SeverityHigh, second.Severity)
	assert.Equal(t, "sync", second.Context["job"])

	w = s.do(http.MethodPost, "/api/v1/errors/batch", body, false)
	require.Equal(t, http.StatusAccepted, w.Code)
	second, err = s.deps.Archive.Get(context.Background(), ids[1].String())
	require.NoError(t, err)
	assert.Equal(t, 2, second.Occurrences)

	require.NoError(t, s.deps.Archive.Close())
	w = s.do(http.MethodPost, "/api/v1/errors/batch", body, false)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestIngestBatchValidation(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodPost, "/api/v1/errors/batch", []byte(`{"errors":{}}`), false)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodPost, "/api/v1/errors/batch", []byte(`{"errors":[{"message":"ok"},{}]}`), false)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, strings.Join(decodeEnvelope(t, w).Error.Details, " "), "errors[1]")

	items := make([]string, constants.IngestBatchLimit+1)
	for i := range items {
		items[i] = `{"message":"m"}`
	}
	w = s.do(http.MethodPost, "/api/v1/errors/batch", []byte(`{"errors":[`+strings.Join(items, ",")+`]}`), false)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	page, err := s.deps.Archive.Query(context.Background(), errorstore.Query{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestManagementRequiresKey(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(http.MethodGet, "/api/v1/errors", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/v1/errors?key="+testKey, nil, false)
	assert.Equal(t, http.StatusOK, w.Code)

	disabled := newTestServer(t, func(cfg *config.Config) { cfg.Security.ManagementKey = "" })
	w = disabled.do(http.MethodGet, "/api/v1/errors", nil, true)
	assert.Equal(t, http.StatusForbidden, w.Code)
	// ingest stays public
	w = disabled.do(http.MethodPost, "/api/v1/errors", logEntryBody(t, "boom"), false)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func seed(t *testing.T, s *testServer, errValue any) string {
	t.Helper()
	w := s.do(http.MethodPost, "/api/v1/errors", logEntryBody(t, errValue), false)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	return gjson.Get(w.Body.String(), "id").String()
}

func TestManagementQueryAndLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	serverID := seed(t, s, apperrors.MapHTTPError(http.StatusBadGateway, nil))
	seed(t, s, apperrors.MapHTTPError(http.StatusUnprocessableEntity, []byte(`{"errors":{"email":["is invalid"]}}`)))

	w := s.do(http.MethodGet, "/api/v1/errors?category=server", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "total").Int())
	assert.Equal(t, serverID, gjson.Get(w.Body.String(), "entries.0.id").String())

	w = s.do(http.MethodGet, "/api/v1/errors?severity=critical&since=1h", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "total").Int())

	w = s.do(http.MethodGet, "/api/v1/errors?severity=urgent&limit=-1&resolved=maybe", nil, true)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Len(t, decodeEnvelope(t, w).Error.Details, 3)

	w = s.do(http.MethodGet, "/api/v1/errors/"+serverID, nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, apperrors.CodeBadGateway, gjson.Get(w.Body.String(), "code").String())

	w = s.do(http.MethodPost, "/api/v1/errors/"+serverID+"/resolve", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gjson.Get(w.Body.String(), "resolved").Bool())

	w = s.do(http.MethodGet, "/api/v1/errors?resolved=false", nil, true)
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "total").Int())

	w = s.do(http.MethodPost, "/api/v1/errors/"+serverID+"/unresolve", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, gjson.Get(w.Body.String(), "resolved").Bool())

	w = s.do(http.MethodGet, "/api/v1/errors/stats", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), "fingerprints").Int())
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), "unresolved").Int())

	w = s.do(http.MethodDelete, "/api/v1/errors/"+serverID, nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(http.MethodGet, "/api/v1/errors/"+serverID, nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperrors.CodeNotFound, decodeEnvelope(t, w).Error.Code)
	w = s.do(http.MethodPost, "/api/v1/errors/missing/resolve", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestManagementExportAndCleanup(t *testing.T) {
	s := newTestServer(t, nil)
	seed(t, s, "Failed to fetch")
	seed(t, s, apperrors.MapHTTPError(http.StatusInternalServerError, nil))

	w := s.do(http.MethodGet, "/api/v1/errors/export", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), "count").Int())
	assert.Equal(t, constants.Version, gjson.Get(w.Body.String(), "version").String())

	w = s.do(http.MethodPost, "/api/v1/errors/cleanup", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(0), gjson.Get(w.Body.String(), "removed").Int())
	assert.Equal(t, int64(30), gjson.Get(w.Body.String(), "retentionDays").Int())
}

func TestStatusAndHealthz(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodGet, "/healthz", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", gjson.Get(w.Body.String(), "status").String())

	s.deps.UI.SetSystemHealth(uistate.SystemHealth{
		Status:    uistate.StatusDown,
		LastCheck: time.Now(),
		Services:  uistate.Services{Database: uistate.StatusDown, API: uistate.StatusHealthy, Cache: uistate.StatusHealthy},
	})
	w = s.do(http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "down", gjson.Get(w.Body.String(), "services.database").String())

	require.Equal(t, http.StatusAccepted, s.do(http.MethodPost, "/api/v1/errors", logEntryBody(t, "Network request failed"), false).Code)
	require.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/errors", []byte(`[1]`), false).Code)

	w = s.do(http.MethodGet, "/api/v1/status", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gjson.Get(w.Body.String(), "handler").Exists())
	assert.Equal(t, int64(0), gjson.Get(w.Body.String(), "streams.errors").Int())
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), "ingest.requests").Int())
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "ingest.rejected").Int())
	assert.True(t, gjson.Get(w.Body.String(), "tasks").IsArray())
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), `ingest.endpoints.\/api\/v1\/errors.requests`).Int())

	w = s.do(http.MethodGet, "/metrics", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "faultline_http_requests_total")
}

func TestPanicsAreReportedThroughHandler(t *testing.T) {
	s := newTestServer(t, nil)
	s.engine.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := s.do(http.MethodGet, "/boom", nil, false)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, gjson.Get(w.Body.String(), "error.report_id").String())

	st := s.deps.Handler.Stats()
	assert.Equal(t, 1, st.BySource[recovery.SourcePanic])
	assert.Equal(t, 1, st.BySeverity[apperrors.SeverityCritical])
}

func TestStreamHistoryEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	seed(t, s, "first")
	seed(t, s, "second")
	seed(t, s, "third")

	w := s.do(http.MethodGet, "/api/v1/stream/errors?limit=2", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	msgs := gjson.Get(w.Body.String(), "messages").Array()
	require.Len(t, msgs, 2)
	assert.Equal(t, "second", msgs[0].Get("message").String())

	cursor := msgs[0].Get("id").Int()
	w = s.do(http.MethodGet, fmt.Sprintf("/api/v1/stream/errors?since=%d&limit=1", cursor), nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "third", gjson.Get(w.Body.String(), "messages.0.message").String())
	assert.False(t, gjson.Get(w.Body.String(), "more").Bool())

	w = s.do(http.MethodGet, "/api/v1/stream/errors?since=abc", nil, true)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestWebsocketStreamReplaysAndFollows(t *testing.T) {
	s := newTestServer(t, nil)
	seed(t, s, "before connect")

	srv := httptest.NewServer(s.engine)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/errors?key=" + testKey + "&limit=10"
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() logging.StreamMessage {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		var msg logging.StreamMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	replayed := read()
	assert.Equal(t, "error", replayed.Kind)
	assert.Equal(t, "before connect", replayed.Message)

	require.Eventually(t, func() bool { return s.deps.ErrorStream.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	seed(t, s, "after connect")
	live := read()
	assert.Equal(t, "after connect", live.Message)
	assert.Greater(t, live.ID, replayed.ID)
}

func TestWebsocketRequiresKey(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/errors"
	_, resp, err := ws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUpgraderOriginCheck(t *testing.T) {
	up := newUpgrader([]string{"https://dash.example"})
	req := httptest.NewRequest(http.MethodGet, "http://collector.local/api/v1/ws/errors", nil)

	assert.True(t, up.CheckOrigin(req))
	req.Header.Set("Origin", "https://dash.example")
	assert.True(t, up.CheckOrigin(req))
	req.Header.Set("Origin", "http://collector.local")
	assert.True(t, up.CheckOrigin(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, up.CheckOrigin(req))
}
