package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"faultline-go/internal/constants"
	apperrors "faultline-go/internal/errors"
	"faultline-go/internal/errorlog"
	"faultline-go/internal/errorstore"
	"faultline-go/internal/events"
	"faultline-go/internal/logging"
	mw "faultline-go/internal/middleware"
	"faultline-go/internal/monitoring"
	"faultline-go/internal/recovery"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	sourceLogger  = "logger"
	sourceHandler = "handler"
)

// logEnvelope is a delivered LogEntry without its error, which is
// normalized separately from the raw JSON.
type logEnvelope struct {
	ID string `json:"id"`
	errorlog.Context
	TraceID string `json:"traceId"`
	Stack   string `json:"stack"`
}

func registerIngestRoutes(api gin.IRouter, col *collector) {
	api.POST("/errors", col.trackIngest, col.ingestEntry)
	api.POST("/errors/batch", col.trackIngest, col.ingestBatch)
}

// trackIngest records the outcome of an ingest request.
func (col *collector) trackIngest(c *gin.Context) {
	start := time.Now()
	c.Next()
	col.tracker.Record(c.FullPath(), c.Writer.Status(), time.Since(start))
}

// ingestEntry accepts one LogEntry as delivered by the error logger.
func (col *collector) ingestEntry(c *gin.Context) {
	body, ok := readBody(c, col.cfg.Server.MaxBodyBytes)
	if !ok {
		return
	}
	entry, invalid := entryFromLogEntry(body)
	if invalid != nil {
		mw.AbortWithRecord(c, invalid)
		return
	}
	stored, err := col.archive(c.Request.Context(), sourceLogger, entry)
	if err != nil {
		respondArchiveError(c, "store", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"id":          stored.ID,
		"fingerprint": stored.Fingerprint,
		"occurrences": stored.Occurrences,
		"code":        stored.Code,
		"severity":    stored.Severity,
	})
}

// ingestBatch accepts {errors:[...]} as flushed by the global handler.
func (col *collector) ingestBatch(c *gin.Context) {
	body, ok := readBody(c, col.cfg.Server.MaxBodyBytes)
	if !ok {
		return
	}
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		mw.AbortWithRecord(c, apperrors.New(http.StatusBadRequest, apperrors.CodeBadRequest, "body must be a JSON object"))
		return
	}
	list := gjson.GetBytes(body, "errors")
	if !list.IsArray() {
		mw.AbortWithRecord(c, apperrors.NewValidationError("invalid batch", map[string][]string{
			"errors": {"must be an array"},
		}))
		return
	}
	if n := len(list.Array()); n > constants.IngestBatchLimit {
		mw.AbortWithRecord(c, apperrors.NewValidationError("invalid batch", map[string][]string{
			"errors": {fmt.Sprintf("at most %d reports per batch, got %d", constants.IngestBatchLimit, n)},
		}))
		return
	}

	var batch recovery.Batch
	if err := json.Unmarshal(body, &batch); err != nil {
		mw.AbortWithRecord(c, apperrors.New(http.StatusBadRequest, apperrors.CodeBadRequest, "malformed batch: "+err.Error()))
		return
	}
	fields := map[string][]string{}
	for i, r := range batch.Errors {
		if r.Message == "" && r.Code == "" {
			fields[fmt.Sprintf("errors[%d]", i)] = []string{"message or code is required"}
		}
	}
	if len(fields) > 0 {
		mw.AbortWithRecord(c, apperrors.NewValidationError("invalid batch", fields))
		return
	}

	entries := make([]errorstore.Entry, len(batch.Errors))
	for i, r := range batch.Errors {
		entries[i] = entryFromReport(r)
	}
	// 整批一个事务，要么全部写入要么都不写入
	stored, err := col.deps.Archive.StoreBatch(c.Request.Context(), entries)
	if err != nil {
		respondArchiveError(c, "store", err)
		return
	}
	ids := make([]string, 0, len(stored))
	for _, e := range stored {
		col.publish(c.Request.Context(), sourceHandler, e)
		ids = append(ids, e.ID)
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": len(ids), "ids": ids})
}

// archive stores one occurrence, then publishes it on the hub and the live
// error stream.
func (col *collector) archive(ctx context.Context, endpoint string, e errorstore.Entry) (errorstore.Entry, error) {
	stored, err := col.deps.Archive.Store(ctx, e)
	if err != nil {
		return stored, err
	}
	col.publish(ctx, endpoint, stored)
	return stored, nil
}

func (col *collector) publish(ctx context.Context, endpoint string, stored errorstore.Entry) {
	monitoring.IngestedTotal.WithLabelValues(endpoint, string(stored.Category)).Inc()
	log.WithFields(log.Fields{
		"entry_id":    stored.ID,
		"code":        stored.Code,
		"severity":    stored.Severity,
		"occurrences": stored.Occurrences,
		"source":      stored.Source,
	}).Debug("error ingested")

	if col.deps.Events != nil {
		col.deps.Events.Publish(ctx, events.TopicErrorIngested, stored, map[string]string{
			"source":   endpoint,
			"code":     stored.Code,
			"severity": string(stored.Severity),
		})
	}
	if col.deps.ErrorStream != nil {
		col.deps.ErrorStream.Publish(logging.StreamMessage{
			Kind:      "error",
			Timestamp: stored.LastSeen,
			Level:     string(stored.Severity),
			Message:   stored.Message,
			Payload:   stored,
		})
	}
}

// entryFromLogEntry validates a delivered LogEntry and normalizes its error
// again. Normalizing an already normalized record returns it unchanged.
func entryFromLogEntry(body []byte) (errorstore.Entry, *apperrors.ErrorRecord) {
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return errorstore.Entry{}, apperrors.New(http.StatusBadRequest, apperrors.CodeBadRequest, "body must be a JSON object")
	}
	raw := gjson.GetBytes(body, "error")
	var rec *apperrors.ErrorRecord
	switch raw.Type {
	case gjson.String:
		rec = apperrors.Normalize(raw.String())
	case gjson.JSON:
		if !raw.IsObject() {
			break
		}
		rec = apperrors.Normalize(json.RawMessage(raw.Raw))
	}
	if rec == nil {
		return errorstore.Entry{}, apperrors.NewValidationError("invalid log entry", map[string][]string{
			"error": {"must be an error object or message"},
		})
	}

	var env logEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return errorstore.Entry{}, apperrors.NewValidationError("invalid log entry", map[string][]string{
			"entry": {err.Error()},
		})
	}

	ctx := make(map[string]any, len(env.Extra)+1)
	for k, v := range env.Extra {
		ctx[k] = v
	}
	if env.ID != "" {
		ctx["entryId"] = env.ID
	}
	return errorstore.Entry{
		Code:          rec.Code,
		Category:      rec.Category,
		Severity:      rec.Severity,
		HTTPStatus:    rec.HTTPStatus,
		Message:       rec.Message,
		UserMessage:   rec.UserMessage,
		Source:        sourceLogger,
		URL:           env.URL,
		UserAgent:     env.UserAgent,
		UserID:        env.UserID,
		SessionID:     env.SessionID,
		CorrelationID: rec.CorrelationID,
		TraceID:       env.TraceID,
		Stack:         env.Stack,
		Context:       ctx,
	}, nil
}

// entryFromReport converts one handler report. The report's code and
// severity win over what the message alone would classify as.
func entryFromReport(r recovery.Report) errorstore.Entry {
	rec := apperrors.Normalize(r.Message)
	code, status := rec.Code, rec.HTTPStatus
	if r.Code != "" && r.Code != rec.Code {
		code, status = r.Code, 0
	}
	message := r.Message
	if message == "" {
		message = code
	}
	severity := r.Severity
	if !severity.Valid() {
		severity = apperrors.SeverityFor(code, status)
	}
	ctx := make(map[string]any, len(r.Context)+2)
	for k, v := range r.Context {
		ctx[k] = v
	}
	if r.ID != "" {
		ctx["reportId"] = r.ID
	}
	if r.Source != "" {
		ctx["reportSource"] = string(r.Source)
	}
	return errorstore.Entry{
		Code:          code,
		Category:      apperrors.CategoryFor(code, status),
		Severity:      severity,
		HTTPStatus:    status,
		Message:       message,
		UserMessage:   rec.UserMessage,
		Source:        sourceHandler,
		CorrelationID: r.CorrelationID,
		Stack:         r.Stack,
		Context:       ctx,
	}
}
