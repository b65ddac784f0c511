package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "faultline-go/internal/errors"
	"faultline-go/internal/errorstore"
	mw "faultline-go/internal/middleware"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

var knownCategories = map[apperrors.Category]bool{
	apperrors.CategoryNetwork:    true,
	apperrors.CategoryAuth:       true,
	apperrors.CategoryValidation: true,
	apperrors.CategoryServer:     true,
	apperrors.CategoryRateLimit:  true,
	apperrors.CategoryPermission: true,
	apperrors.CategoryUnknown:    true,
}

func registerManagementRoutes(mg gin.IRouter, col *collector) {
	mg.GET("/errors", col.listErrors)
	mg.GET("/errors/stats", col.errorStats)
	mg.GET("/errors/export", col.exportErrors)
	mg.POST("/errors/cleanup", col.cleanupErrors)
	mg.GET("/errors/:id", col.getError)
	mg.POST("/errors/:id/resolve", col.resolveError(true))
	mg.POST("/errors/:id/unresolve", col.resolveError(false))
	mg.DELETE("/errors/:id", col.deleteError)
	mg.GET("/status", col.status)
}

func (col *collector) listErrors(c *gin.Context) {
	q, ok := bindArchiveQuery(c)
	if !ok {
		return
	}
	page, err := col.deps.Archive.Query(c.Request.Context(), q)
	if err != nil {
		respondArchiveError(c, "query", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (col *collector) getError(c *gin.Context) {
	entry, err := col.deps.Archive.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondArchiveError(c, "get", err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (col *collector) resolveError(resolved bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			entry errorstore.Entry
			err   error
		)
		if resolved {
			entry, err = col.deps.Archive.Resolve(c.Request.Context(), c.Param("id"))
		} else {
			entry, err = col.deps.Archive.Unresolve(c.Request.Context(), c.Param("id"))
		}
		if err != nil {
			respondArchiveError(c, "resolve", err)
			return
		}
		log.WithFields(log.Fields{"entry_id": entry.ID, "resolved": resolved}).Info("error entry updated")
		c.JSON(http.StatusOK, entry)
	}
}

func (col *collector) deleteError(c *gin.Context) {
	if err := col.deps.Archive.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondArchiveError(c, "delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (col *collector) errorStats(c *gin.Context) {
	stats, err := col.deps.Archive.Stats(c.Request.Context())
	if err != nil {
		respondArchiveError(c, "stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (col *collector) exportErrors(c *gin.Context) {
	q, ok := bindArchiveQuery(c)
	if !ok {
		return
	}
	doc, err := col.deps.Archive.Export(c.Request.Context(), q)
	if err != nil {
		respondArchiveError(c, "export", err)
		return
	}
	setNoCacheHeaders(c)
	name := fmt.Sprintf("faultline-errors-%s.json", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/json; charset=utf-8", doc)
}

func (col *collector) cleanupErrors(c *gin.Context) {
	removed, err := col.deps.Archive.Cleanup(c.Request.Context())
	if err != nil {
		respondArchiveError(c, "cleanup", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"removed":       removed,
		"retentionDays": col.deps.Archive.RetentionDays(),
	})
}

// status reports the collector's own pipeline state.
func (col *collector) status(c *gin.Context) {
	body := gin.H{}
	if h := col.deps.Handler; h != nil {
		body["handler"] = h.Stats()
	}
	if ui := col.deps.UI; ui != nil {
		st := ui.Snapshot()
		body["ui"] = st
		body["unread"] = st.UnreadCount()
	}
	streams := gin.H{}
	if s := col.deps.ErrorStream; s != nil {
		streams["errors"] = s.ConnectionCount()
	}
	if s := col.deps.LogStream; s != nil {
		streams["logs"] = s.ConnectionCount()
	}
	body["streams"] = streams
	body["ingest"] = col.tracker.Snapshot()
	if tm := col.deps.Tasks; tm != nil {
		body["tasks"] = tm.List()
	}
	setNoCacheHeaders(c)
	c.JSON(http.StatusOK, body)
}

// bindArchiveQuery parses the archive filter parameters:
// code, category, severity (minimum), resolved, since (RFC3339 or a
// duration like 24h), q, limit, offset.
func bindArchiveQuery(c *gin.Context) (errorstore.Query, bool) {
	var q errorstore.Query
	fields := map[string][]string{}

	q.Code = strings.ToUpper(strings.TrimSpace(c.Query("code")))
	q.Search = strings.TrimSpace(c.Query("q"))
	if v := strings.TrimSpace(c.Query("category")); v != "" {
		if cat := apperrors.Category(strings.ToLower(v)); knownCategories[cat] {
			q.Category = cat
		} else {
			fields["category"] = append(fields["category"], "unknown category")
		}
	}
	if v := strings.TrimSpace(c.Query("severity")); v != "" {
		if sev := apperrors.Severity(strings.ToLower(v)); sev.Valid() {
			q.MinSeverity = sev
		} else {
			fields["severity"] = append(fields["severity"], "must be low, medium, high or critical")
		}
	}
	if v := strings.TrimSpace(c.Query("resolved")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			q.Resolved = &b
		} else {
			fields["resolved"] = append(fields["resolved"], "must be a boolean")
		}
	}
	if v := strings.TrimSpace(c.Query("since")); v != "" {
		if since, err := parseSince(v, time.Now()); err == nil {
			q.Since = since
		} else {
			fields["since"] = append(fields["since"], err.Error())
		}
	}
	q.Limit = nonNegativeInt(c.Query("limit"), "limit", fields)
	q.Offset = nonNegativeInt(c.Query("offset"), "offset", fields)

	if len(fields) > 0 {
		mw.AbortWithRecord(c, apperrors.NewValidationError("invalid query parameters", fields))
		return q, false
	}
	return q, true
}

func parseSince(v string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return time.Time{}, fmt.Errorf("must be an RFC3339 time or a positive duration")
	}
	return now.Add(-d), nil
}

func nonNegativeInt(v, field string, fields map[string][]string) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		fields[field] = append(fields[field], "must be a non-negative integer")
		return 0
	}
	return n
}
