package server

import (
	"errors"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"faultline-go/internal/config"
	"faultline-go/internal/constants"
	apperrors "faultline-go/internal/errors"
	"faultline-go/internal/logging"
	mw "faultline-go/internal/middleware"
	"github.com/gin-gonic/gin"
	ws "github.com/gorilla/websocket"
)

const (
	streamPongWait     = 90 * time.Second
	streamPingInterval = 30 * time.Second
	streamPingTimeout  = 10 * time.Second
)

func registerStreamRoutes(mg gin.IRouter, cfg *config.Config, deps Dependencies) {
	upgrader := newUpgrader(cfg.Security.CORSOrigins)
	if deps.ErrorStream != nil {
		mg.GET("/ws/errors", streamHandler(upgrader, deps.ErrorStream))
		mg.GET("/stream/errors", historyHandler(deps.ErrorStream))
	}
	if deps.LogStream != nil {
		mg.GET("/ws/logs", streamHandler(upgrader, deps.LogStream))
		mg.GET("/stream/logs", historyHandler(deps.LogStream))
	}
}

// newUpgrader accepts same-host origins and the configured CORS origins.
func newUpgrader(origins []string) *ws.Upgrader {
	var allowed []string
	for _, p := range origins {
		if p = strings.TrimSpace(p); p != "" && p != "*" {
			allowed = append(allowed, p)
		}
	}
	return &ws.Upgrader{CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := neturl.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		for _, a := range allowed {
			if strings.EqualFold(a, origin) {
				return true
			}
			if au, err2 := neturl.Parse(a); err2 == nil && au.Host != "" {
				if strings.EqualFold(au.Host, u.Host) {
					return true
				}
			} else if strings.EqualFold(a, u.Host) {
				return true
			}
		}
		return false
	}}
}

// streamCursor reads since and limit. Without since, the newest limit
// messages (default StreamReplayDefault) are replayed.
func streamCursor(c *gin.Context) (since uint64, limit int, ok bool) {
	fields := map[string][]string{}
	if v := strings.TrimSpace(c.Query("since")); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			fields["since"] = []string{"must be a message id"}
		}
		since = n
	}
	limit = constants.StreamReplayDefault
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fields["limit"] = []string{"must be a non-negative integer"}
		}
		limit = n
	}
	if len(fields) > 0 {
		mw.AbortWithRecord(c, apperrors.NewValidationError("invalid stream cursor", fields))
		return 0, 0, false
	}
	return since, limit, true
}

// historyHandler is the polling variant of the stream.
func historyHandler(s *logging.Streamer) gin.HandlerFunc {
	return func(c *gin.Context) {
		since, limit, ok := streamCursor(c)
		if !ok {
			return
		}
		if limit == 0 {
			limit = constants.StreamReplayDefault
		}
		msgs, next, more := s.FetchSince(since, limit)
		setNoCacheHeaders(c)
		c.JSON(http.StatusOK, gin.H{"messages": msgs, "cursor": next, "more": more})
	}
}

func streamHandler(upgrader *ws.Upgrader, s *logging.Streamer) gin.HandlerFunc {
	return func(c *gin.Context) {
		since, limit, ok := streamCursor(c)
		if !ok {
			return
		}
		var replay []logging.StreamMessage
		if limit > 0 {
			replay, _, _ = s.FetchSince(since, limit)
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade has already answered the client.
			return
		}

		// Try to add client (may fail if max connections reached)
		if err := s.AddClient(conn, replay); err != nil {
			msg := "stream unavailable"
			if errors.Is(err, logging.ErrMaxConnectionsReached) {
				msg = "maximum connections reached"
			}
			_ = conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseTryAgainLater, msg), time.Now().Add(streamPingTimeout))
			_ = conn.Close()
			return
		}
		logging.WithReq(c, nil).WithField("replayed", len(replay)).Debug("stream replay sent")

		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			s.Touch(conn)
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})

		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(streamPingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := conn.WriteControl(ws.PingMessage, []byte("ping"), time.Now().Add(streamPingTimeout)); err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		// Read loop keeps the connection alive; client messages only count as activity.
		for {
			if _, _, err := conn.NextReader(); err != nil {
				close(done)
				s.RemoveClient(conn)
				return
			}
			s.Touch(conn)
		}
	}
}
