package logging

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"faultline-go/internal/constants"
	"faultline-go/internal/monitoring"
	"faultline-go/internal/ringbuf"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// ErrMaxConnectionsReached is returned by AddClient when the stream is full.
var ErrMaxConnectionsReached = errors.New("maximum WebSocket connections reached")

// StreamMessage is one message pushed to stream clients.
type StreamMessage struct {
	ID        uint64         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      string         `json:"kind"`
	Level     string         `json:"level,omitempty"`
	Message   string         `json:"message,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Payload   any            `json:"payload,omitempty"`
}

type streamClient struct {
	conn         *websocket.Conn
	send         chan StreamMessage
	lastActivity atomic.Int64
	done         chan struct{}
	closeOnce    sync.Once
}

func (c *streamClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Streamer broadcasts messages to websocket clients and keeps a bounded
// replay history addressed by increasing ids.
type Streamer struct {
	mu              sync.RWMutex
	clients         map[*websocket.Conn]*streamClient
	history         *ringbuf.Buffer[StreamMessage]
	historyMu       sync.RWMutex
	seq             atomic.Uint64
	maxConnections  int
	idleTimeout     time.Duration
	cleanupInterval time.Duration
	writeTimeout    time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

// NewStreamer creates a streamer keeping historyCap messages for replay.
func NewStreamer(historyCap int) *Streamer {
	if historyCap <= 0 {
		historyCap = constants.StreamHistoryCapacity
	}
	return &Streamer{
		clients:         make(map[*websocket.Conn]*streamClient),
		history:         ringbuf.New[StreamMessage](historyCap),
		maxConnections:  100,
		idleTimeout:     30 * time.Minute,
		cleanupInterval: 2 * time.Minute,
		writeTimeout:    10 * time.Second,
		stopCh:          make(chan struct{}),
	}
}

// Start runs the idle-connection cleanup loop.
func (s *Streamer) Start() {
	go func() {
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.cleanupIdle()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop disconnects every client.
func (s *Streamer) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, c := range s.clients {
		c.close()
		delete(s.clients, conn)
	}
	monitoring.StreamClients.Set(0)
}

// AddClient registers conn and sends it replay before any live message.
// The streamer owns all writes to conn from then on.
func (s *Streamer) AddClient(conn *websocket.Conn, replay []StreamMessage) error {
	s.mu.Lock()
	if len(s.clients) >= s.maxConnections {
		s.mu.Unlock()
		log.Warnf("WebSocket connection limit reached (%d), rejecting new connection", s.maxConnections)
		return ErrMaxConnectionsReached
	}
	c := &streamClient{
		conn: conn,
		send: make(chan StreamMessage, 256),
		done: make(chan struct{}),
	}
	c.lastActivity.Store(time.Now().UnixNano())
	for _, msg := range replay {
		select {
		case c.send <- msg:
		default:
		}
	}
	s.clients[conn] = c
	total := len(s.clients)
	s.mu.Unlock()

	monitoring.StreamClients.Set(float64(total))
	log.WithField("total", total).Info("stream client connected")
	go s.writePump(c)
	return nil
}

func (s *Streamer) writePump(c *streamClient) {
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("stream write failed")
				s.RemoveClient(c.conn)
				return
			}
			c.lastActivity.Store(time.Now().UnixNano())
		case <-c.done:
			return
		}
	}
}

// RemoveClient disconnects conn.
func (s *Streamer) RemoveClient(conn *websocket.Conn) {
	s.mu.Lock()
	c, ok := s.clients[conn]
	if ok {
		delete(s.clients, conn)
	}
	total := len(s.clients)
	s.mu.Unlock()
	if !ok {
		return
	}
	c.close()
	monitoring.StreamClients.Set(float64(total))
	log.WithField("remaining", total).Info("stream client disconnected")
}

// Touch marks conn as active, typically on an inbound ping.
func (s *Streamer) Touch(conn *websocket.Conn) {
	s.mu.RLock()
	c, ok := s.clients[conn]
	s.mu.RUnlock()
	if ok {
		c.lastActivity.Store(time.Now().UnixNano())
	}
}

func (s *Streamer) cleanupIdle() {
	cutoff := time.Now().Add(-s.idleTimeout).UnixNano()
	s.mu.Lock()
	var idle []*streamClient
	for conn, c := range s.clients {
		if c.lastActivity.Load() < cutoff {
			idle = append(idle, c)
			delete(s.clients, conn)
		}
	}
	total := len(s.clients)
	s.mu.Unlock()

	for _, c := range idle {
		c.close()
	}
	if len(idle) > 0 {
		monitoring.StreamClients.Set(float64(total))
		log.Infof("Cleaned up %d idle stream connections (remaining: %d)", len(idle), total)
	}
}

// ConnectionCount returns the current number of connected clients.
func (s *Streamer) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// SetMaxConnections sets the maximum number of concurrent connections.
func (s *Streamer) SetMaxConnections(max int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxConnections = max
}

// SetIdleTimeout sets the idle timeout duration.
func (s *Streamer) SetIdleTimeout(timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idleTimeout = timeout
}

// Publish records msg in history and queues it for every client. Slow
// clients drop messages instead of blocking the publisher.
func (s *Streamer) Publish(msg StreamMessage) StreamMessage {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	s.historyMu.Lock()
	msg.ID = s.seq.Add(1)
	s.history.Push(msg)
	s.historyMu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
	return msg
}

// FetchSince returns up to limit messages newer than cursor, the cursor to
// continue from and whether more are pending. A zero cursor returns the
// newest limit messages.
func (s *Streamer) FetchSince(cursor uint64, limit int) ([]StreamMessage, uint64, bool) {
	s.historyMu.RLock()
	history := s.history.Values()
	s.historyMu.RUnlock()

	if limit <= 0 || limit > s.history.Cap() {
		limit = s.history.Cap()
	}
	total := len(history)
	if total == 0 {
		return []StreamMessage{}, cursor, false
	}

	start := 0
	if cursor == 0 {
		if total > limit {
			start = total - limit
		}
	} else {
		start = total
		for i, msg := range history {
			if msg.ID > cursor {
				start = i
				break
			}
		}
		if start >= total {
			return []StreamMessage{}, cursor, false
		}
	}

	end := start + limit
	if end > total {
		end = total
	}
	out := append([]StreamMessage(nil), history[start:end]...)
	next := cursor
	if len(out) > 0 {
		next = out[len(out)-1].ID
	}
	return out, next, end < total
}

// LogrusHook streams log lines at or above a minimum level.
type LogrusHook struct {
	streamer *Streamer
	levels   []log.Level
}

// NewLogrusHook creates a hook streaming entries at min level or more severe.
func NewLogrusHook(s *Streamer, min log.Level) *LogrusHook {
	var levels []log.Level
	for _, l := range log.AllLevels {
		if l <= min {
			levels = append(levels, l)
		}
	}
	return &LogrusHook{streamer: s, levels: levels}
}

// Levels returns the log levels this hook will fire for
func (hook *LogrusHook) Levels() []log.Level {
	return hook.levels
}

// Fire is called when a log event occurs
func (hook *LogrusHook) Fire(entry *log.Entry) error {
	fields := make(map[string]any, len(entry.Data))
	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		fields[k] = v
	}
	hook.streamer.Publish(StreamMessage{
		Kind:      "log",
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
		Fields:    fields,
	})
	return nil
}

// InstallStreamHook streams warnings and errors from the global logger.
func InstallStreamHook(s *Streamer) {
	log.AddHook(NewLogrusHook(s, log.WarnLevel))
}
