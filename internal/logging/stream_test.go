package logging

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamerFetchSince(t *testing.T) {
	s := NewStreamer(3)
	for i := 0; i < 5; i++ {
		s.Publish(StreamMessage{Kind: "test"})
	}

	msgs, next, more := s.FetchSince(0, 0)
	require.Len(t, msgs, 3, "history is bounded")
	assert.Equal(t, uint64(3), msgs[0].ID)
	assert.Equal(t, uint64(5), next)
	assert.False(t, more)

	msgs, next, more = s.FetchSince(3, 1)
	require.Len(t, msgs, 1)
	assert.Equal(t, uint64(4), msgs[0].ID)
	assert.Equal(t, uint64(4), next)
	assert.True(t, more)

	msgs, next, _ = s.FetchSince(5, 10)
	assert.Empty(t, msgs)
	assert.Equal(t, uint64(5), next)
}

func TestStreamerEmpty(t *testing.T) {
	msgs, next, more := NewStreamer(0).FetchSince(7, 10)
	assert.Empty(t, msgs)
	assert.Equal(t, uint64(7), next)
	assert.False(t, more)
}

func TestStreamerDeliversReplayThenLive(t *testing.T) {
	s := NewStreamer(10)
	s.Publish(StreamMessage{Kind: "history"})
	defer s.Stop()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		replay, _, _ := s.FetchSince(0, 0)
		if err := s.AddClient(conn, replay); err != nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first StreamMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "history", first.Kind)

	require.Eventually(t, func() bool { return s.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)
	s.Publish(StreamMessage{Kind: "live", Payload: map[string]any{"code": "X"}})

	var second StreamMessage
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "live", second.Kind)
	assert.Equal(t, uint64(2), second.ID)
}

func TestStreamerConnectionLimit(t *testing.T) {
	s := NewStreamer(10)
	s.SetMaxConnections(0)
	assert.ErrorIs(t, s.AddClient(nil, nil), ErrMaxConnectionsReached)
}

func TestLogrusHookLevels(t *testing.T) {
	s := NewStreamer(10)
	hook := NewLogrusHook(s, log.WarnLevel)
	assert.Contains(t, hook.Levels(), log.ErrorLevel)
	assert.NotContains(t, hook.Levels(), log.InfoLevel)

	logger := log.New()
	logger.AddHook(hook)
	logger.SetOutput(&strings.Builder{})
	logger.WithField("code", "NETWORK_OFFLINE").Warn("delivery failed")
	logger.Info("ignored")

	msgs, _, _ := s.FetchSince(0, 0)
	require.Len(t, msgs, 1)
	assert.Equal(t, "log", msgs[0].Kind)
	assert.Equal(t, "warning", msgs[0].Level)
	assert.Equal(t, "NETWORK_OFFLINE", msgs[0].Fields["code"])
}
