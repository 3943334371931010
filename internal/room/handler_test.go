package room

import (
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readUntil(t *testing.T, conn *websocket.Conn, eventType string) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env Envelope
		require.NoError(t, conn.ReadJSON(&env))
		if env.Type == eventType {
			return env.Content
		}
	}
}

func TestServeWsRoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _ := newTestHub(t, nil, nil, Options{})

	r := gin.New()
	r.GET("/ws", ServeWs(h, Upgrader([]string{"*"})))
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?room=lobby&name=" + url.QueryEscape("앨리스")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	var stats LobbyStatsPayload
	require.NoError(t, json.Unmarshal(readUntil(t, conn, EventLobbyStats), &stats))
	assert.Equal(t, 1, stats.Count)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "chat_message", "content": map[string]string{"text": "안녕하세요"}}))
	var msg ChatPayload
	require.NoError(t, json.Unmarshal(readUntil(t, conn, EventChatMessage), &msg))
	assert.Equal(t, "안녕하세요", msg.Text)
	assert.Equal(t, "앨리스", msg.Sender.Name)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		snap, ok := h.Snapshot("lobby")
		return ok && snap.Count == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUpgraderOrigins(t *testing.T) {
	up := Upgrader([]string{"https://app.example.com"})

	req := httptest.NewRequest("GET", "http://api.example.com/ws", nil)
	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, up.CheckOrigin(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, up.CheckOrigin(req))

	req.Header.Set("Origin", "http://api.example.com")
	assert.True(t, up.CheckOrigin(req))
}
