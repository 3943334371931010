package room

import (
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Upgrader builds the websocket upgrader for the allowed origins. "*" allows
// every origin.
func Upgrader(origins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(origins, "*") {
				return true
			}
			if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
				return true
			}
			return slices.Contains(origins, origin)
		},
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
}

// ServeWs upgrades the request and runs the client pumps. When the room
// query parameter is present the client joins it right away; otherwise it
// must send join_room.
func ServeWs(hub *Hub, upgrader *websocket.Upgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		conn.EnableWriteCompression(true)

		client := NewClient(uuid.NewString(), c.Query("name"))
		client.conn = conn
		hub.Attach(client)

		ctx := hub.ctx
		if room := c.Query("room"); room != "" {
			hub.Join(ctx, client, room, c.Query("name"))
		}

		hub.logger.Info("websocket connected", "client_id", client.ID, "room_id", c.Query("room"))

		go client.WritePump()
		go client.ReadPump(ctx)
	}
}
