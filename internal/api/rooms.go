package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mentorchat/backend/internal/room"
	apperrors "mentorchat/backend/pkg/errors"
)

// RoomHandler exposes read-only room state over REST.
type RoomHandler struct {
	hub *room.Hub
}

func NewRoomHandler(hub *room.Hub) *RoomHandler {
	return &RoomHandler{hub: hub}
}

// RegisterRoutesV1 registers the room routes under /api/v1
func (h *RoomHandler) RegisterRoutesV1(v1 *gin.RouterGroup) {
	rooms := v1.Group("/rooms")
	{
		rooms.GET("/:id", h.GetRoom)
		rooms.GET("/:id/threads/:key/messages", h.ThreadMessages)
	}
}

// GetRoom returns the room snapshot
func (h *RoomHandler) GetRoom(c *gin.Context) {
	snap, ok := h.hub.Snapshot(c.Param("id"))
	if !ok {
		_ = c.Error(apperrors.NewNotFoundError(apperrors.CodeRoomNotFound, "Room not found"))
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ThreadMessages returns the log of one artifact thread
func (h *RoomHandler) ThreadMessages(c *gin.Context) {
	roomID, key := c.Param("id"), c.Param("key")
	msgs, ok := h.hub.ThreadHistory(c.Request.Context(), roomID, key)
	if !ok {
		_ = c.Error(apperrors.NewNotFoundError(apperrors.CodeThreadNotFound, "Thread not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "threadKey": key, "messages": msgs, "count": len(msgs)})
}
