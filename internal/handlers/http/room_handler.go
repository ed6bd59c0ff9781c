package http

import (
	"context"
	"net/http"

	"roomlink/internal/core/domain"
	"roomlink/internal/infrastructure/signal"

	"github.com/gin-gonic/gin"
)

// RoomDirectory answers membership queries for the relay.
type RoomDirectory interface {
	Stats(ctx context.Context) (signal.HubStats, error)
	Members(ctx context.Context, roomID domain.RoomID) ([]domain.PeerID, error)
}

// RoomHandler exposes read-only relay state. Rooms are never created or
// changed over HTTP.
type RoomHandler struct {
	rooms RoomDirectory
}

func NewRoomHandler(rooms RoomDirectory) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

func (h *RoomHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api")
	{
		api.GET("/rooms", h.GetStats)
		api.GET("/rooms/:roomId", h.GetRoom)
	}
}

func (h *RoomHandler) GetStats(c *gin.Context) {
	stats, err := h.rooms.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rooms":       stats.Rooms,
		"connections": stats.Connections,
	})
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID := domain.RoomID(c.Param("roomId"))

	members, err := h.rooms.Members(c.Request.Context(), roomID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room_id": roomID,
		"members": members,
	})
}
