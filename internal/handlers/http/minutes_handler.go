package http

import (
	"net/http"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
	"roomlink/pkg/errors"

	"github.com/gin-gonic/gin"
)

// MinutesHandler serves transcript submission and the action items
// extracted from it.
type MinutesHandler struct {
	minutes ports.MinutesService
}

func NewMinutesHandler(minutes ports.MinutesService) *MinutesHandler {
	return &MinutesHandler{minutes: minutes}
}

func (h *MinutesHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api")
	{
		api.POST("/transcript", h.SubmitTranscript)
		api.GET("/mom/:sessionId", h.GetMinutes)
	}
}

func (h *MinutesHandler) SubmitTranscript(c *gin.Context) {
	var req struct {
		SessionID  string   `json:"sessionId" binding:"required"`
		Transcript []string `json:"transcript" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewInvalidInputError("sessionId and transcript are required"))
		return
	}

	if err := h.minutes.SubmitTranscript(c.Request.Context(), domain.SessionID(req.SessionID), req.Transcript); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"sessionId": req.SessionID,
		"lines":     len(req.Transcript),
	})
}

func (h *MinutesHandler) GetMinutes(c *gin.Context) {
	sessionID := domain.SessionID(c.Param("sessionId"))

	minutes, err := h.minutes.GetMinutes(c.Request.Context(), sessionID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, minutes)
}
