package api

import (
	"net/http"

	"arena-service/internal/model"
	"arena-service/internal/service/queue"
	appErr "arena-service/pkg/errors"
	"arena-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type queueJoinBody struct {
	GameType    string `json:"gameType" binding:"required"`
	Date        string `json:"date" binding:"required"`
	TimeSlotID  string `json:"timeSlotId"`
	PlayerCount int    `json:"playerCount" binding:"omitempty,min=1"`
}

func (h *Handler) JoinQueue(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var body queueJoinBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.services.Queue.Join(c.Request.Context(), queue.JoinParams{
		UserID:      userID,
		GameType:    model.GameType(body.GameType),
		Date:        body.Date,
		TimeSlotID:  body.TimeSlotID,
		PlayerCount: body.PlayerCount,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, entry)
}

func (h *Handler) ListQueue(c *gin.Context) {
	entries, err := h.services.Queue.ActiveEntries(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, entries)
}

func (h *Handler) ListMyQueue(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	entries, err := h.services.Queue.ListByUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, entries)
}

func (h *Handler) GetQueueEntry(c *gin.Context) {
	entry, ok := h.ownQueueEntry(c)
	if !ok {
		return
	}
	response.Success(c, entry)
}

func (h *Handler) CancelQueueEntry(c *gin.Context) {
	entry, ok := h.ownQueueEntry(c)
	if !ok {
		return
	}
	cancelled, err := h.services.Queue.Cancel(c.Request.Context(), entry.ID, queue.ReasonUser)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, cancelled)
}

func (h *Handler) QueueStats(c *gin.Context) {
	stats, err := h.services.Queue.Statistics(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, stats)
}

func (h *Handler) QueueWait(c *gin.Context) {
	estimate, err := h.services.Queue.Estimate(c.Request.Context(), model.GameType(c.Query("gameType")))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, estimate)
}

func (h *Handler) ownQueueEntry(c *gin.Context) (*model.QueueEntry, bool) {
	userID, ok := requireUser(c)
	if !ok {
		return nil, false
	}
	entry, err := h.services.Queue.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if entry.UserID != userID {
		writeError(c, appErr.ErrForbidden)
		return nil, false
	}
	return entry, true
}
