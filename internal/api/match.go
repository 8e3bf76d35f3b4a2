package api

import (
	"context"
	"net/http"

	"arena-service/internal/model"
	"arena-service/internal/service/match"
	"arena-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type matchCreateBody struct {
	GameType   string `json:"gameType" binding:"required"`
	Date       string `json:"date" binding:"required"`
	TimeSlotID string `json:"timeSlotId" binding:"required"`
	MaxPlayers int    `json:"maxPlayers" binding:"required"`
	SkillLevel string `json:"skillLevel"`
}

type matchCodeBody struct {
	Code string `json:"code" binding:"required"`
}

func (h *Handler) CreateMatch(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var body matchCreateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.services.Match.Create(c.Request.Context(), match.CreateParams{
		CreatorID:  userID,
		GameType:   model.GameType(body.GameType),
		Date:       body.Date,
		TimeSlotID: body.TimeSlotID,
		MaxPlayers: body.MaxPlayers,
		SkillLevel: model.SkillLevel(body.SkillLevel),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, m)
}

func (h *Handler) ListMatches(c *gin.Context) {
	items, err := h.services.Match.ListOpen(c.Request.Context(), model.GameType(c.Query("gameType")))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, items)
}

func (h *Handler) ListMyMatches(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	items, err := h.services.Match.ListByUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, items)
}

func (h *Handler) GetMatch(c *gin.Context) {
	m, err := h.services.Match.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, m)
}

func (h *Handler) JoinMatchByCode(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var body matchCodeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	m, err := h.services.Match.JoinByCode(c.Request.Context(), body.Code, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, m)
}

func (h *Handler) JoinMatch(c *gin.Context) {
	h.matchAction(c, h.services.Match.Join)
}

func (h *Handler) LeaveMatch(c *gin.Context) {
	h.matchAction(c, h.services.Match.Leave)
}

func (h *Handler) CompleteMatch(c *gin.Context) {
	h.matchAction(c, h.services.Match.Complete)
}

func (h *Handler) CancelMatch(c *gin.Context) {
	h.matchAction(c, h.services.Match.Cancel)
}

// matchAction runs a per-user transition on the match named in the path.
func (h *Handler) matchAction(c *gin.Context, action func(ctx context.Context, id, userID string) (*model.Match, error)) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	m, err := action(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, m)
}
