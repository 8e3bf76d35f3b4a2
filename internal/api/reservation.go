package api

import (
	"net/http"

	"arena-service/internal/model"
	"arena-service/internal/service/reservation"
	appErr "arena-service/pkg/errors"
	"arena-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type reservationBody struct {
	StationID   string `json:"stationId" binding:"required"`
	GameType    string `json:"gameType" binding:"required"`
	Date        string `json:"date" binding:"required"`
	TimeSlotID  string `json:"timeSlotId" binding:"required"`
	PlayerCount int    `json:"playerCount" binding:"omitempty,min=1"`
	Duration    int    `json:"duration" binding:"omitempty,min=1"`
}

func (h *Handler) CreateReservation(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var body reservationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	r, err := h.services.Reservation.Reserve(c.Request.Context(), reservation.ReserveParams{
		StationID:   body.StationID,
		GameType:    model.GameType(body.GameType),
		Date:        body.Date,
		TimeSlotID:  body.TimeSlotID,
		UserID:      userID,
		PlayerCount: body.PlayerCount,
		Duration:    body.Duration,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, r)
}

func (h *Handler) ListReservations(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	items, err := h.services.Reservation.ListByUser(c.Request.Context(), userID, model.ReservationStatus(c.Query("status")))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, items)
}

func (h *Handler) GetReservation(c *gin.Context) {
	r, ok := h.ownReservation(c)
	if !ok {
		return
	}
	response.Success(c, r)
}

func (h *Handler) CancelReservation(c *gin.Context) {
	r, ok := h.ownReservation(c)
	if !ok {
		return
	}
	cancelled, err := h.services.Reservation.Cancel(c.Request.Context(), r.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, cancelled)
}

func (h *Handler) ownReservation(c *gin.Context) (*model.Reservation, bool) {
	userID, ok := requireUser(c)
	if !ok {
		return nil, false
	}
	r, err := h.services.Reservation.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if r.UserID != userID {
		writeError(c, appErr.ErrForbidden)
		return nil, false
	}
	return r, true
}
