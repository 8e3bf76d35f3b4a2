package api

import (
	"net/http"
	"strings"

	"arena-service/internal/model"
	"arena-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type stationStatusBody struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) ListStations(c *gin.Context) {
	stations, err := h.services.Registry.ListStations(c.Request.Context(), model.GameType(c.Query("gameType")))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, stations)
}

func (h *Handler) GetStation(c *gin.Context) {
	station, err := h.services.Registry.GetStation(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, station)
}

func (h *Handler) ListTimeSlots(c *gin.Context) {
	slots, err := h.services.Registry.TimeSlots(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, slots)
}

// CheckAvailability answers "book now or queue" for one bucket. The date
// defaults to the venue's today.
func (h *Handler) CheckAvailability(c *gin.Context) {
	ctx := c.Request.Context()
	gameType := model.GameType(c.Query("gameType"))
	date := strings.TrimSpace(c.Query("date"))
	if date == "" {
		date = h.services.Registry.Today()
	}

	snapshot, err := h.services.Availability.Check(ctx, gameType, date, c.Query("timeSlotId"))
	if err != nil {
		writeError(c, err)
		return
	}
	wait, err := h.services.Queue.EstimatedWaitTime(ctx, gameType)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"stations":          snapshot.Stations,
		"shouldQueue":       snapshot.ShouldQueue,
		"estimatedWaitTime": wait,
	})
}

func (h *Handler) AdminSetStationStatus(c *gin.Context) {
	var body stationStatusBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	station, err := h.services.Registry.SetStationStatus(c.Request.Context(), c.Param("id"), model.StationStatus(body.Status))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, station)
}

// AdminSweep runs one cleanup pass immediately.
func (h *Handler) AdminSweep(c *gin.Context) {
	result, err := h.services.Sweep.Run(c.Request.Context(), h.services.Registry.Now())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, result)
}
