package api

import (
	"net/http"
	"strings"

	"arena-service/internal/middleware"
	"arena-service/internal/service"
	"arena-service/internal/ws"
	"arena-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	services *service.Container
}

func RegisterRoutes(r *gin.Engine, services *service.Container) {
	handler := &Handler{services: services}
	wsHandler := ws.NewHandler(services.Notification)

	r.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{"message": "pong"})
	})

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthRequired())
	{
		v1.GET("/stations", handler.ListStations)
		v1.GET("/stations/:id", handler.GetStation)
		v1.GET("/timeslots", handler.ListTimeSlots)
		v1.GET("/availability", handler.CheckAvailability)

		reservations := v1.Group("/reservations")
		{
			reservations.POST("", handler.CreateReservation)
			reservations.GET("", handler.ListReservations)
			reservations.GET("/:id", handler.GetReservation)
			reservations.DELETE("/:id", handler.CancelReservation)
		}

		queue := v1.Group("/queue")
		{
			queue.POST("", handler.JoinQueue)
			queue.GET("", handler.ListQueue)
			queue.GET("/mine", handler.ListMyQueue)
			queue.GET("/stats", handler.QueueStats)
			queue.GET("/wait", handler.QueueWait)
			queue.GET("/:id", handler.GetQueueEntry)
			queue.DELETE("/:id", handler.CancelQueueEntry)
		}

		matches := v1.Group("/matches")
		{
			matches.POST("", handler.CreateMatch)
			matches.GET("", handler.ListMatches)
			matches.GET("/mine", handler.ListMyMatches)
			matches.POST("/join-code", handler.JoinMatchByCode)
			matches.GET("/:id", handler.GetMatch)
			matches.POST("/:id/join", handler.JoinMatch)
			matches.POST("/:id/leave", handler.LeaveMatch)
			matches.POST("/:id/complete", handler.CompleteMatch)
			matches.POST("/:id/cancel", handler.CancelMatch)
		}

		notifications := v1.Group("/notifications")
		{
			notifications.GET("", handler.ListNotifications)
			notifications.GET("/unread", handler.UnreadNotifications)
			notifications.POST("/read-all", handler.MarkAllNotificationsRead)
			notifications.POST("/:id/read", handler.MarkNotificationRead)
			notifications.DELETE("", handler.ClearNotifications)
		}
	}

	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.AdminAuthRequired())
	{
		adminGroup.PUT("/stations/:id/status", handler.AdminSetStationStatus)
		adminGroup.POST("/sweep", handler.AdminSweep)
	}

	r.GET("/ws/notifications", wsHandler.HandleNotificationsWS)
}

func writeError(c *gin.Context, err error) {
	response.Fail(c, err)
}

func getUserID(c *gin.Context) (string, bool) {
	return middleware.UserID(c)
}

// requireUser aborts with 401 when the request carries no subject.
func requireUser(c *gin.Context) (string, bool) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return userID, true
}

func parseBoolQuery(c *gin.Context, key string) bool {
	switch strings.ToLower(strings.TrimSpace(c.Query(key))) {
	case "1", "true", "yes":
		return true
	}
	return false
}
