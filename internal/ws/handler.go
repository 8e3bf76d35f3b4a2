package ws

import (
	"net/http"
	"time"

	"arena-service/internal/middleware"
	"arena-service/internal/model"
	"arena-service/internal/service/notification"
	"arena-service/pkg/auth"
	"arena-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pongWait  = 60 * time.Second
	pingEvery = 25 * time.Second
	writeWait = 5 * time.Second
)

// Handler streams a user's notifications over a websocket as they are sent.
type Handler struct {
	notifications *notification.Service
}

func NewHandler(notifications *notification.Service) *Handler {
	return &Handler{notifications: notifications}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for dev
	},
}

// Message is one frame pushed to the client.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func (h *Handler) HandleNotificationsWS(c *gin.Context) {
	token, err := middleware.ExtractToken(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	claims, err := auth.ParseUserToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	userID := claims.SubjectID

	unread, err := h.notifications.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load notifications"})
		return
	}

	log := logger.Named("ws").With(zap.String("userID", userID))
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	log.Info("New WebSocket connection")

	outbound, unsubscribe := h.notifications.Broadcaster().Subscribe(userID)
	cl := newClient(conn, log, outbound, unsubscribe)
	cl.safeWrite(Message{Type: "hello", Data: gin.H{"unread": unread}})
	cl.run()
}

type client struct {
	conn        *websocket.Conn
	log         *zap.Logger
	outbound    <-chan model.Notification
	unsubscribe func()
	done        chan struct{}
}

func newClient(conn *websocket.Conn, log *zap.Logger, outbound <-chan model.Notification, unsubscribe func()) *client {
	conn.SetReadLimit(1 << 12)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	return &client{
		conn:        conn,
		log:         log,
		outbound:    outbound,
		unsubscribe: unsubscribe,
		done:        make(chan struct{}),
	}
}

func (c *client) run() {
	go c.writePump()
	c.readPump()
}

// readPump only drains control frames; the stream is push-only.
func (c *client) readPump() {
	defer func() {
		close(c.done)
		c.unsubscribe()
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.log.Info("WS read error", zap.Error(err))
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case n, ok := <-c.outbound:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(Message{Type: "notification", Data: n}); err != nil {
				c.log.Info("WS write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) safeWrite(msg Message) {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.log.Info("WS write error", zap.Error(err))
	}
}
