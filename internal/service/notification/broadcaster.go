package notification

import (
	"context"
	"encoding/json"
	"sync"

	"arena-service/internal/model"
	"arena-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Broadcaster pushes freshly created notifications to live subscribers.
// Delivery is best effort; the table stays the source of truth.
type Broadcaster interface {
	Publish(ctx context.Context, n model.Notification)
	Subscribe(userID string) (<-chan model.Notification, func())
}

// Hub fans notifications out to subscribers inside one process.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan model.Notification]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan model.Notification]struct{})}
}

func (h *Hub) Publish(_ context.Context, n model.Notification) {
	h.deliver(n)
}

func (h *Hub) Subscribe(userID string) (<-chan model.Notification, func()) {
	ch := make(chan model.Notification, 16)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan model.Notification]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[userID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, userID)
				}
			}
			close(ch)
		})
	}
}

func (h *Hub) deliver(n model.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[n.UserID] {
		select {
		case ch <- n:
		default:
			logger.Log.Warn("notification subscriber channel full",
				zap.String("userID", n.UserID),
				zap.String("notificationID", n.ID),
			)
		}
	}
}

const redisChannel = "arena:notifications"

// RedisBroadcaster relays notifications through Redis pub/sub so every
// instance can reach the sockets it holds.
type RedisBroadcaster struct {
	rdb *redis.Client
	hub *Hub
}

func NewRedisBroadcaster(rdb *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb, hub: NewHub()}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, n model.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		logger.Log.Error("notification encode failed", zap.Error(err))
		return
	}
	if err := b.rdb.Publish(ctx, redisChannel, data).Err(); err != nil {
		logger.Log.Warn("notification publish failed, delivering locally",
			zap.String("notificationID", n.ID),
			zap.Error(err),
		)
		b.hub.deliver(n)
	}
}

func (b *RedisBroadcaster) Subscribe(userID string) (<-chan model.Notification, func()) {
	return b.hub.Subscribe(userID)
}

// Run relays the Redis channel into the local hub until ctx is done.
func (b *RedisBroadcaster) Run(ctx context.Context) {
	pubsub := b.rdb.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var n model.Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				logger.Log.Warn("notification decode failed", zap.Error(err))
				continue
			}
			b.hub.deliver(n)
		}
	}
}
