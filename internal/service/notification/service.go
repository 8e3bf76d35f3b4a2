package notification

import (
	"context"
	"errors"
	"strings"
	"time"

	"arena-service/internal/model"
	appErr "arena-service/pkg/errors"
	"arena-service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service is the only writer of notification rows.
type Service struct {
	db          *gorm.DB
	broadcaster Broadcaster
}

func NewService(db *gorm.DB, broadcaster Broadcaster) *Service {
	if broadcaster == nil {
		broadcaster = NewHub()
	}
	return &Service{db: db, broadcaster: broadcaster}
}

func (s *Service) Broadcaster() Broadcaster { return s.broadcaster }

// Notify appends an unread notification and pushes it to live subscribers.
// A storage failure is logged and the unsaved record is still returned.
func (s *Service) Notify(ctx context.Context, userID string, kind model.NotificationKind, message string) (*model.Notification, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, appErr.InvalidArgument("userId is required")
	}
	n := &model.Notification{
		ID:      uuid.NewString(),
		UserID:  userID,
		Kind:    kind,
		Message: message,
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		// notifying must never fail the transition that triggered it
		logger.Log.Error("notification store failed",
			zap.String("userID", userID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		n.CreatedAt = time.Now().UTC()
		s.broadcaster.Publish(ctx, *n)
		return n, nil
	}

	logger.Log.Info("notification created",
		zap.String("notificationID", n.ID),
		zap.String("userID", userID),
		zap.String("kind", string(kind)),
	)
	s.broadcaster.Publish(ctx, *n)
	return n, nil
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, unreadOnly bool) ([]model.Notification, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where(map[string]interface{}{"read": false})
	}
	var items []model.Notification
	if err := q.Order("created_at DESC, id DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where(map[string]interface{}{"user_id": userID, "read": false}).
		Count(&count).Error
	return count, err
}

// MarkRead is idempotent. An empty userID skips the ownership check.
func (s *Service) MarkRead(ctx context.Context, userID, id string) (*model.Notification, error) {
	var n model.Notification
	q := s.db.WithContext(ctx).Where("id = ?", id)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.NotFound("notification", id)
		}
		return nil, err
	}
	if n.Read {
		return &n, nil
	}
	if err := s.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ?", id).
		Update("read", true).Error; err != nil {
		return nil, err
	}
	n.Read = true
	return &n, nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where(map[string]interface{}{"user_id": userID, "read": false}).
		Update("read", true)
	return result.RowsAffected, result.Error
}

// ClearAll deletes every notification of the user.
func (s *Service) ClearAll(ctx context.Context, userID string) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.Notification{})
	if result.Error != nil {
		return 0, result.Error
	}
	logger.Log.Info("notifications cleared",
		zap.String("userID", userID),
		zap.Int64("count", result.RowsAffected),
	)
	return result.RowsAffected, nil
}
