package match

import (
	"context"

	"arena-service/internal/model"
)

const (
	MinPlayers = 2
	MaxPlayers = 16
	codeLength = 6
)

type CreateParams struct {
	CreatorID  string
	GameType   model.GameType
	Date       string
	TimeSlotID string
	MaxPlayers int
	SkillLevel model.SkillLevel
}

// Notifier is the part of the notification dispatcher matches need.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind model.NotificationKind, message string) (*model.Notification, error)
}

// outbound notification, sent once the transaction has committed.
type note struct {
	userID  string
	kind    model.NotificationKind
	message string
}
