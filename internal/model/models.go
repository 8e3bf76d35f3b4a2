package model

import (
	"time"

	"gorm.io/datatypes"
)

const DateLayout = "2006-01-02"

type GameType string

const (
	GamePool    GameType = "pool"
	GameSnooker GameType = "snooker"
	GamePS5     GameType = "ps5"
)

func (g GameType) Valid() bool {
	switch g {
	case GamePool, GameSnooker, GamePS5:
		return true
	}
	return false
}

// Stations & time slots

type StationStatus string

const (
	StationAvailable   StationStatus = "available"
	StationReserved    StationStatus = "reserved"
	StationOccupied    StationStatus = "occupied"
	StationMaintenance StationStatus = "maintenance"
)

type Station struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	GameType    GameType  `gorm:"size:16;not null;index" json:"gameType"`
	Name        string    `gorm:"size:128" json:"name"`
	Capacity    int       `gorm:"default:1" json:"capacity"`
	Maintenance bool      `gorm:"default:false;not null" json:"maintenance"`
	SortOrder   int       `json:"sortOrder"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type TimeSlot struct {
	ID        string `gorm:"primaryKey;size:64" json:"id"`
	Start     string `gorm:"column:start_time;size:5;not null" json:"start"` // HH:MM
	End       string `gorm:"column:end_time;size:5;not null" json:"end"`
	SortOrder int    `json:"sortOrder"`
}

// Reservations

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationCompleted ReservationStatus = "completed"
	ReservationCancelled ReservationStatus = "cancelled"
)

type Reservation struct {
	ID           string            `gorm:"primaryKey;size:36" json:"id"`
	StationID    string            `gorm:"size:64;not null;index" json:"stationId"`
	GameType     GameType          `gorm:"size:16;not null;index:idx_reservation_bucket" json:"gameType"`
	Date         string            `gorm:"size:10;not null;index:idx_reservation_bucket" json:"date"`
	TimeSlotID   string            `gorm:"size:64;not null;index:idx_reservation_bucket" json:"timeSlotId"`
	UserID       string            `gorm:"size:64;not null;index" json:"userId"`
	PlayerCount  int               `json:"playerCount"`
	Duration     int               `json:"duration"` // minutes
	Status       ReservationStatus `gorm:"size:16;not null;index" json:"status"`
	ActiveKey    *string           `gorm:"size:160;uniqueIndex" json:"-"` // station|date|slot while active, NULL otherwise
	QueueEntryID *string           `gorm:"size:36" json:"queueEntryId,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	CancelledAt  *time.Time        `json:"cancelledAt,omitempty"`
	CompletedAt  *time.Time        `json:"completedAt,omitempty"`
}

// ActiveKeyFor is the uniqueness key held by an active reservation.
func ActiveKeyFor(stationID, date, timeSlotID string) string {
	return stationID + "|" + date + "|" + timeSlotID
}

// Queue

type QueueStatus string

const (
	QueueWaiting   QueueStatus = "waiting"
	QueuePromoted  QueueStatus = "promoted"
	QueueCancelled QueueStatus = "cancelled"
)

type QueueEntry struct {
	ID            string      `gorm:"primaryKey;size:36" json:"id"`
	UserID        string      `gorm:"size:64;not null;index" json:"userId"`
	GameType      GameType    `gorm:"size:16;not null;index:idx_queue_bucket" json:"gameType"`
	Date          string      `gorm:"size:10;not null;index:idx_queue_bucket" json:"date"`
	TimeSlotID    string      `gorm:"size:64;index:idx_queue_bucket" json:"timeSlotId,omitempty"` // empty: any slot that day
	PlayerCount   int         `json:"playerCount"`
	JoinedAt      time.Time   `gorm:"not null;index" json:"joinedAt"`
	Seq           int64       `gorm:"not null;index" json:"-"`
	Status        QueueStatus `gorm:"size:16;not null;index" json:"status"`
	ReservationID *string     `gorm:"size:36" json:"reservationId,omitempty"`
	CancelReason  string      `gorm:"size:32" json:"cancelReason,omitempty"`
	ResolvedAt    *time.Time  `json:"resolvedAt,omitempty"`

	Position int `gorm:"-" json:"position,omitempty"`
}

// Matches

type SkillLevel string

const (
	SkillBeginner    SkillLevel = "beginner"
	SkillCasual      SkillLevel = "casual"
	SkillCompetitive SkillLevel = "competitive"
)

func (s SkillLevel) Valid() bool {
	switch s {
	case SkillBeginner, SkillCasual, SkillCompetitive:
		return true
	}
	return false
}

type MatchStatus string

const (
	MatchOpen       MatchStatus = "open"
	MatchInProgress MatchStatus = "in_progress"
	MatchCompleted  MatchStatus = "completed"
	MatchCancelled  MatchStatus = "cancelled"
)

func (s MatchStatus) Terminal() bool {
	return s == MatchCompleted || s == MatchCancelled
}

type Match struct {
	ID         string                      `gorm:"primaryKey;size:36" json:"id"`
	Code       string                      `gorm:"size:8;uniqueIndex" json:"code"`
	GameType   GameType                    `gorm:"size:16;not null;index" json:"gameType"`
	CreatorID  string                      `gorm:"size:64;not null;index" json:"creatorId"`
	Players    datatypes.JSONSlice[string] `json:"players"`
	MaxPlayers int                         `json:"maxPlayers"`
	SkillLevel SkillLevel                  `gorm:"size:16" json:"skillLevel"`
	Status     MatchStatus                 `gorm:"size:16;not null;index" json:"status"`
	Date       string                      `gorm:"size:10;not null" json:"date"`
	TimeSlotID string                      `gorm:"size:64;not null" json:"timeSlotId"`
	CreatedAt  time.Time                   `json:"createdAt"`
	UpdatedAt  time.Time                   `json:"updatedAt"`
	EndedAt    *time.Time                  `json:"endedAt,omitempty"`
}

// Notifications

type NotificationKind string

const (
	NotifyQueuePromoted NotificationKind = "queue_promoted"
	NotifyQueueExpired  NotificationKind = "queue_expired"
	NotifyMatchJoined   NotificationKind = "match_joined"
	NotifyMatchFilled   NotificationKind = "match_filled"
	NotifyMatchOwner    NotificationKind = "match_owner"
	NotifyMatchEnded    NotificationKind = "match_ended"
)

type Notification struct {
	ID        string           `gorm:"primaryKey;size:36" json:"id"`
	UserID    string           `gorm:"size:64;not null;index" json:"userId"`
	Kind      NotificationKind `gorm:"size:32" json:"kind"`
	Message   string           `gorm:"type:text" json:"message"`
	Read      bool             `gorm:"default:false;not null" json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}

// All lists every table owned by the engine, in migration order.
func All() []interface{} {
	return []interface{}{
		&Station{},
		&TimeSlot{},
		&Reservation{},
		&QueueEntry{},
		&Match{},
		&Notification{},
	}
}
