package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"arena-service/internal/model"
	"arena-service/internal/repo"
	"arena-service/internal/service/registry"
	appErr "arena-service/pkg/errors"
	"arena-service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ReserveParams struct {
	StationID    string
	GameType     model.GameType
	Date         string
	TimeSlotID   string
	UserID       string
	PlayerCount  int
	Duration     int // minutes; defaults to the slot length
	QueueEntryID *string
}

// TxHook runs inside the insert transaction of ReserveWith.
type TxHook func(tx *gorm.DB, r *model.Reservation) error

// ReleaseFunc is told about every bucket a cancellation frees.
type ReleaseFunc func(ctx context.Context, gameType model.GameType, date, timeSlotID string)

// Service is the reservation ledger: the only writer of reservation rows.
type Service struct {
	db        *gorm.DB
	registry  *registry.Service
	locker    repo.Locker
	onRelease ReleaseFunc
}

func NewService(db *gorm.DB, reg *registry.Service, locker repo.Locker) *Service {
	return &Service{db: db, registry: reg, locker: locker}
}

// OnRelease registers the callback run synchronously after a cancellation.
func (s *Service) OnRelease(fn ReleaseFunc) {
	s.onRelease = fn
}

func BucketKey(gameType model.GameType, date, timeSlotID string) string {
	return fmt.Sprintf("bucket:%s|%s|%s", gameType, date, timeSlotID)
}

func (s *Service) Reserve(ctx context.Context, params ReserveParams) (*model.Reservation, error) {
	return s.ReserveWith(ctx, params, nil)
}

// ReserveWith books a station. The existence check and the insert run under
// the bucket lock and in one transaction; the unique active key rejects a
// second active booking of the station in storage as well.
func (s *Service) ReserveWith(ctx context.Context, params ReserveParams, hook TxHook) (*model.Reservation, error) {
	params.UserID = strings.TrimSpace(params.UserID)
	if params.UserID == "" {
		return nil, appErr.InvalidArgument("userId is required")
	}
	if !params.GameType.Valid() {
		return nil, appErr.InvalidArgument("unknown game type %q", params.GameType)
	}
	if !model.ValidDate(params.Date) {
		return nil, appErr.InvalidArgument("date %q is not YYYY-MM-DD", params.Date)
	}

	slot, err := s.registry.TimeSlot(ctx, params.TimeSlotID)
	if err != nil {
		return nil, err
	}
	station, err := s.registry.Station(ctx, params.StationID)
	if err != nil {
		return nil, err
	}
	if station.GameType != params.GameType {
		return nil, appErr.InvalidArgument("station %s is %s, not %s", station.ID, station.GameType, params.GameType)
	}
	if params.PlayerCount <= 0 {
		params.PlayerCount = 1
	}
	if params.PlayerCount > station.Capacity {
		return nil, appErr.InvalidArgument("station %s seats at most %d players", station.ID, station.Capacity)
	}
	if params.Duration <= 0 {
		params.Duration = slot.Minutes()
	}
	ended, err := s.registry.SlotEnded(ctx, params.Date, params.TimeSlotID)
	if err != nil {
		return nil, err
	}
	if ended {
		return nil, appErr.InvalidArgument("slot %s on %s has already ended", params.TimeSlotID, params.Date)
	}

	unlock, err := s.locker.Lock(ctx, BucketKey(params.GameType, params.Date, params.TimeSlotID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	key := model.ActiveKeyFor(station.ID, params.Date, params.TimeSlotID)
	reservation := &model.Reservation{
		ID:           uuid.NewString(),
		StationID:    station.ID,
		GameType:     params.GameType,
		Date:         params.Date,
		TimeSlotID:   params.TimeSlotID,
		UserID:       params.UserID,
		PlayerCount:  params.PlayerCount,
		Duration:     params.Duration,
		Status:       model.ReservationActive,
		ActiveKey:    &key,
		QueueEntryID: params.QueueEntryID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current model.Station
		if err := tx.First(&current, "id = ?", station.ID).Error; err != nil {
			return err
		}
		if current.Maintenance {
			return appErr.Conflict("station %s is under maintenance", station.ID)
		}

		var taken int64
		if err := tx.Model(&model.Reservation{}).
			Where("active_key = ?", key).
			Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return appErr.Conflict("station %s is already booked for %s %s", station.ID, params.Date, params.TimeSlotID)
		}

		if err := tx.Create(reservation).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return appErr.Conflict("station %s is already booked for %s %s", station.ID, params.Date, params.TimeSlotID)
			}
			return err
		}
		if hook != nil {
			return hook(tx, reservation)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("reservation created",
		zap.String("reservationID", reservation.ID),
		zap.String("stationID", reservation.StationID),
		zap.String("date", reservation.Date),
		zap.String("timeSlotID", reservation.TimeSlotID),
		zap.String("userID", reservation.UserID),
	)
	return reservation, nil
}

// Cancel frees the station and then, synchronously, offers the bucket to the
// release callback (queue promotion).
func (s *Service) Cancel(ctx context.Context, id string) (*model.Reservation, error) {
	reservation, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if reservation.Status != model.ReservationActive {
		return nil, notActive(reservation)
	}

	if err := s.cancelLocked(ctx, reservation); err != nil {
		return nil, err
	}

	logger.Log.Info("reservation cancelled",
		zap.String("reservationID", reservation.ID),
		zap.String("stationID", reservation.StationID),
		zap.String("date", reservation.Date),
		zap.String("timeSlotID", reservation.TimeSlotID),
	)

	if s.onRelease != nil {
		s.onRelease(ctx, reservation.GameType, reservation.Date, reservation.TimeSlotID)
	}
	return reservation, nil
}

func (s *Service) cancelLocked(ctx context.Context, reservation *model.Reservation) error {
	unlock, err := s.locker.Lock(ctx, BucketKey(reservation.GameType, reservation.Date, reservation.TimeSlotID))
	if err != nil {
		return err
	}
	defer unlock()

	now := s.registry.Now().UTC()
	result := s.db.WithContext(ctx).
		Model(&model.Reservation{}).
		Where("id = ? AND status = ?", reservation.ID, model.ReservationActive).
		Updates(map[string]interface{}{
			"status":       model.ReservationCancelled,
			"active_key":   nil,
			"cancelled_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return notActive(reservation)
	}
	reservation.Status = model.ReservationCancelled
	reservation.ActiveKey = nil
	reservation.CancelledAt = &now
	return nil
}

// notActive matches both ErrNotFound (no active reservation under that id)
// and ErrInvalidState.
func notActive(r *model.Reservation) error {
	return fmt.Errorf("%w: no active reservation %q (%w: %s)", appErr.ErrNotFound, r.ID, appErr.ErrInvalidState, r.Status)
}

func (s *Service) Get(ctx context.Context, id string) (*model.Reservation, error) {
	var reservation model.Reservation
	err := s.db.WithContext(ctx).First(&reservation, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.NotFound("reservation", id)
		}
		return nil, err
	}
	return &reservation, nil
}

// ListByUser returns the user's reservations, newest first. An empty status
// returns every status.
func (s *Service) ListByUser(ctx context.Context, userID string, status model.ReservationStatus) ([]model.Reservation, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var items []model.Reservation
	if err := q.Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ListBucket returns the active reservations of one bucket.
func (s *Service) ListBucket(ctx context.Context, gameType model.GameType, date, timeSlotID string) ([]model.Reservation, error) {
	var items []model.Reservation
	err := s.db.WithContext(ctx).
		Where("game_type = ? AND date = ? AND time_slot_id = ? AND status = ?", gameType, date, timeSlotID, model.ReservationActive).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// CompleteElapsed marks active reservations whose slot has ended as completed.
func (s *Service) CompleteElapsed(ctx context.Context, now time.Time) (int, error) {
	loc := s.registry.Location()
	today := now.In(loc).Format(model.DateLayout)

	var candidates []model.Reservation
	if err := s.db.WithContext(ctx).
		Where("status = ? AND date <= ?", model.ReservationActive, today).
		Find(&candidates).Error; err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	slots, err := s.registry.TimeSlots(ctx)
	if err != nil {
		return 0, err
	}
	slotByID := make(map[string]model.TimeSlot, len(slots))
	for _, slot := range slots {
		slotByID[slot.ID] = slot
	}

	completed := 0
	for _, r := range candidates {
		slot, ok := slotByID[r.TimeSlotID]
		if !ok {
			continue
		}
		_, end, err := slot.Window(r.Date, loc)
		if err != nil || now.Before(end) {
			continue
		}
		result := s.db.WithContext(ctx).
			Model(&model.Reservation{}).
			Where("id = ? AND status = ?", r.ID, model.ReservationActive).
			Updates(map[string]interface{}{
				"status":       model.ReservationCompleted,
				"active_key":   nil,
				"completed_at": now.UTC(),
			})
		if result.Error != nil {
			logger.Log.Warn("reservation completion failed",
				zap.String("reservationID", r.ID),
				zap.Error(result.Error),
			)
			continue
		}
		completed += int(result.RowsAffected)
	}
	return completed, nil
}
