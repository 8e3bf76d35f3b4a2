package availability

import (
	"context"

	"arena-service/internal/model"
	"arena-service/internal/service/registry"
	appErr "arena-service/pkg/errors"

	"gorm.io/gorm"
)

// Snapshot is one consistent answer to "book now or queue".
type Snapshot struct {
	Stations    []model.Station `json:"stations"`
	ShouldQueue bool            `json:"shouldQueue"`
}

type Service struct {
	db       *gorm.DB
	registry *registry.Service
}

func NewService(db *gorm.DB, reg *registry.Service) *Service {
	return &Service{db: db, registry: reg}
}

// Check computes free stations and the queue decision from a single query,
// so the two answers cannot disagree.
func (s *Service) Check(ctx context.Context, gameType model.GameType, date, timeSlotID string) (*Snapshot, error) {
	if err := s.validate(ctx, gameType, date, timeSlotID); err != nil {
		return nil, err
	}

	taken := s.db.Model(&model.Reservation{}).
		Select("1").
		Where("reservations.station_id = stations.id").
		Where("reservations.date = ? AND reservations.time_slot_id = ? AND reservations.status = ?",
			date, timeSlotID, model.ReservationActive)

	var stations []model.Station
	err := s.db.WithContext(ctx).
		Model(&model.Station{}).
		Where("stations.game_type = ?", gameType).
		Where("stations.maintenance = ?", false).
		Where("NOT EXISTS (?)", taken).
		Order("stations.sort_order ASC, stations.id ASC").
		Find(&stations).Error
	if err != nil {
		return nil, err
	}

	return &Snapshot{Stations: stations, ShouldQueue: len(stations) == 0}, nil
}

func (s *Service) AvailableStations(ctx context.Context, gameType model.GameType, date, timeSlotID string) ([]model.Station, error) {
	snap, err := s.Check(ctx, gameType, date, timeSlotID)
	if err != nil {
		return nil, err
	}
	return snap.Stations, nil
}

// ShouldQueue is true iff no station of the type is free for the slot.
func (s *Service) ShouldQueue(ctx context.Context, gameType model.GameType, date, timeSlotID string) (bool, error) {
	snap, err := s.Check(ctx, gameType, date, timeSlotID)
	if err != nil {
		return false, err
	}
	return snap.ShouldQueue, nil
}

func (s *Service) validate(ctx context.Context, gameType model.GameType, date, timeSlotID string) error {
	if !gameType.Valid() {
		return appErr.InvalidArgument("unknown game type %q", gameType)
	}
	if !model.ValidDate(date) {
		return appErr.InvalidArgument("date %q is not YYYY-MM-DD", date)
	}
	if _, err := s.registry.TimeSlot(ctx, timeSlotID); err != nil {
		return err
	}
	return nil
}
