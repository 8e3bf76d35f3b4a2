package registry

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"arena-service/internal/model"
	appErr "arena-service/pkg/errors"
	"arena-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StationView is a station with its status derived at read time.
type StationView struct {
	model.Station
	Status model.StationStatus `json:"status"`
}

type Options struct {
	Location *time.Location
	Now      func() time.Time
}

// Service owns the station and time-slot tables. Station status is never
// stored; it is computed from the maintenance flag and active reservations.
type Service struct {
	db         *gorm.DB
	loc        *time.Location
	now        func() time.Time
	onCapacity CapacityFunc
}

// CapacityFunc is told when a station comes back into service.
type CapacityFunc func(ctx context.Context, station model.Station)

func NewService(db *gorm.DB, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{db: db, loc: opts.Location, now: opts.Now}
}

// OnCapacity registers the callback run after maintenance is cleared.
func (s *Service) OnCapacity(fn CapacityFunc) {
	s.onCapacity = fn
}

func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) Now() time.Time { return s.now().In(s.loc) }

// Today is the venue-local calendar day.
func (s *Service) Today() string { return s.Now().Format(model.DateLayout) }

// Seed upserts the venue catalog. Operator state (maintenance) survives reseeding.
func (s *Service) Seed(ctx context.Context, stations []model.Station, slots []model.TimeSlot) error {
	ordered, err := validateSlots(slots)
	if err != nil {
		return err
	}
	for i := range stations {
		st := &stations[i]
		st.ID = strings.TrimSpace(st.ID)
		if st.ID == "" {
			return appErr.InvalidArgument("station id is required")
		}
		if !st.GameType.Valid() {
			return appErr.InvalidArgument("station %s: unknown game type %q", st.ID, st.GameType)
		}
		if st.Capacity <= 0 {
			st.Capacity = 1
		}
		st.SortOrder = i + 1
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(ordered) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"start_time", "end_time", "sort_order"}),
			}).Create(&ordered).Error; err != nil {
				return err
			}
		}
		if len(stations) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"game_type", "name", "capacity", "sort_order", "updated_at"}),
			}).Create(&stations).Error; err != nil {
				return err
			}
		}
		logger.Log.Info("venue catalog seeded",
			zap.Int("stations", len(stations)),
			zap.Int("timeSlots", len(ordered)),
		)
		return nil
	})
}

func validateSlots(slots []model.TimeSlot) ([]model.TimeSlot, error) {
	type bounds struct {
		slot       model.TimeSlot
		start, end int
	}
	parsed := make([]bounds, 0, len(slots))
	seen := make(map[string]struct{}, len(slots))
	for _, slot := range slots {
		if strings.TrimSpace(slot.ID) == "" {
			return nil, appErr.InvalidArgument("time slot id is required")
		}
		if _, dup := seen[slot.ID]; dup {
			return nil, appErr.InvalidArgument("duplicate time slot %s", slot.ID)
		}
		seen[slot.ID] = struct{}{}
		start, err := model.ParseClock(slot.Start)
		if err != nil {
			return nil, appErr.InvalidArgument("time slot %s: %v", slot.ID, err)
		}
		end, err := model.ParseClock(slot.End)
		if err != nil {
			return nil, appErr.InvalidArgument("time slot %s: %v", slot.ID, err)
		}
		if end <= start {
			return nil, appErr.InvalidArgument("time slot %s ends before it starts", slot.ID)
		}
		parsed = append(parsed, bounds{slot: slot, start: start, end: end})
	}
	sort.SliceStable(parsed, func(i, j int) bool { return parsed[i].start < parsed[j].start })

	out := make([]model.TimeSlot, 0, len(parsed))
	for i, b := range parsed {
		if i > 0 && b.start < parsed[i-1].end {
			return nil, appErr.InvalidArgument("time slot %s overlaps %s", b.slot.ID, parsed[i-1].slot.ID)
		}
		b.slot.SortOrder = i + 1
		out = append(out, b.slot)
	}
	return out, nil
}

// ListStations returns stations, optionally of one game type, with derived status.
func (s *Service) ListStations(ctx context.Context, gameType model.GameType) ([]StationView, error) {
	q := s.db.WithContext(ctx).Model(&model.Station{})
	if gameType != "" {
		if !gameType.Valid() {
			return nil, appErr.InvalidArgument("unknown game type %q", gameType)
		}
		q = q.Where("game_type = ?", gameType)
	}
	var stations []model.Station
	if err := q.Order("sort_order ASC, id ASC").Find(&stations).Error; err != nil {
		return nil, err
	}
	return s.withStatus(ctx, stations)
}

func (s *Service) GetStation(ctx context.Context, id string) (*StationView, error) {
	station, err := s.Station(ctx, id)
	if err != nil {
		return nil, err
	}
	views, err := s.withStatus(ctx, []model.Station{*station})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// Station loads the stored row without deriving status.
func (s *Service) Station(ctx context.Context, id string) (*model.Station, error) {
	var station model.Station
	err := s.db.WithContext(ctx).First(&station, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.NotFound("station", id)
		}
		return nil, err
	}
	return &station, nil
}

func (s *Service) TimeSlots(ctx context.Context) ([]model.TimeSlot, error) {
	var slots []model.TimeSlot
	if err := s.db.WithContext(ctx).Order("sort_order ASC").Find(&slots).Error; err != nil {
		return nil, err
	}
	return slots, nil
}

func (s *Service) TimeSlot(ctx context.Context, id string) (*model.TimeSlot, error) {
	var slot model.TimeSlot
	err := s.db.WithContext(ctx).First(&slot, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.NotFound("time slot", id)
		}
		return nil, err
	}
	return &slot, nil
}

// AverageSlotMinutes is the mean slot length of the catalog.
func (s *Service) AverageSlotMinutes(ctx context.Context) (float64, error) {
	slots, err := s.TimeSlots(ctx)
	if err != nil {
		return 0, err
	}
	if len(slots) == 0 {
		return 0, nil
	}
	total := 0
	for _, slot := range slots {
		total += slot.Minutes()
	}
	return float64(total) / float64(len(slots)), nil
}

// SlotEnded reports whether the slot on date is over. An empty slot id
// means the whole day.
func (s *Service) SlotEnded(ctx context.Context, date, timeSlotID string) (bool, error) {
	var end time.Time
	if timeSlotID == "" {
		dayEnd, err := model.DayEnd(date, s.loc)
		if err != nil {
			return false, appErr.InvalidArgument("bad date %q", date)
		}
		end = dayEnd
	} else {
		slot, err := s.TimeSlot(ctx, timeSlotID)
		if err != nil {
			return false, err
		}
		_, slotEnd, err := slot.Window(date, s.loc)
		if err != nil {
			return false, appErr.InvalidArgument("%v", err)
		}
		end = slotEnd
	}
	return !s.Now().Before(end), nil
}

// SetStationStatus toggles maintenance. Reserved and occupied are derived
// from the reservation ledger and cannot be set.
func (s *Service) SetStationStatus(ctx context.Context, id string, status model.StationStatus) (*StationView, error) {
	var maintenance bool
	switch status {
	case model.StationMaintenance:
		maintenance = true
	case model.StationAvailable:
		maintenance = false
	case model.StationReserved, model.StationOccupied:
		return nil, appErr.InvalidState("station status %s is derived from reservations", status)
	default:
		return nil, appErr.InvalidArgument("unknown station status %q", status)
	}

	station, err := s.Station(ctx, id)
	if err != nil {
		return nil, err
	}

	result := s.db.WithContext(ctx).
		Model(&model.Station{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"maintenance": maintenance,
			"updated_at":  s.now().UTC(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, appErr.NotFound("station", id)
	}

	logger.Log.Info("station status changed",
		zap.String("stationID", id),
		zap.String("status", string(status)),
	)

	if station.Maintenance && !maintenance && s.onCapacity != nil {
		station.Maintenance = false
		s.onCapacity(ctx, *station)
	}
	return s.GetStation(ctx, id)
}

func (s *Service) withStatus(ctx context.Context, stations []model.Station) ([]StationView, error) {
	views := make([]StationView, len(stations))
	if len(stations) == 0 {
		return views, nil
	}

	ids := make([]string, len(stations))
	for i, st := range stations {
		ids[i] = st.ID
	}

	var today []model.Reservation
	if err := s.db.WithContext(ctx).
		Where("station_id IN ? AND date = ? AND status = ?", ids, s.Today(), model.ReservationActive).
		Find(&today).Error; err != nil {
		return nil, err
	}

	slots, err := s.TimeSlots(ctx)
	if err != nil {
		return nil, err
	}
	slotByID := make(map[string]model.TimeSlot, len(slots))
	for _, slot := range slots {
		slotByID[slot.ID] = slot
	}

	byStation := make(map[string][]model.Reservation)
	for _, r := range today {
		byStation[r.StationID] = append(byStation[r.StationID], r)
	}

	now := s.Now()
	for i, st := range stations {
		views[i] = StationView{Station: st, Status: deriveStatus(st, byStation[st.ID], slotByID, now, s.loc)}
	}
	return views, nil
}

func deriveStatus(st model.Station, active []model.Reservation, slots map[string]model.TimeSlot, now time.Time, loc *time.Location) model.StationStatus {
	if st.Maintenance {
		return model.StationMaintenance
	}
	status := model.StationAvailable
	for _, r := range active {
		slot, ok := slots[r.TimeSlotID]
		if !ok {
			continue
		}
		start, end, err := slot.Window(r.Date, loc)
		if err != nil {
			continue
		}
		if !now.Before(start) && now.Before(end) {
			return model.StationOccupied
		}
		if now.Before(start) {
			status = model.StationReserved
		}
	}
	return status
}
