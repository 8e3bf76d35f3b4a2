package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"arena-service/internal/model"
	"arena-service/internal/repo"
	"arena-service/internal/service/availability"
	"arena-service/internal/service/registry"
	"arena-service/internal/service/reservation"
	appErr "arena-service/pkg/errors"
	"arena-service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ReasonUser    = "user"
	ReasonTimeout = "timeout"
	ReasonExpired = "expired"
)

// Notifier is the part of the notification dispatcher the queue needs.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind model.NotificationKind, message string) (*model.Notification, error)
}

type JoinParams struct {
	UserID      string
	GameType    model.GameType
	Date        string
	TimeSlotID  string // empty: any slot that day
	PlayerCount int
}

type GameTypeCount struct {
	GameType model.GameType `json:"gameType"`
	Count    int            `json:"count"`
}

type Stats struct {
	TotalWaiting     int             `json:"totalWaiting"`
	AverageWaitTime  int             `json:"averageWaitTime"`
	QueuesByGameType []GameTypeCount `json:"queuesByGameType"`
}

type Options struct {
	Policy WaitPolicy
}

// Service is the only writer of queue entries. Entries are ordered per
// bucket by (joinedAt, seq).
type Service struct {
	db           *gorm.DB
	registry     *registry.Service
	availability *availability.Service
	ledger       *reservation.Service
	notifier     Notifier
	locker       repo.Locker
	policy       WaitPolicy
}

func NewService(db *gorm.DB, reg *registry.Service, avail *availability.Service, ledger *reservation.Service, notifier Notifier, locker repo.Locker, opts Options) *Service {
	if opts.Policy == nil {
		opts.Policy = ProportionalPolicy{}
	}
	return &Service{
		db:           db,
		registry:     reg,
		availability: avail,
		ledger:       ledger,
		notifier:     notifier,
		locker:       locker,
		policy:       opts.Policy,
	}
}

// dayKey covers the exact-slot buckets of a day together with its any-slot
// bucket, since promotion merges them.
func dayKey(gameType model.GameType, date string) string {
	return fmt.Sprintf("queue:%s|%s", gameType, date)
}

func (s *Service) Join(ctx context.Context, params JoinParams) (*model.QueueEntry, error) {
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
	if params.PlayerCount <= 0 {
		params.PlayerCount = 1
	}
	ended, err := s.registry.SlotEnded(ctx, params.Date, params.TimeSlotID)
	if err != nil {
		return nil, err
	}
	if ended {
		return nil, appErr.InvalidArgument("cannot queue for a slot that has ended")
	}

	unlock, err := s.locker.Lock(ctx, dayKey(params.GameType, params.Date))
	if err != nil {
		return nil, err
	}
	defer unlock()

	if params.TimeSlotID != "" {
		if err := s.requireFull(ctx, params); err != nil {
			return nil, err
		}
	}

	entry := &model.QueueEntry{
		ID:          uuid.NewString(),
		UserID:      params.UserID,
		GameType:    params.GameType,
		Date:        params.Date,
		TimeSlotID:  params.TimeSlotID,
		PlayerCount: params.PlayerCount,
		JoinedAt:    s.registry.Now().UTC(),
		Status:      model.QueueWaiting,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dup int64
		if err := tx.Model(&model.QueueEntry{}).
			Where("user_id = ? AND game_type = ? AND date = ? AND time_slot_id = ? AND status = ?",
				entry.UserID, entry.GameType, entry.Date, entry.TimeSlotID, model.QueueWaiting).
			Count(&dup).Error; err != nil {
			return err
		}
		if dup > 0 {
			return fmt.Errorf("%w: user %s is already waiting in this queue", appErr.ErrAlreadyJoined, entry.UserID)
		}

		var maxSeq int64
		if err := tx.Model(&model.QueueEntry{}).
			Where("game_type = ? AND date = ?", entry.GameType, entry.Date).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}
		entry.Seq = maxSeq + 1

		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		pos, err := positionOf(tx, entry)
		if err != nil {
			return err
		}
		entry.Position = pos
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("queue joined",
		zap.String("entryID", entry.ID),
		zap.String("userID", entry.UserID),
		zap.String("gameType", string(entry.GameType)),
		zap.String("date", entry.Date),
		zap.String("timeSlotID", entry.TimeSlotID),
		zap.Int("position", entry.Position),
	)
	return entry, nil
}

// requireFull refuses an exact-slot join while a station that fits the party
// is free in that slot; the guest should reserve it instead.
func (s *Service) requireFull(ctx context.Context, params JoinParams) error {
	snap, err := s.availability.Check(ctx, params.GameType, params.Date, params.TimeSlotID)
	if err != nil {
		return err
	}
	if snap.ShouldQueue {
		return nil
	}
	for _, station := range snap.Stations {
		if station.Capacity >= params.PlayerCount {
			return appErr.Conflict("%s station %s is free on %s, slot %s; reserve it instead",
				params.GameType, station.ID, params.Date, params.TimeSlotID)
		}
	}
	return nil
}

// Cancel moves a waiting entry to cancelled. An empty reason means the user
// withdrew.
func (s *Service) Cancel(ctx context.Context, id, reason string) (*model.QueueEntry, error) {
	entry, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status != model.QueueWaiting {
		return nil, appErr.InvalidState("queue entry %s is %s", id, entry.Status)
	}
	if reason == "" {
		reason = ReasonUser
	}
	if err := s.cancelEntry(ctx, s.db, entry, reason, s.registry.Now()); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) cancelEntry(ctx context.Context, db *gorm.DB, entry *model.QueueEntry, reason string, now time.Time) error {
	resolved := now.UTC()
	result := db.WithContext(ctx).
		Model(&model.QueueEntry{}).
		Where("id = ? AND status = ?", entry.ID, model.QueueWaiting).
		Updates(map[string]interface{}{
			"status":        model.QueueCancelled,
			"cancel_reason": reason,
			"resolved_at":   resolved,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return appErr.InvalidState("queue entry %s is no longer waiting", entry.ID)
	}
	entry.Status = model.QueueCancelled
	entry.CancelReason = reason
	entry.ResolvedAt = &resolved
	entry.Position = 0

	logger.Log.Info("queue entry cancelled",
		zap.String("entryID", entry.ID),
		zap.String("userID", entry.UserID),
		zap.String("reason", reason),
	)
	return nil
}

// Promote seats one waiting entry on a free station of its bucket. Any-slot
// entries take the earliest slot of their day that still has room.
func (s *Service) Promote(ctx context.Context, id string) (*model.QueueEntry, *model.Reservation, error) {
	entry, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if entry.Status != model.QueueWaiting {
		return nil, nil, appErr.InvalidState("queue entry %s is %s", id, entry.Status)
	}

	unlock, err := s.locker.Lock(ctx, dayKey(entry.GameType, entry.Date))
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	now := s.registry.Now()
	slots, err := s.slotIndex(ctx)
	if err != nil {
		return nil, nil, err
	}
	if s.entryEnded(entry, slots, now) {
		if err := s.expire(ctx, entry, ReasonExpired, now); err != nil {
			return nil, nil, err
		}
		return nil, nil, appErr.InvalidState("queue entry %s has expired", id)
	}

	candidates := []string{entry.TimeSlotID}
	if entry.TimeSlotID == "" {
		ordered, err := s.registry.TimeSlots(ctx)
		if err != nil {
			return nil, nil, err
		}
		candidates = candidates[:0]
		for _, slot := range ordered {
			if !s.slotEnded(slot, entry.Date, now) {
				candidates = append(candidates, slot.ID)
			}
		}
	}
	for _, slotID := range candidates {
		r, err := s.seat(ctx, entry, slotID)
		if err == nil {
			s.notifyPromoted(ctx, entry, r)
			return entry, r, nil
		}
		if !errors.Is(err, errNoStation) && !errors.Is(err, errTooLarge) && !errors.Is(err, appErr.ErrConflict) {
			return nil, nil, err
		}
	}
	return nil, nil, appErr.Conflict("no free %s station for queue entry %s", entry.GameType, id)
}

// PromoteNext runs when the ledger frees a station in the bucket. It seats
// the earliest waiting guest that fits and returns the promoted entry, or
// nil when nobody could be seated. Individual promotion failures move on to
// the next candidate and are only logged.
func (s *Service) PromoteNext(ctx context.Context, gameType model.GameType, date, timeSlotID string) (*model.QueueEntry, error) {
	unlock, err := s.locker.Lock(ctx, dayKey(gameType, date))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var candidates []model.QueueEntry
	if err := s.db.WithContext(ctx).
		Where("game_type = ? AND date = ? AND status = ?", gameType, date, model.QueueWaiting).
		Where("(time_slot_id = ? OR time_slot_id = '')", timeSlotID).
		Order("joined_at ASC, seq ASC").
		Find(&candidates).Error; err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	now := s.registry.Now()
	slots, err := s.slotIndex(ctx)
	if err != nil {
		return nil, err
	}
	freed, ok := slots[timeSlotID]
	freedOver := !ok || s.slotEnded(freed, date, now)

	for i := range candidates {
		entry := &candidates[i]
		if s.entryEnded(entry, slots, now) {
			if err := s.expire(ctx, entry, ReasonExpired, now); err != nil {
				logger.Log.Warn("queue expire failed", zap.String("entryID", entry.ID), zap.Error(err))
			}
			continue
		}
		if freedOver {
			continue
		}

		r, err := s.seat(ctx, entry, timeSlotID)
		switch {
		case err == nil:
			logger.Log.Info("queue entry promoted",
				zap.String("entryID", entry.ID),
				zap.String("userID", entry.UserID),
				zap.String("reservationID", r.ID),
				zap.String("stationID", r.StationID),
			)
			s.notifyPromoted(ctx, entry, r)
			return entry, nil
		case errors.Is(err, errNoStation):
			// nothing left to hand out in this bucket
			return nil, nil
		default:
			logger.Log.Warn("queue promotion failed, trying next entry",
				zap.String("entryID", entry.ID),
				zap.Error(err),
			)
		}
	}
	return nil, nil
}

// PromoteWaiting offers new capacity of gameType to every waiting bucket: each
// date that has waiting entries, each of its slots that is not over yet.
// It returns how many entries were seated.
func (s *Service) PromoteWaiting(ctx context.Context, gameType model.GameType) (int, error) {
	if !gameType.Valid() {
		return 0, appErr.InvalidArgument("unknown game type %q", gameType)
	}
	var dates []string
	if err := s.db.WithContext(ctx).
		Model(&model.QueueEntry{}).
		Where("game_type = ? AND status = ?", gameType, model.QueueWaiting).
		Distinct().
		Order("date ASC").
		Pluck("date", &dates).Error; err != nil {
		return 0, err
	}
	if len(dates) == 0 {
		return 0, nil
	}
	slots, err := s.registry.TimeSlots(ctx)
	if err != nil {
		return 0, err
	}

	now := s.registry.Now()
	promoted := 0
	for _, date := range dates {
		for _, slot := range slots {
			if s.slotEnded(slot, date, now) {
				continue
			}
			for {
				entry, err := s.PromoteNext(ctx, gameType, date, slot.ID)
				if err != nil {
					return promoted, err
				}
				if entry == nil {
					break
				}
				promoted++
			}
		}
	}
	return promoted, nil
}

var (
	errNoStation = errors.New("no free station")
	errTooLarge  = errors.New("party does not fit any free station")
)

// seat reserves a free station for the entry in slotID and flips the entry
// to promoted in the same transaction.
func (s *Service) seat(ctx context.Context, entry *model.QueueEntry, slotID string) (*model.Reservation, error) {
	snap, err := s.availability.Check(ctx, entry.GameType, entry.Date, slotID)
	if err != nil {
		return nil, err
	}
	if snap.ShouldQueue {
		return nil, errNoStation
	}

	lastErr := errTooLarge
	for _, station := range snap.Stations {
		if station.Capacity < entry.PlayerCount {
			continue
		}
		entryID := entry.ID
		resolved := s.registry.Now().UTC()
		r, err := s.ledger.ReserveWith(ctx, reservation.ReserveParams{
			StationID:    station.ID,
			GameType:     entry.GameType,
			Date:         entry.Date,
			TimeSlotID:   slotID,
			UserID:       entry.UserID,
			PlayerCount:  entry.PlayerCount,
			QueueEntryID: &entryID,
		}, func(tx *gorm.DB, r *model.Reservation) error {
			result := tx.Model(&model.QueueEntry{}).
				Where("id = ? AND status = ?", entry.ID, model.QueueWaiting).
				Updates(map[string]interface{}{
					"status":         model.QueuePromoted,
					"reservation_id": r.ID,
					"resolved_at":    resolved,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return appErr.InvalidState("queue entry %s is no longer waiting", entry.ID)
			}
			return nil
		})
		if err == nil {
			entry.Status = model.QueuePromoted
			entry.ReservationID = &r.ID
			entry.ResolvedAt = &resolved
			entry.Position = 0
			return r, nil
		}
		if !errors.Is(err, appErr.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *Service) expire(ctx context.Context, entry *model.QueueEntry, reason string, now time.Time) error {
	if err := s.cancelEntry(ctx, s.db, entry, reason, now); err != nil {
		return err
	}
	msg := fmt.Sprintf("Your %s queue entry for %s has expired.", entry.GameType, entry.Date)
	if reason == ReasonTimeout {
		msg = fmt.Sprintf("Your %s queue entry for %s timed out.", entry.GameType, entry.Date)
	}
	s.notify(ctx, entry.UserID, model.NotifyQueueExpired, msg)
	return nil
}

func (s *Service) notifyPromoted(ctx context.Context, entry *model.QueueEntry, r *model.Reservation) {
	msg := fmt.Sprintf("Good news! A %s station (%s) is now reserved for you on %s, slot %s.",
		entry.GameType, r.StationID, r.Date, r.TimeSlotID)
	s.notify(ctx, entry.UserID, model.NotifyQueuePromoted, msg)
}

func (s *Service) notify(ctx context.Context, userID string, kind model.NotificationKind, msg string) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, userID, kind, msg); err != nil {
		logger.Log.Warn("queue notification failed", zap.String("userID", userID), zap.Error(err))
	}
}

// ExpireStale is the sweep hook: waiting entries older than ttl are
// cancelled as timeout, entries whose slot or day has passed as expired.
func (s *Service) ExpireStale(ctx context.Context, now time.Time, ttl time.Duration) (int, error) {
	var waiting []model.QueueEntry
	if err := s.db.WithContext(ctx).
		Where("status = ?", model.QueueWaiting).
		Order("joined_at ASC, seq ASC").
		Find(&waiting).Error; err != nil {
		return 0, err
	}
	if len(waiting) == 0 {
		return 0, nil
	}
	slots, err := s.slotIndex(ctx)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range waiting {
		entry := &waiting[i]
		var reason string
		switch {
		case s.entryEnded(entry, slots, now):
			reason = ReasonExpired
		case ttl > 0 && now.Sub(entry.JoinedAt) >= ttl:
			reason = ReasonTimeout
		default:
			continue
		}
		if err := s.expire(ctx, entry, reason, now); err != nil {
			if errors.Is(err, appErr.ErrInvalidState) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.QueueEntry, error) {
	entry, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status == model.QueueWaiting {
		pos, err := positionOf(s.db.WithContext(ctx), entry)
		if err != nil {
			return nil, err
		}
		entry.Position = pos
	}
	return entry, nil
}

// ActiveEntries lists every waiting entry in queue order with its position.
func (s *Service) ActiveEntries(ctx context.Context) ([]model.QueueEntry, error) {
	var entries []model.QueueEntry
	if err := s.db.WithContext(ctx).
		Where("status = ?", model.QueueWaiting).
		Order("joined_at ASC, seq ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	next := make(map[string]int)
	for i := range entries {
		key := bucketKey(&entries[i])
		next[key]++
		entries[i].Position = next[key]
	}
	return entries, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]model.QueueEntry, error) {
	var entries []model.QueueEntry
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("joined_at DESC, seq DESC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Status != model.QueueWaiting {
			continue
		}
		pos, err := positionOf(s.db.WithContext(ctx), &entries[i])
		if err != nil {
			return nil, err
		}
		entries[i].Position = pos
	}
	return entries, nil
}

func (s *Service) EstimatedWaitTime(ctx context.Context, gameType model.GameType) (int, error) {
	est, err := s.Estimate(ctx, gameType)
	if err != nil {
		return 0, err
	}
	return est.Minutes, nil
}

func (s *Service) Estimate(ctx context.Context, gameType model.GameType) (*WaitEstimate, error) {
	if !gameType.Valid() {
		return nil, appErr.InvalidArgument("unknown game type %q", gameType)
	}
	var queueLength, stations int64
	if err := s.db.WithContext(ctx).
		Model(&model.QueueEntry{}).
		Where("game_type = ? AND status = ?", gameType, model.QueueWaiting).
		Count(&queueLength).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).
		Model(&model.Station{}).
		Where("game_type = ? AND maintenance = ?", gameType, false).
		Count(&stations).Error; err != nil {
		return nil, err
	}
	avg, err := s.registry.AverageSlotMinutes(ctx)
	if err != nil {
		return nil, err
	}
	minutes, unavailable := s.policy.Estimate(avg, int(queueLength), int(stations))
	return &WaitEstimate{
		GameType:    gameType,
		Minutes:     minutes,
		QueueLength: int(queueLength),
		Stations:    int(stations),
		Unavailable: unavailable,
	}, nil
}

// Statistics summarizes every waiting entry. Rows follow the order in which
// each game type first appears in the queue.
func (s *Service) Statistics(ctx context.Context) (*Stats, error) {
	var waiting []model.QueueEntry
	if err := s.db.WithContext(ctx).
		Select("game_type").
		Where("status = ?", model.QueueWaiting).
		Order("joined_at ASC, seq ASC").
		Find(&waiting).Error; err != nil {
		return nil, err
	}

	stats := &Stats{QueuesByGameType: []GameTypeCount{}}
	index := make(map[model.GameType]int)
	for _, e := range waiting {
		i, ok := index[e.GameType]
		if !ok {
			i = len(stats.QueuesByGameType)
			index[e.GameType] = i
			stats.QueuesByGameType = append(stats.QueuesByGameType, GameTypeCount{GameType: e.GameType})
		}
		stats.QueuesByGameType[i].Count++
		stats.TotalWaiting++
	}
	if stats.TotalWaiting == 0 {
		return stats, nil
	}

	weighted := 0.0
	for _, row := range stats.QueuesByGameType {
		est, err := s.Estimate(ctx, row.GameType)
		if err != nil {
			return nil, err
		}
		weighted += float64(est.Minutes * row.Count)
	}
	stats.AverageWaitTime = int(math.Round(weighted / float64(stats.TotalWaiting)))
	return stats, nil
}

func (s *Service) load(ctx context.Context, id string) (*model.QueueEntry, error) {
	var entry model.QueueEntry
	err := s.db.WithContext(ctx).First(&entry, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.NotFound("queue entry", id)
		}
		return nil, err
	}
	return &entry, nil
}

// positionOf is 1 + waiting entries ahead in the same bucket.
func positionOf(db *gorm.DB, entry *model.QueueEntry) (int, error) {
	var ahead int64
	err := db.Model(&model.QueueEntry{}).
		Where("game_type = ? AND date = ? AND time_slot_id = ? AND status = ?",
			entry.GameType, entry.Date, entry.TimeSlotID, model.QueueWaiting).
		Where("(joined_at < ? OR (joined_at = ? AND seq < ?))", entry.JoinedAt, entry.JoinedAt, entry.Seq).
		Count(&ahead).Error
	if err != nil {
		return 0, err
	}
	return int(ahead) + 1, nil
}

func bucketKey(e *model.QueueEntry) string {
	return string(e.GameType) + "|" + e.Date + "|" + e.TimeSlotID
}

func (s *Service) slotIndex(ctx context.Context) (map[string]model.TimeSlot, error) {
	slots, err := s.registry.TimeSlots(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.TimeSlot, len(slots))
	for _, slot := range slots {
		out[slot.ID] = slot
	}
	return out, nil
}

func (s *Service) slotEnded(slot model.TimeSlot, date string, now time.Time) bool {
	_, end, err := slot.Window(date, s.registry.Location())
	if err != nil {
		return true
	}
	return !now.Before(end)
}

// entryEnded reports whether the entry can no longer be served: its slot is
// gone from the catalog, or its slot (or whole day, for any-slot entries)
// has passed.
func (s *Service) entryEnded(entry *model.QueueEntry, slots map[string]model.TimeSlot, now time.Time) bool {
	if entry.TimeSlotID == "" {
		end, err := model.DayEnd(entry.Date, s.registry.Location())
		if err != nil {
			return true
		}
		return !now.Before(end)
	}
	slot, ok := slots[entry.TimeSlotID]
	if !ok {
		return true
	}
	return s.slotEnded(slot, entry.Date, now)
}
