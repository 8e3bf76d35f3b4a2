package match

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"arena-service/internal/model"
	"arena-service/internal/service/registry"
	appErr "arena-service/pkg/errors"
	"arena-service/pkg/logger"
	"arena-service/pkg/utils/random"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service is the match coordinator. Every mutation loads the match under a
// row lock, applies one transition and saves it in the same transaction.
type Service struct {
	db       *gorm.DB
	registry *registry.Service
	notifier Notifier
}

func NewService(db *gorm.DB, reg *registry.Service, notifier Notifier) *Service {
	return &Service{db: db, registry: reg, notifier: notifier}
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*model.Match, error) {
	params.CreatorID = strings.TrimSpace(params.CreatorID)
	if params.CreatorID == "" {
		return nil, appErr.InvalidArgument("creatorId is required")
	}
	if !params.GameType.Valid() {
		return nil, appErr.InvalidArgument("unknown game type %q", params.GameType)
	}
	if !model.ValidDate(params.Date) {
		return nil, appErr.InvalidArgument("date %q is not YYYY-MM-DD", params.Date)
	}
	if params.MaxPlayers < MinPlayers || params.MaxPlayers > MaxPlayers {
		return nil, appErr.InvalidArgument("maxPlayers must be between %d and %d", MinPlayers, MaxPlayers)
	}
	if params.SkillLevel == "" {
		params.SkillLevel = model.SkillCasual
	}
	if !params.SkillLevel.Valid() {
		return nil, appErr.InvalidArgument("unknown skill level %q", params.SkillLevel)
	}
	if params.TimeSlotID == "" {
		return nil, appErr.InvalidArgument("timeSlotId is required")
	}
	ended, err := s.registry.SlotEnded(ctx, params.Date, params.TimeSlotID)
	if err != nil {
		return nil, err
	}
	if ended {
		return nil, appErr.InvalidArgument("slot %s on %s has already ended", params.TimeSlotID, params.Date)
	}

	m := &model.Match{
		ID:         uuid.NewString(),
		GameType:   params.GameType,
		CreatorID:  params.CreatorID,
		Players:    datatypes.NewJSONSlice([]string{params.CreatorID}),
		MaxPlayers: params.MaxPlayers,
		SkillLevel: params.SkillLevel,
		Status:     model.MatchOpen,
		Date:       params.Date,
		TimeSlotID: params.TimeSlotID,
	}

	// join codes are short; retry the rare collision
	for attempt := 0; ; attempt++ {
		m.Code = random.Code(codeLength)
		err = s.db.WithContext(ctx).Create(m).Error
		if err == nil {
			break
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) || attempt >= 4 {
			return nil, err
		}
	}

	logger.Log.Info("match created",
		zap.String("matchID", m.ID),
		zap.String("code", m.Code),
		zap.String("creatorID", m.CreatorID),
		zap.String("gameType", string(m.GameType)),
		zap.Int("maxPlayers", m.MaxPlayers),
	)
	return m, nil
}

// Join adds userID to the match. A join that fills the match starts it.
func (s *Service) Join(ctx context.Context, id, userID string) (*model.Match, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, appErr.InvalidArgument("userId is required")
	}
	return s.mutate(ctx, id, func(m *model.Match) ([]note, error) {
		if m.Status.Terminal() {
			return nil, appErr.InvalidState("match %s is %s", m.ID, m.Status)
		}
		if len(m.Players) >= m.MaxPlayers {
			return nil, fmt.Errorf("%w: %d/%d players", appErr.ErrFull, len(m.Players), m.MaxPlayers)
		}
		if indexOf(m.Players, userID) >= 0 {
			return nil, fmt.Errorf("%w: user %s is already in match %s", appErr.ErrAlreadyJoined, userID, m.ID)
		}

		m.Players = append(m.Players, userID)
		notes := []note{{
			userID:  m.CreatorID,
			kind:    model.NotifyMatchJoined,
			message: fmt.Sprintf("%s joined your %s match (%d/%d).", userID, m.GameType, len(m.Players), m.MaxPlayers),
		}}
		if len(m.Players) == m.MaxPlayers {
			m.Status = model.MatchInProgress
			for _, p := range m.Players {
				notes = append(notes, note{
					userID:  p,
					kind:    model.NotifyMatchFilled,
					message: fmt.Sprintf("Your %s match on %s is full and ready to start.", m.GameType, m.Date),
				})
			}
		}
		return notes, nil
	})
}

func (s *Service) JoinByCode(ctx context.Context, code, userID string) (*model.Match, error) {
	m, err := s.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.Join(ctx, m.ID, userID)
}

// Leave removes userID. Ownership passes to the oldest remaining player; a
// match nobody is left in is cancelled.
func (s *Service) Leave(ctx context.Context, id, userID string) (*model.Match, error) {
	return s.mutate(ctx, id, func(m *model.Match) ([]note, error) {
		if m.Status.Terminal() {
			return nil, appErr.InvalidState("match %s is %s", m.ID, m.Status)
		}
		i := indexOf(m.Players, userID)
		if i < 0 {
			return nil, appErr.NotFound("player", userID)
		}
		players := make([]string, 0, len(m.Players)-1)
		players = append(players, m.Players[:i]...)
		players = append(players, m.Players[i+1:]...)
		m.Players = players

		if len(players) == 0 {
			m.Status = model.MatchCancelled
			now := s.registry.Now().UTC()
			m.EndedAt = &now
			return nil, nil
		}
		if userID == m.CreatorID {
			m.CreatorID = players[0]
			return []note{{
				userID:  m.CreatorID,
				kind:    model.NotifyMatchOwner,
				message: fmt.Sprintf("You are now the host of the %s match on %s.", m.GameType, m.Date),
			}}, nil
		}
		return nil, nil
	})
}

// Complete ends a running match. Only the creator may complete it.
func (s *Service) Complete(ctx context.Context, id, actorID string) (*model.Match, error) {
	return s.mutate(ctx, id, func(m *model.Match) ([]note, error) {
		if m.CreatorID != actorID {
			return nil, fmt.Errorf("%w: only the host can complete match %s", appErr.ErrForbidden, m.ID)
		}
		if m.Status != model.MatchInProgress {
			return nil, appErr.InvalidState("match %s is %s", m.ID, m.Status)
		}
		return s.end(m, model.MatchCompleted, ""), nil
	})
}

func (s *Service) Cancel(ctx context.Context, id, actorID string) (*model.Match, error) {
	return s.mutate(ctx, id, func(m *model.Match) ([]note, error) {
		if m.CreatorID != actorID {
			return nil, fmt.Errorf("%w: only the host can cancel match %s", appErr.ErrForbidden, m.ID)
		}
		if m.Status.Terminal() {
			return nil, appErr.InvalidState("match %s is %s", m.ID, m.Status)
		}
		return s.end(m, model.MatchCancelled, actorID), nil
	})
}

func (s *Service) end(m *model.Match, status model.MatchStatus, skip string) []note {
	now := s.registry.Now().UTC()
	m.Status = status
	m.EndedAt = &now

	verb := "has finished"
	if status == model.MatchCancelled {
		verb = "was cancelled"
	}
	var notes []note
	for _, p := range m.Players {
		if p == skip {
			continue
		}
		notes = append(notes, note{
			userID:  p,
			kind:    model.NotifyMatchEnded,
			message: fmt.Sprintf("Your %s match on %s %s.", m.GameType, m.Date, verb),
		})
	}
	return notes
}

// SweepElapsed settles matches whose slot is over: running ones complete,
// open ones are cancelled.
func (s *Service) SweepElapsed(ctx context.Context, now time.Time) (int, error) {
	var live []model.Match
	if err := s.db.WithContext(ctx).
		Where("status IN ?", []model.MatchStatus{model.MatchOpen, model.MatchInProgress}).
		Where("date <= ?", now.In(s.registry.Location()).Format(model.DateLayout)).
		Find(&live).Error; err != nil {
		return 0, err
	}
	if len(live) == 0 {
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

	settled := 0
	for _, candidate := range live {
		if slot, ok := slotByID[candidate.TimeSlotID]; ok {
			_, end, err := slot.Window(candidate.Date, s.registry.Location())
			if err == nil && now.Before(end) {
				continue
			}
		}
		_, err := s.mutate(ctx, candidate.ID, func(m *model.Match) ([]note, error) {
			switch m.Status {
			case model.MatchInProgress:
				return s.end(m, model.MatchCompleted, ""), nil
			case model.MatchOpen:
				return s.end(m, model.MatchCancelled, ""), nil
			}
			return nil, appErr.InvalidState("match %s is %s", m.ID, m.Status)
		})
		if err != nil {
			if !errors.Is(err, appErr.ErrInvalidState) {
				logger.Log.Warn("match sweep failed", zap.String("matchID", candidate.ID), zap.Error(err))
			}
			continue
		}
		settled++
	}
	return settled, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Match, error) {
	var m model.Match
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.NotFound("match", id)
		}
		return nil, err
	}
	return &m, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (*model.Match, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	var m model.Match
	if err := s.db.WithContext(ctx).First(&m, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErr.NotFound("match code", code)
		}
		return nil, err
	}
	return &m, nil
}

// ListOpen returns joinable matches, oldest first.
func (s *Service) ListOpen(ctx context.Context, gameType model.GameType) ([]model.Match, error) {
	q := s.db.WithContext(ctx).Where("status = ?", model.MatchOpen)
	if gameType != "" {
		if !gameType.Valid() {
			return nil, appErr.InvalidArgument("unknown game type %q", gameType)
		}
		q = q.Where("game_type = ?", gameType)
	}
	var items []model.Match
	if err := q.Order("created_at ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]model.Match, error) {
	var items []model.Match
	err := s.db.WithContext(ctx).
		Where(datatypes.JSONArrayQuery("players").Contains(userID)).
		Order("created_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) mutate(ctx context.Context, id string, apply func(m *model.Match) ([]note, error)) (*model.Match, error) {
	var (
		m     model.Match
		notes []note
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return appErr.NotFound("match", id)
			}
			return err
		}
		var err error
		notes, err = apply(&m)
		if err != nil {
			return err
		}
		return tx.Save(&m).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("match updated",
		zap.String("matchID", m.ID),
		zap.String("status", string(m.Status)),
		zap.Int("players", len(m.Players)),
	)
	for _, n := range notes {
		if s.notifier == nil {
			break
		}
		if _, err := s.notifier.Notify(ctx, n.userID, n.kind, n.message); err != nil {
			logger.Log.Warn("match notification failed", zap.String("userID", n.userID), zap.Error(err))
		}
	}
	return &m, nil
}

func indexOf(players []string, userID string) int {
	for i, p := range players {
		if p == userID {
			return i
		}
	}
	return -1
}
