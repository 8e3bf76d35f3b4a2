package service

import (
	"context"
	"time"

	"arena-service/internal/config"
	"arena-service/internal/model"
	"arena-service/internal/repo"
	"arena-service/internal/service/availability"
	"arena-service/internal/service/match"
	"arena-service/internal/service/notification"
	"arena-service/internal/service/queue"
	"arena-service/internal/service/registry"
	"arena-service/internal/service/reservation"
	"arena-service/internal/service/sweep"
	"arena-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Options struct {
	Location   *time.Location
	Now        func() time.Time
	EntryTTL   time.Duration
	LockTTL    time.Duration
	LockWait   time.Duration
	WaitPolicy queue.WaitPolicy
}

// Container owns one engine instance. Components hold each other by handle;
// nothing here is global.
type Container struct {
	Registry     *registry.Service
	Availability *availability.Service
	Reservation  *reservation.Service
	Queue        *queue.Service
	Match        *match.Service
	Notification *notification.Service
	Sweep        *sweep.Service

	relay *notification.RedisBroadcaster
}

func NewContainer(db *gorm.DB, rdb *redis.Client, opts Options) *Container {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	locker := repo.NewLocker(rdb, opts.LockTTL, opts.LockWait)

	var (
		broadcaster notification.Broadcaster = notification.NewHub()
		relay       *notification.RedisBroadcaster
	)
	if rdb != nil {
		relay = notification.NewRedisBroadcaster(rdb)
		broadcaster = relay
	}

	reg := registry.NewService(db, registry.Options{Location: opts.Location, Now: opts.Now})
	avail := availability.NewService(db, reg)
	ledger := reservation.NewService(db, reg, locker)
	notifier := notification.NewService(db, broadcaster)
	q := queue.NewService(db, reg, avail, ledger, notifier, locker, queue.Options{Policy: opts.WaitPolicy})
	matches := match.NewService(db, reg, notifier)

	// a freed station goes to the queue before anyone else can see it
	ledger.OnRelease(func(ctx context.Context, gameType model.GameType, date, timeSlotID string) {
		if _, err := q.PromoteNext(ctx, gameType, date, timeSlotID); err != nil {
			logger.Log.Warn("queue promotion skipped",
				zap.String("gameType", string(gameType)),
				zap.String("date", date),
				zap.String("timeSlotID", timeSlotID),
				zap.Error(err),
			)
		}
	})

	// a station back from maintenance is new capacity for whoever waits
	reg.OnCapacity(func(ctx context.Context, station model.Station) {
		n, err := q.PromoteWaiting(ctx, station.GameType)
		if err != nil {
			logger.Log.Warn("queue refill failed",
				zap.String("stationID", station.ID),
				zap.Error(err),
			)
			return
		}
		logger.Log.Info("station back in service",
			zap.String("stationID", station.ID),
			zap.Int("promoted", n),
		)
	})

	return &Container{
		Registry:     reg,
		Availability: avail,
		Reservation:  ledger,
		Queue:        q,
		Match:        matches,
		Notification: notifier,
		Sweep:        sweep.NewService(ledger, q, matches, opts.EntryTTL, opts.Now),
		relay:        relay,
	}
}

// Start seeds the venue catalog and launches the background loops.
func (c *Container) Start(ctx context.Context, venue config.VenueConfig, sweepInterval time.Duration) error {
	stations, slots := Catalog(venue)
	if err := c.Registry.Seed(ctx, stations, slots); err != nil {
		return err
	}
	if c.relay != nil {
		go c.relay.Run(ctx)
	}
	c.Sweep.Start(ctx, sweepInterval)
	return nil
}

// Catalog converts the configured venue into registry rows.
func Catalog(venue config.VenueConfig) ([]model.Station, []model.TimeSlot) {
	stations := make([]model.Station, 0, len(venue.Stations))
	for _, st := range venue.Stations {
		stations = append(stations, model.Station{
			ID:       st.ID,
			GameType: model.GameType(st.GameType),
			Name:     st.Name,
			Capacity: st.Capacity,
		})
	}
	slots := make([]model.TimeSlot, 0, len(venue.TimeSlots))
	for _, slot := range venue.TimeSlots {
		slots = append(slots, model.TimeSlot{ID: slot.ID, Start: slot.Start, End: slot.End})
	}
	return stations, slots
}
