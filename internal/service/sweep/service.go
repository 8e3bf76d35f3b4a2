package sweep

import (
	"context"
	"time"

	"arena-service/pkg/logger"

	"go.uber.org/zap"
)

type ReservationCompleter interface {
	CompleteElapsed(ctx context.Context, now time.Time) (int, error)
}

type QueueExpirer interface {
	ExpireStale(ctx context.Context, now time.Time, ttl time.Duration) (int, error)
}

type MatchSweeper interface {
	SweepElapsed(ctx context.Context, now time.Time) (int, error)
}

type Result struct {
	CompletedReservations int `json:"completedReservations"`
	ExpiredQueueEntries   int `json:"expiredQueueEntries"`
	SettledMatches        int `json:"settledMatches"`
}

// Service is the periodic cleanup hook. It never decides when to run;
// callers pass the clock reading, or use Start for a ticker.
type Service struct {
	reservations ReservationCompleter
	queue        QueueExpirer
	matches      MatchSweeper
	entryTTL     time.Duration
	now          func() time.Time
}

func NewService(reservations ReservationCompleter, queue QueueExpirer, matches MatchSweeper, entryTTL time.Duration, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		reservations: reservations,
		queue:        queue,
		matches:      matches,
		entryTTL:     entryTTL,
		now:          now,
	}
}

// Run performs one sweep. Each stage runs even if an earlier one failed;
// the first error is returned.
func (s *Service) Run(ctx context.Context, now time.Time) (Result, error) {
	var (
		res      Result
		firstErr error
	)
	record := func(stage string, n int, err error) int {
		if err != nil {
			logger.Log.Error("sweep stage failed", zap.String("stage", stage), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
		return n
	}

	// slots that ended free their stations before the queue is looked at
	n, err := s.reservations.CompleteElapsed(ctx, now)
	res.CompletedReservations = record("reservations", n, err)
	n, err = s.queue.ExpireStale(ctx, now, s.entryTTL)
	res.ExpiredQueueEntries = record("queue", n, err)
	n, err = s.matches.SweepElapsed(ctx, now)
	res.SettledMatches = record("matches", n, err)

	if res.CompletedReservations+res.ExpiredQueueEntries+res.SettledMatches > 0 {
		logger.Log.Info("sweep finished",
			zap.Int("completedReservations", res.CompletedReservations),
			zap.Int("expiredQueueEntries", res.ExpiredQueueEntries),
			zap.Int("settledMatches", res.SettledMatches),
		)
	}
	return res, firstErr
}

// Start runs the sweep every interval until ctx is done. A non-positive
// interval disables it.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		logger.Log.Info("sweeper disabled")
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = s.Run(ctx, s.now())
			}
		}
	}()
}
