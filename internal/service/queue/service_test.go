package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"arena-service/internal/model"
	"arena-service/internal/repo"
	"arena-service/internal/service/availability"
	"arena-service/internal/service/notification"
	"arena-service/internal/service/queue"
	"arena-service/internal/service/registry"
	"arena-service/internal/service/reservation"
	"arena-service/internal/testfixtures"
	appErr "arena-service/pkg/errors"
)

type engine struct {
	registry *registry.Service
	ledger   *reservation.Service
	notifier *notification.Service
	queue    *queue.Service
	clock    *testfixtures.Clock
}

func newEngine(t *testing.T, opts queue.Options) *engine {
	t.Helper()
	return buildEngine(t, opts, true)
}

// newManualEngine leaves promotion to explicit Promote calls.
func newManualEngine(t *testing.T) *engine {
	t.Helper()
	return buildEngine(t, queue.Options{}, false)
}

func buildEngine(t *testing.T, opts queue.Options, autoPromote bool) *engine {
	t.Helper()

	db := testfixtures.OpenDB(t)
	clock := testfixtures.NewClock(time.Time{})
	reg := registry.NewService(db, registry.Options{Location: time.UTC, Now: clock.Now})
	if err := reg.Seed(context.Background(), testfixtures.Stations(), testfixtures.Slots()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	locker := repo.NewLocalLocker(5 * time.Second)
	ledger := reservation.NewService(db, reg, locker)
	notifier := notification.NewService(db, notification.NewHub())
	q := queue.NewService(db, reg, availability.NewService(db, reg), ledger, notifier, locker, opts)
	if autoPromote {
		ledger.OnRelease(func(ctx context.Context, gameType model.GameType, date, timeSlotID string) {
			if _, err := q.PromoteNext(ctx, gameType, date, timeSlotID); err != nil {
				t.Errorf("promote next: %v", err)
			}
		})
		reg.OnCapacity(func(ctx context.Context, station model.Station) {
			if _, err := q.PromoteWaiting(ctx, station.GameType); err != nil {
				t.Errorf("promote waiting: %v", err)
			}
		})
	}
	return &engine{registry: reg, ledger: ledger, notifier: notifier, queue: q, clock: clock}
}

// fill books every station of gameType in the given slots so joins queue.
func (e *engine) fill(t *testing.T, gameType model.GameType, slotIDs ...string) {
	t.Helper()
	ctx := context.Background()
	stations, err := e.registry.ListStations(ctx, gameType)
	if err != nil {
		t.Fatalf("list stations: %v", err)
	}
	for _, slotID := range slotIDs {
		for _, st := range stations {
			if _, err := e.ledger.Reserve(ctx, reservation.ReserveParams{
				StationID:  st.ID,
				GameType:   gameType,
				Date:       testfixtures.Date,
				TimeSlotID: slotID,
				UserID:     "walk-in-" + st.ID,
			}); err != nil {
				t.Fatalf("fill %s %s: %v", st.ID, slotID, err)
			}
		}
	}
}

func (e *engine) reserve(t *testing.T, stationID, userID, slotID string) *model.Reservation {
	t.Helper()
	r, err := e.ledger.Reserve(context.Background(), reservation.ReserveParams{
		StationID:  stationID,
		GameType:   model.GamePool,
		Date:       testfixtures.Date,
		TimeSlotID: slotID,
		UserID:     userID,
	})
	if err != nil {
		t.Fatalf("reserve %s for %s: %v", stationID, userID, err)
	}
	return r
}

func (e *engine) join(t *testing.T, userID string, gameType model.GameType, slotID string) *model.QueueEntry {
	t.Helper()
	entry, err := e.queue.Join(context.Background(), queue.JoinParams{
		UserID:     userID,
		GameType:   gameType,
		Date:       testfixtures.Date,
		TimeSlotID: slotID,
	})
	if err != nil {
		t.Fatalf("join %s: %v", userID, err)
	}
	return entry
}

func (e *engine) status(t *testing.T, id string) model.QueueStatus {
	t.Helper()
	entry, err := e.queue.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	return entry.Status
}

func TestJoinPositions(t *testing.T) {
	e := newEngine(t, queue.Options{})
	ctx := context.Background()

	e.fill(t, model.GamePool, "slot-1", "slot-2")
	a := e.join(t, "u-a", model.GamePool, "slot-1")
	b := e.join(t, "u-b", model.GamePool, "slot-1")
	c := e.join(t, "u-c", model.GamePool, "slot-1")
	other := e.join(t, "u-d", model.GamePool, "slot-2")

	if a.Position != 1 || b.Position != 2 || c.Position != 3 {
		t.Fatalf("unexpected positions: %d %d %d", a.Position, b.Position, c.Position)
	}
	if other.Position != 1 {
		t.Fatalf("other bucket should start at 1, got %d", other.Position)
	}

	if _, err := e.queue.Cancel(ctx, b.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, err := e.queue.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Position != 2 {
		t.Fatalf("expected position 2 after cancellation ahead, got %d", got.Position)
	}

	active, err := e.queue.ActiveEntries(ctx)
	if err != nil {
		t.Fatalf("active entries: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("expected 3 waiting entries, got %d", len(active))
	}
	for _, entry := range active {
		if entry.ID == c.ID && entry.Position != 2 {
			t.Fatalf("expected active position 2 for c, got %d", entry.Position)
		}
	}
}

func TestJoinTwiceInSameBucket(t *testing.T) {
	e := newEngine(t, queue.Options{})
	ctx := context.Background()

	e.fill(t, model.GamePool, "slot-1", "slot-2")
	e.join(t, "u-a", model.GamePool, "slot-1")
	_, err := e.queue.Join(ctx, queue.JoinParams{UserID: "u-a", GameType: model.GamePool, Date: testfixtures.Date, TimeSlotID: "slot-1"})
	if !errors.Is(err, appErr.ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined, got %v", err)
	}
	// a different bucket is fine
	e.join(t, "u-a", model.GamePool, "slot-2")
}

func TestJoinValidation(t *testing.T) {
	e := newEngine(t, queue.Options{})
	ctx := context.Background()

	if _, err := e.queue.Join(ctx, queue.JoinParams{UserID: "u-a", GameType: "darts", Date: testfixtures.Date}); !errors.Is(err, appErr.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for game type, got %v", err)
	}
	if _, err := e.queue.Join(ctx, queue.JoinParams{UserID: "u-a", GameType: model.GamePool, Date: testfixtures.Date, TimeSlotID: "slot-9"}); !errors.Is(err, appErr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for slot, got %v", err)
	}
	e.clock.Set(time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC))
	if _, err := e.queue.Join(ctx, queue.JoinParams{UserID: "u-a", GameType: model.GamePool, Date: "2024-05-31"}); !errors.Is(err, appErr.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for a past day, got %v", err)
	}
}

func TestCancelReservationPromotesHead(t *testing.T) {
	e := newEngine(t, queue.Options{})
	ctx := context.Background()

	b := e.reserve(t, "pool-1", "u-b", "slot-1")
	e.reserve(t, "pool-2", "u-c", "slot-1")
	a := e.join(t, "u-a", model.GamePool, "slot-1")

	if _, err := e.ledger.Cancel(ctx, b.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	entry, err := e.queue.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Status != model.QueuePromoted || entry.ReservationID == nil {
		t.Fatalf("expected promoted entry with reservation, got %+v", entry)
	}
	r, err := e.ledger.Get(ctx, *entry.ReservationID)
	if err != nil {
		t.Fatalf("get reservation: %v", err)
	}
	if r.UserID != "u-a" || r.StationID != "pool-1" || r.Status != model.ReservationActive {
		t.Fatalf("unexpected promoted reservation: %+v", r)
	}
	if r.QueueEntryID == nil || *r.QueueEntryID != a.ID {
		t.Fatalf("reservation should point back at the queue entry")
	}

	notes, err := e.notifier.List(ctx, "u-a", false)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notes) != 1 || notes[0].Kind != model.NotifyQueuePromoted || notes[0].Read {
		t.Fatalf("expected one unread promotion notification, got %+v", notes)
	}
}

func TestPromotionFollowsJoinOrder(t *testing.T) {
	e := newEngine(t, queue.Options{})
	ctx := context.Background()

	x := e.reserve(t, "pool-1", "u-x", "slot-1")
	y := e.reserve(t, "pool-2", "u-y", "slot-1")
	e1 := e.join(t, "u-1", model.GamePool, "slot-1")
	e2 := e.join(t, "u-2", model.GamePool, "slot-1")
	e3 := e.join(t, "u-3", model.GamePool, "slot-1")

	if _, err := e.ledger.Cancel(ctx, y.ID); err != nil {
		t.Fatalf("cancel y: %v", err)
	}
	if e.status(t, e1.ID) != model.QueuePromoted || e.status(t, e2.ID) != model.QueueWaiting {
		t.Fatalf("expected e1 promoted first")
	}

	if _, err := e.ledger.Cancel(ctx, x.ID); err != nil {
		t.Fatalf("cancel x: %v", err)
	}
	if e.status(t, e2.ID) != model.QueuePromoted || e.status(t, e3.ID) != model.QueueWaiting {
		t.Fatalf("expected e2 promoted second")
	}

	first, _ := e.queue.Get(ctx, e1.ID)
	if _, err := e.ledger.Cancel(ctx, *first.ReservationID); err != nil {
		t.Fatalf("cancel e1 reservation: %v", err)
	}
	if e.status(t, e3.ID) != model.QueuePromoted {
		t.Fatalf("expected e3 promoted third")
	}
}

func TestPromoteNextEmptyBucketIsNoop(t *testing.T) {
	e := newEngine(t, queue.Options{})
	ctx := context.Background()

	entry, err := e.queue.PromoteNext(ctx, model.GamePool, testfixtures.Date, "slot-1")
	if err != nil {
		t.Fatalf("promote next: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected nothing promoted, got %+v", entry)
	}
	active, _ := e.ledger.ListBucket(ctx, model.GamePool, testfixtures.Date, "slot-1")
	if len(active) != 0 {
		t.Fatalf("expected no reservations, got %d", len(active))
	}
}

func TestPromoteNextWithoutFreeStationKeepsWaiting(t *testing.T) {
	e := newEngine(t, queue.Options{})
	ctx := context.Background()

	e.reserve(t, "pool-1", "u-x", "slot-1")
	e.reserve(t, "pool-2", "u-y", "slot-1")
	a := e.join(t, "u-a", model.GamePool, "slot-1")

	entry, err := e.queue.PromoteNext(ctx, model.GamePool, testfixtures.Date, "slot-1")
	if err != nil || entry != nil {
		t.Fatalf("expected silent no-op, got entry=%v err=%v", entry, err)
	}
	if e.status(t, a.ID) != model.QueueWaiting {
		t.Fatalf("entry should keep waiting")
	}
}

func TestAnySlotEntryMergedByJoinOrder(t *testing.T) {
	e := newEngine(t, queue.Options{})
	ctx := context.Background()

	x := e.reserve(t, "pool-1", "u-x", "slot-2")
	e.reserve(t, "pool-2", "u-y", "slot-2")
	anySlot := e.join(t, "u-any", model.GamePool, "")
	exact := e.join(t, "u-exact", model.GamePool, "slot-2")

	if _, err := e.ledger.Cancel(ctx, x.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	promoted, err := e.queue.Get(ctx, anySlot.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if promoted.Status != model.QueuePromoted {
		t.Fatalf("expected the earlier any-slot entry to be promoted")
	}
	r, _ := e.ledger.Get(ctx, *promoted.ReservationID)
	if r.TimeSlotID != "slot-2" {
		t.Fatalf("expected seat in the freed slot, got %s", r.TimeSlotID)
	}
	if e.status(t, exact.ID) != model.QueueWaiting {
		t.Fatalf("exact entry should still wait")
	}
}

func TestPromoteNextSkipsStaleEntries(t *testing.T) {
	e := newEngine(t, queue.Options{})
	ctx := context.Background()

	x := e.reserve(t, "pool-1", "u-x", "slot-2")
	e.reserve(t, "pool-2", "u-y", "slot-2")
	e.reserve(t, "pool-1", "u-z", "slot-1")
	e.reserve(t, "pool-2", "u-w", "slot-1")
	stale := e.join(t, "u-stale", model.GamePool, "slot-1")
	fresh := e.join(t, "u-fresh", model.GamePool, "")

	// slot-1 is over; the stale entry cannot be served any more
	e.clock.Set(time.Date(2024, 6, 1, 11, 10, 0, 0, time.UTC))
	if _, err := e.ledger.Cancel(ctx, x.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if e.status(t, fresh.ID) != model.QueuePromoted {
		t.Fatalf("expected the any-slot entry to be promoted")
	}

	// the stale exact entry lives in another bucket and is left to the sweep
	n, err := e.queue.ExpireStale(ctx, e.clock.Now(), 0)
	if err != nil {
		t.Fatalf("expire stale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired entry, got %d", n)
	}
	entry, _ := e.queue.Get(ctx, stale.ID)
	if entry.Status != model.QueueCancelled || entry.CancelReason != queue.ReasonExpired {
		t.Fatalf("expected expired cancellation, got %+v", entry)
	}
	notes, _ := e.notifier.List(ctx, "u-stale", false)
	if len(notes) != 1 || notes[0].Kind != model.NotifyQueueExpired {
		t.Fatalf("expected an expiry notification, got %+v", notes)
	}
}

func TestExpireStaleTimeout(t *testing.T) {
	e := newEngine(t, queue.Options{})
	ctx := context.Background()

	e.fill(t, model.GamePool, "slot-3")
	a := e.join(t, "u-a", model.GamePool, "slot-3")
	e.clock.Advance(30 * time.Minute)
	b := e.join(t, "u-b", model.GamePool, "slot-3")

	n, err := e.queue.ExpireStale(ctx, e.clock.Advance(40*time.Minute), time.Hour)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 timeout, got %d", n)
	}
	got, _ := e.queue.Get(ctx, a.ID)
	if got.Status != model.QueueCancelled || got.CancelReason != queue.ReasonTimeout {
		t.Fatalf("expected timeout cancellation, got %+v", got)
	}
	if e.status(t, b.ID) != model.QueueWaiting {
		t.Fatalf("younger entry should keep waiting")
	}
}

func TestExplicitPromoteAndStateMachine(t *testing.T) {
	e := newManualEngine(t)
	ctx := context.Background()

	held, err := e.ledger.Reserve(ctx, reservation.ReserveParams{
		StationID: "ps5-1", GameType: model.GamePS5, Date: testfixtures.Date, TimeSlotID: "slot-1", UserID: "u-x",
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	a := e.join(t, "u-a", model.GamePS5, "slot-1")
	if _, err := e.ledger.Cancel(ctx, held.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	entry, r, err := e.queue.Promote(ctx, a.ID)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if entry.Status != model.QueuePromoted || r.StationID != "ps5-1" {
		t.Fatalf("unexpected promotion: %+v %+v", entry, r)
	}

	if _, _, err := e.queue.Promote(ctx, a.ID); !errors.Is(err, appErr.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState promoting twice, got %v", err)
	}
	if _, err := e.queue.Cancel(ctx, a.ID, ""); !errors.Is(err, appErr.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState cancelling a promoted entry, got %v", err)
	}

	b := e.join(t, "u-b", model.GamePS5, "slot-1")
	if _, _, err := e.queue.Promote(ctx, b.ID); !errors.Is(err, appErr.ErrConflict) {
		t.Fatalf("expected ErrConflict with no station free, got %v", err)
	}
	if _, err := e.queue.Cancel(ctx, b.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := e.queue.Cancel(ctx, b.ID, ""); !errors.Is(err, appErr.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState cancelling twice, got %v", err)
	}
	if _, err := e.queue.Cancel(ctx, "missing", ""); !errors.Is(err, appErr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJoinRefusedWhileStationFree(t *testing.T) {
	e := newEngine(t, queue.Options{})
	ctx := context.Background()

	_, err := e.queue.Join(ctx, queue.JoinParams{UserID: "u-a", GameType: model.GamePool, Date: testfixtures.Date, TimeSlotID: "slot-1"})
	if !errors.Is(err, appErr.ErrConflict) {
		t.Fatalf("expected ErrConflict with free tables, got %v", err)
	}

	e.reserve(t, "pool-1", "u-x", "slot-1")
	if _, err := e.queue.Join(ctx, queue.JoinParams{UserID: "u-a", GameType: model.GamePool, Date: testfixtures.Date, TimeSlotID: "slot-1"}); !errors.Is(err, appErr.ErrConflict) {
		t.Fatalf("expected ErrConflict while pool-2 is free, got %v", err)
	}

	e.reserve(t, "pool-2", "u-y", "slot-1")
	if entry := e.join(t, "u-a", model.GamePool, "slot-1"); entry.Status != model.QueueWaiting {
		t.Fatalf("expected a waiting entry once the slot is full, got %s", entry.Status)
	}

	// any-slot entries are not gated on a single slot
	if entry := e.join(t, "u-b", model.GamePool, ""); entry.Status != model.QueueWaiting {
		t.Fatalf("expected a waiting any-slot entry, got %s", entry.Status)
	}
}

func TestJoinAllowedWhenPartyFitsNoFreeStation(t *testing.T) {
	e := newEngine(t, queue.Options{})

	// snooker-1 seats two; a party of three cannot book it
	entry, err := e.queue.Join(context.Background(), queue.JoinParams{
		UserID: "u-a", GameType: model.GameSnooker, Date: testfixtures.Date, TimeSlotID: "slot-1", PlayerCount: 3,
	})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if entry.Status != model.QueueWaiting {
		t.Fatalf("expected waiting, got %s", entry.Status)
	}
}

func TestClearingMaintenancePromotesWaiting(t *testing.T) {
	e := newEngine(t, queue.Options{})
	ctx := context.Background()

	if _, err := e.registry.SetStationStatus(ctx, "pool-2", model.StationMaintenance); err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	e.reserve(t, "pool-1", "u-x", "slot-1")
	e.reserve(t, "pool-1", "u-y", "slot-2")
	exact := e.join(t, "u-a", model.GamePool, "slot-1")
	anySlot := e.join(t, "u-b", model.GamePool, "")

	if _, err := e.registry.SetStationStatus(ctx, "pool-2", model.StationAvailable); err != nil {
		t.Fatalf("clear maintenance: %v", err)
	}

	got, err := e.queue.Get(ctx, exact.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.QueuePromoted || got.ReservationID == nil {
		t.Fatalf("expected the slot-1 entry to be seated, got %+v", got)
	}
	r, _ := e.ledger.Get(ctx, *got.ReservationID)
	if r.StationID != "pool-2" || r.TimeSlotID != "slot-1" {
		t.Fatalf("expected pool-2 in slot-1, got %+v", r)
	}

	got, _ = e.queue.Get(ctx, anySlot.ID)
	if got.Status != model.QueuePromoted {
		t.Fatalf("expected the any-slot entry to be seated too, got %s", got.Status)
	}
	r, _ = e.ledger.Get(ctx, *got.ReservationID)
	if r.StationID != "pool-2" || r.TimeSlotID != "slot-2" {
		t.Fatalf("expected pool-2 in slot-2, got %+v", r)
	}
}

func TestPromoteWaitingWithoutEntries(t *testing.T) {
	e := newEngine(t, queue.Options{})

	n, err := e.queue.PromoteWaiting(context.Background(), model.GamePool)
	if err != nil || n != 0 {
		t.Fatalf("expected nothing to do, got n=%d err=%v", n, err)
	}
	if _, err := e.queue.PromoteWaiting(context.Background(), "darts"); !errors.Is(err, appErr.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestPromoteAnySlotTakesEarliestOpenSlot(t *testing.T) {
	e := newEngine(t, queue.Options{})
	ctx := context.Background()

	e.reserve(t, "pool-1", "u-x", "slot-1")
	e.reserve(t, "pool-2", "u-y", "slot-1")
	a := e.join(t, "u-a", model.GamePool, "")

	_, r, err := e.queue.Promote(ctx, a.ID)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if r.TimeSlotID != "slot-2" {
		t.Fatalf("expected slot-2, got %s", r.TimeSlotID)
	}
}

func TestEstimatedWaitTime(t *testing.T) {
	e := newEngine(t, queue.Options{})
	ctx := context.Background()

	minutes, err := e.queue.EstimatedWaitTime(ctx, model.GamePool)
	if err != nil || minutes != 0 {
		t.Fatalf("empty queue: minutes=%d err=%v", minutes, err)
	}

	e.fill(t, model.GamePool, "slot-1", "slot-2", "slot-3")
	e.join(t, "u-1", model.GamePool, "slot-1")
	e.join(t, "u-2", model.GamePool, "slot-2")
	e.join(t, "u-3", model.GamePool, "slot-3")

	minutes, _ = e.queue.EstimatedWaitTime(ctx, model.GamePool)
	if minutes != 90 {
		t.Fatalf("expected 60*3/2=90, got %d", minutes)
	}

	if _, err := e.registry.SetStationStatus(ctx, "pool-2", model.StationMaintenance); err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	minutes, _ = e.queue.EstimatedWaitTime(ctx, model.GamePool)
	if minutes != 180 {
		t.Fatalf("expected 180 with one table, got %d", minutes)
	}

	if _, err := e.registry.SetStationStatus(ctx, "ps5-1", model.StationMaintenance); err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	e.join(t, "u-4", model.GamePS5, "slot-1")
	est, err := e.queue.Estimate(ctx, model.GamePS5)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if est.Minutes != 0 || !est.Unavailable || est.QueueLength != 1 {
		t.Fatalf("expected unavailable estimate, got %+v", est)
	}
}

func TestCustomWaitPolicy(t *testing.T) {
	e := newEngine(t, queue.Options{Policy: queue.PolicyFunc(func(avg float64, queueLength, stations int) (int, bool) {
		return 7 * queueLength, false
	})})

	e.fill(t, model.GameSnooker, "slot-1")
	e.join(t, "u-1", model.GameSnooker, "slot-1")
	minutes, err := e.queue.EstimatedWaitTime(context.Background(), model.GameSnooker)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if minutes != 7 {
		t.Fatalf("expected the custom policy to apply, got %d", minutes)
	}
}

func TestStatistics(t *testing.T) {
	e := newEngine(t, queue.Options{})
	ctx := context.Background()

	empty, err := e.queue.Statistics(ctx)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if empty.TotalWaiting != 0 || empty.AverageWaitTime != 0 || len(empty.QueuesByGameType) != 0 {
		t.Fatalf("expected empty statistics, got %+v", empty)
	}

	e.fill(t, model.GameSnooker, "slot-1")
	e.fill(t, model.GamePool, "slot-1", "slot-2", "slot-3")
	e.join(t, "u-s", model.GameSnooker, "slot-1")
	e.join(t, "u-1", model.GamePool, "slot-1")
	e.join(t, "u-2", model.GamePool, "slot-2")
	e.join(t, "u-3", model.GamePool, "slot-3")

	stats, err := e.queue.Statistics(ctx)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if len(stats.QueuesByGameType) != 2 ||
		stats.QueuesByGameType[0].GameType != model.GameSnooker ||
		stats.QueuesByGameType[1].GameType != model.GamePool {
		t.Fatalf("expected first-seen order snooker, pool: %+v", stats.QueuesByGameType)
	}
	sum := 0
	for _, row := range stats.QueuesByGameType {
		sum += row.Count
	}
	if stats.TotalWaiting != 4 || sum != stats.TotalWaiting {
		t.Fatalf("total %d does not match rows %d", stats.TotalWaiting, sum)
	}
	// snooker 60*1/1 = 60, pool 60*3/2 = 90; (60*1 + 90*3) / 4 = 82.5
	if stats.AverageWaitTime != 83 {
		t.Fatalf("expected weighted average 83, got %d", stats.AverageWaitTime)
	}
}

func TestListByUser(t *testing.T) {
	e := newEngine(t, queue.Options{})
	ctx := context.Background()

	e.fill(t, model.GamePool, "slot-1")
	e.join(t, "u-x", model.GamePool, "slot-1")
	mine := e.join(t, "u-a", model.GamePool, "slot-1")
	e.join(t, "u-a", model.GameSnooker, "")

	entries, err := e.queue.ListByUser(ctx, "u-a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.ID == mine.ID && entry.Position != 2 {
			t.Fatalf("expected position 2, got %d", entry.Position)
		}
	}
}
