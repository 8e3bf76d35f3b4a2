package availability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"arena-service/internal/model"
	"arena-service/internal/service/availability"
	"arena-service/internal/service/registry"
	"arena-service/internal/testfixtures"
	appErr "arena-service/pkg/errors"

	"gorm.io/gorm"
)

func newService(t *testing.T) (*gorm.DB, *registry.Service, *availability.Service) {
	t.Helper()

	db := testfixtures.OpenDB(t)
	clock := testfixtures.NewClock(time.Time{})
	reg := registry.NewService(db, registry.Options{Location: time.UTC, Now: clock.Now})
	if err := reg.Seed(context.Background(), testfixtures.Stations(), testfixtures.Slots()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db, reg, availability.NewService(db, reg)
}

func book(t *testing.T, db *gorm.DB, id, stationID string, gameType model.GameType, slotID string) {
	t.Helper()
	key := model.ActiveKeyFor(stationID, testfixtures.Date, slotID)
	if err := db.Create(&model.Reservation{
		ID:         id,
		StationID:  stationID,
		GameType:   gameType,
		Date:       testfixtures.Date,
		TimeSlotID: slotID,
		UserID:     "u-" + id,
		Status:     model.ReservationActive,
		ActiveKey:  &key,
	}).Error; err != nil {
		t.Fatalf("seed reservation %s: %v", id, err)
	}
}

func TestAllStationsFree(t *testing.T) {
	_, _, svc := newService(t)

	snap, err := svc.Check(context.Background(), model.GamePool, testfixtures.Date, "slot-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if snap.ShouldQueue {
		t.Fatalf("expected no queue with free stations")
	}
	if len(snap.Stations) != 2 || snap.Stations[0].ID != "pool-1" || snap.Stations[1].ID != "pool-2" {
		t.Fatalf("unexpected stations: %+v", snap.Stations)
	}
}

func TestFullyBookedBucketShouldQueue(t *testing.T) {
	db, _, svc := newService(t)
	ctx := context.Background()

	book(t, db, "r-1", "pool-1", model.GamePool, "slot-1")
	book(t, db, "r-2", "pool-2", model.GamePool, "slot-1")

	free, err := svc.AvailableStations(ctx, model.GamePool, testfixtures.Date, "slot-1")
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if len(free) != 0 {
		t.Fatalf("expected no free stations, got %+v", free)
	}
	queue, err := svc.ShouldQueue(ctx, model.GamePool, testfixtures.Date, "slot-1")
	if err != nil {
		t.Fatalf("should queue: %v", err)
	}
	if !queue {
		t.Fatalf("expected shouldQueue=true")
	}

	// other slots of the same day are unaffected
	free, err = svc.AvailableStations(ctx, model.GamePool, testfixtures.Date, "slot-2")
	if err != nil {
		t.Fatalf("available slot-2: %v", err)
	}
	if len(free) != 2 {
		t.Fatalf("expected 2 free stations in slot-2, got %d", len(free))
	}
}

func TestCancelledReservationFreesStation(t *testing.T) {
	db, _, svc := newService(t)

	book(t, db, "r-1", "pool-1", model.GamePool, "slot-1")
	if err := db.Model(&model.Reservation{}).Where("id = ?", "r-1").
		Updates(map[string]interface{}{"status": model.ReservationCancelled, "active_key": nil}).Error; err != nil {
		t.Fatalf("cancel: %v", err)
	}

	free, err := svc.AvailableStations(context.Background(), model.GamePool, testfixtures.Date, "slot-1")
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if len(free) != 2 {
		t.Fatalf("expected 2 free stations, got %d", len(free))
	}
}

func TestMaintenanceExcluded(t *testing.T) {
	_, reg, svc := newService(t)
	ctx := context.Background()

	if _, err := reg.SetStationStatus(ctx, "ps5-1", model.StationMaintenance); err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	snap, err := svc.Check(ctx, model.GamePS5, testfixtures.Date, "slot-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(snap.Stations) != 0 || !snap.ShouldQueue {
		t.Fatalf("expected maintenance station to be excluded: %+v", snap)
	}
}

func TestNoSubstitutionAcrossGameTypes(t *testing.T) {
	db, _, svc := newService(t)

	book(t, db, "r-1", "snooker-1", model.GameSnooker, "slot-1")

	snap, err := svc.Check(context.Background(), model.GameSnooker, testfixtures.Date, "slot-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !snap.ShouldQueue {
		t.Fatalf("free pool tables must not satisfy a snooker request")
	}
}

func TestCheckValidation(t *testing.T) {
	_, _, svc := newService(t)
	ctx := context.Background()

	if _, err := svc.Check(ctx, "darts", testfixtures.Date, "slot-1"); !errors.Is(err, appErr.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for game type, got %v", err)
	}
	if _, err := svc.Check(ctx, model.GamePool, "06/01/2024", "slot-1"); !errors.Is(err, appErr.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for date, got %v", err)
	}
	if _, err := svc.Check(ctx, model.GamePool, testfixtures.Date, "slot-9"); !errors.Is(err, appErr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for slot, got %v", err)
	}
}
