// Package testfixtures provides an in-memory venue for service tests.
package testfixtures

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"arena-service/internal/model"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Date is the calendar day most fixtures book against.
const Date = "2024-06-01"

// ReferenceTime is 08:00 UTC on Date, before the first slot opens.
func ReferenceTime() time.Time {
	return time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
}

// OpenDB returns a private in-memory sqlite database with the engine schema.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// Slots is the default catalog: three one-hour slots from 10:00.
func Slots() []model.TimeSlot {
	return []model.TimeSlot{
		{ID: "slot-1", Start: "10:00", End: "11:00"},
		{ID: "slot-2", Start: "11:00", End: "12:00"},
		{ID: "slot-3", Start: "12:00", End: "13:00"},
	}
}

// Stations is the default floor: two pool tables, one snooker table, one PS5.
func Stations() []model.Station {
	return []model.Station{
		{ID: "pool-1", GameType: model.GamePool, Name: "Pool Table 1", Capacity: 4},
		{ID: "pool-2", GameType: model.GamePool, Name: "Pool Table 2", Capacity: 4},
		{ID: "snooker-1", GameType: model.GameSnooker, Name: "Snooker Table 1", Capacity: 2},
		{ID: "ps5-1", GameType: model.GamePS5, Name: "PS5 #1", Capacity: 2},
	}
}

// Clock is a controllable time source.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}
