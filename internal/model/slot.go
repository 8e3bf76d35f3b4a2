package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseClock turns "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("clock %q: bad hour", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q: bad minute", s)
	}
	return h*60 + m, nil
}

// Minutes is the slot length. Invalid slots report 0.
func (s TimeSlot) Minutes() int {
	start, err := ParseClock(s.Start)
	if err != nil {
		return 0
	}
	end, err := ParseClock(s.End)
	if err != nil || end <= start {
		return 0
	}
	return end - start
}

// Window returns the absolute start and end of the slot on date.
func (s TimeSlot) Window(date string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	day, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("date %q: %w", date, err)
	}
	start, err := ParseClock(s.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := ParseClock(s.End)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return atClock(day, start, loc), atClock(day, end, loc), nil
}

// atClock builds the wall-clock time on day, so DST shifts move the instant
// rather than the local hour.
func atClock(day time.Time, minutes int, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, loc)
}

func ValidDate(date string) bool {
	_, err := time.Parse(DateLayout, date)
	return err == nil
}

// DayEnd is midnight after date in loc.
func DayEnd(date string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	day, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, err
	}
	return day.AddDate(0, 0, 1), nil
}
