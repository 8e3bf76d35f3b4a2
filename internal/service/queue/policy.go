package queue

import (
	"math"

	"arena-service/internal/model"
)

type WaitEstimate struct {
	GameType    model.GameType `json:"gameType"`
	Minutes     int            `json:"minutes"`
	QueueLength int            `json:"queueLength"`
	Stations    int            `json:"stations"`
	Unavailable bool           `json:"unavailable"` // no usable station of this type
}

// WaitPolicy turns queue depth into a wait estimate. Swap it to change the
// formula without touching the queue.
type WaitPolicy interface {
	Estimate(avgSlotMinutes float64, queueLength, stations int) (minutes int, unavailable bool)
}

// ProportionalPolicy spreads the waiting guests over the working stations:
// round(avgSlotMinutes * queueLength / stations).
type ProportionalPolicy struct{}

func (ProportionalPolicy) Estimate(avgSlotMinutes float64, queueLength, stations int) (int, bool) {
	if stations <= 0 {
		return 0, true
	}
	if queueLength <= 0 {
		return 0, false
	}
	return int(math.Round(avgSlotMinutes * float64(queueLength) / float64(stations))), false
}

// PolicyFunc adapts a plain function to WaitPolicy.
type PolicyFunc func(avgSlotMinutes float64, queueLength, stations int) (int, bool)

func (f PolicyFunc) Estimate(avgSlotMinutes float64, queueLength, stations int) (int, bool) {
	return f(avgSlotMinutes, queueLength, stations)
}
