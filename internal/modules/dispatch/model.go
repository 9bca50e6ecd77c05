// README: Booking status flow, results, region snapshots and the result sink contract.
package dispatch

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusCreated        Status = "created"
	StatusAwaitingDriver Status = "awaiting_driver"
	StatusPickingUp      Status = "picking_up"
	StatusTraveling      Status = "traveling"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
)

// AllowedTransitions represents the booking state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusCreated:        {StatusAwaitingDriver, StatusFailed},
	StatusAwaitingDriver: {StatusPickingUp, StatusFailed},
	StatusPickingUp:      {StatusTraveling, StatusFailed},
	StatusTraveling:      {StatusCompleted, StatusFailed},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible from s.
func (s Status) IsTerminal() bool {
	return len(AllowedTransitions[s]) == 0
}

var (
	ErrRegionShutdown     = errors.New("region is shut down")
	ErrUnknownRegion      = errors.New("unknown region")
	ErrInvalidCapacity    = errors.New("region capacity must be positive")
	ErrBookingInterrupted = errors.New("booking interrupted")
	ErrPoolClosed         = errors.New("driver pool closed")
	ErrPending            = errors.New("booking still in flight")
	ErrBadRequest         = errors.New("bad request")
	ErrInvalidState       = errors.New("invalid state transition")
)

// BookingResult is the terminal record of a booking. Status is StatusCompleted or
// StatusFailed; a failed booking carries the cause in Error and an empty DriverName when
// it never got a driver.
type BookingResult struct {
	BookingID     int64         `json:"booking_id"`
	Region        string        `json:"region"`
	Status        Status        `json:"status"`
	PassengerName string        `json:"passenger_name"`
	DriverName    string        `json:"driver_name"`
	PickupDelay   time.Duration `json:"pickup_delay_ns"`
	TravelTime    time.Duration `json:"travel_time_ns"`
	Error         string        `json:"error,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	CompletedAt   time.Time     `json:"completed_at"`
}

type RegionSnapshot struct {
	Name           string `json:"name"`
	Capacity       int    `json:"capacity"`
	InFlight       int    `json:"in_flight"`
	AwaitingDriver int    `json:"awaiting_driver"`
	Shutdown       bool   `json:"shutdown"`
}

// ResultSink receives every finished booking, completed or failed. Errors are logged by
// the dispatch and never fail the booking.
type ResultSink interface {
	Record(ctx context.Context, r BookingResult) error
}
