package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"nuber/internal/modules/fleet"
)

// Booking is one passenger's trip. It is mutated once, when a driver is assigned.
type Booking struct {
	ID        int64
	Region    string
	Passenger *fleet.Passenger
	CreatedAt time.Time

	dispatch *Dispatch
	driver   atomic.Pointer[fleet.Driver]

	mu     sync.Mutex
	status Status
}

func newBooking(d *Dispatch, region string, p *fleet.Passenger) *Booking {
	return &Booking{
		ID:        d.nextBookingID(),
		Region:    region,
		Passenger: p,
		CreatedAt: time.Now(),
		dispatch:  d,
		status:    StatusCreated,
	}
}

// Driver returns nil while the booking is still waiting for one.
func (b *Booking) Driver() *fleet.Driver {
	return b.driver.Load()
}

func (b *Booking) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Booking) String() string {
	driver := "null"
	if d := b.Driver(); d != nil {
		driver = d.Name
	}
	return fmt.Sprintf("%d:%s:%s", b.ID, driver, b.Passenger.Name)
}

func (b *Booking) transition(to Status) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !CanTransition(b.status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, b.status, to)
	}
	b.status = to
	return nil
}

// run executes the booking: wait for a driver, pick up, travel, hand the driver back.
// The status leaves PickingUp/Traveling before the driver is returned, so a booking in
// either of those states always holds its driver exclusively.
func (b *Booking) run(ctx context.Context) (BookingResult, error) {
	if err := b.transition(StatusAwaitingDriver); err != nil {
		return b.fail(ctx, nil, err)
	}
	b.dispatch.LogEvent(b, "Starting booking, getting driver")

	driver, err := b.dispatch.GetDriver(ctx)
	if err != nil {
		return b.fail(ctx, nil, err)
	}
	b.driver.Store(driver)
	if err := b.transition(StatusPickingUp); err != nil {
		return b.fail(ctx, driver, err)
	}
	b.dispatch.LogEvent(b, "Starting, on way to passenger")

	pickup, err := driver.PickUpPassenger(ctx, b.Passenger)
	if err != nil {
		return b.fail(ctx, driver, err)
	}
	if err := b.transition(StatusTraveling); err != nil {
		return b.fail(ctx, driver, err)
	}
	b.dispatch.LogEvent(b, "Collected passenger, on way to destination")

	travel, err := driver.DriveToDestination(ctx)
	if err != nil {
		return b.fail(ctx, driver, err)
	}

	result := b.result(StatusCompleted, driver)
	result.PickupDelay = pickup
	result.TravelTime = travel
	if err := b.transition(StatusCompleted); err != nil {
		return b.fail(ctx, driver, err)
	}
	b.releaseDriver(ctx, driver)
	b.dispatch.LogEvent(b, "At destination, driver is now free")
	return result, nil
}

func (b *Booking) result(status Status, driver *fleet.Driver) BookingResult {
	r := BookingResult{
		BookingID:     b.ID,
		Region:        b.Region,
		Status:        status,
		PassengerName: b.Passenger.Name,
		CreatedAt:     b.CreatedAt,
		CompletedAt:   time.Now(),
	}
	if driver != nil {
		r.DriverName = driver.Name
	}
	return r
}

// releaseDriver hands the driver back even when ctx has already been cancelled.
func (b *Booking) releaseDriver(ctx context.Context, driver *fleet.Driver) {
	driver.DropOff()
	if err := b.dispatch.AddDriver(context.WithoutCancel(ctx), driver); err != nil {
		b.dispatch.logger.Warn("driver not returned to pool",
			zap.Int64("booking_id", b.ID),
			zap.String("driver", driver.Name),
			zap.Error(err),
		)
	}
}

// fail marks the booking failed and returns a held driver to the pool before the
// error reaches the handle. The returned result records the failure for sinks.
func (b *Booking) fail(ctx context.Context, driver *fleet.Driver, cause error) (BookingResult, error) {
	b.mu.Lock()
	b.status = StatusFailed
	b.mu.Unlock()
	if driver != nil {
		b.releaseDriver(ctx, driver)
	}
	b.dispatch.LogEvent(b, "Booking interrupted: "+cause.Error())

	err := cause
	if !errors.Is(cause, ErrInvalidState) {
		err = fmt.Errorf("%w: booking %d: %w", ErrBookingInterrupted, b.ID, cause)
	}
	result := b.result(StatusFailed, driver)
	result.Error = err.Error()
	return result, err
}
