package fleet

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNoPassenger = errors.New("driver has no passenger")

type Driver struct {
	Person

	mu        sync.Mutex
	passenger *Passenger
}

func NewDriver(name string, maxDelay time.Duration) *Driver {
	return &Driver{Person: newPerson(name, maxDelay)}
}

// PickUpPassenger stores p as the current passenger and then blocks for a random
// pickup delay bounded by the driver's MaxDelay. It returns the delay it slept.
func (d *Driver) PickUpPassenger(ctx context.Context, p *Passenger) (time.Duration, error) {
	d.mu.Lock()
	d.passenger = p
	d.mu.Unlock()

	delay := d.Delay()
	if err := sleep(ctx, delay); err != nil {
		return 0, err
	}
	return delay, nil
}

// DriveToDestination blocks for the current passenger's travel time.
func (d *Driver) DriveToDestination(ctx context.Context) (time.Duration, error) {
	p := d.Passenger()
	if p == nil {
		return 0, ErrNoPassenger
	}
	travel := p.TravelTime()
	if err := sleep(ctx, travel); err != nil {
		return 0, err
	}
	return travel, nil
}

// DropOff clears the current passenger so the driver can be reused.
func (d *Driver) DropOff() {
	d.mu.Lock()
	d.passenger = nil
	d.mu.Unlock()
}

func (d *Driver) Passenger() *Passenger {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.passenger
}
