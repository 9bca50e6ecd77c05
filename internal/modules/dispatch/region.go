package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"nuber/internal/modules/fleet"
)

// Region admits at most capacity bookings at a time. Admission beyond that blocks the
// caller until a running booking completes and frees its slot.
type Region struct {
	name     string
	capacity int
	dispatch *Dispatch
	slots    *semaphore.Weighted

	mu       sync.Mutex
	inFlight map[int64]*Booking

	shutdown atomic.Bool
}

func newRegion(d *Dispatch, name string, capacity int) (*Region, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("region %q: %w", name, ErrInvalidCapacity)
	}
	return &Region{
		name:     name,
		capacity: capacity,
		dispatch: d,
		slots:    semaphore.NewWeighted(int64(capacity)),
		inFlight: make(map[int64]*Booking, capacity),
	}, nil
}

func (r *Region) Name() string { return r.name }

func (r *Region) Capacity() int { return r.capacity }

// BookPassenger admits a booking for p and starts it, returning a handle to its
// eventual result. It returns ErrRegionShutdown without scheduling any work once the
// region is shut down, and ctx.Err() if ctx ends while waiting for a slot.
func (r *Region) BookPassenger(ctx context.Context, p *fleet.Passenger) (*Handle, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil passenger", ErrBadRequest)
	}
	if r.shutdown.Load() {
		return nil, r.reject(p)
	}
	if err := r.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("region %s: waiting for admission: %w", r.name, err)
	}
	// Shutdown may have happened while this caller was blocked.
	if r.shutdown.Load() {
		r.slots.Release(1)
		return nil, r.reject(p)
	}

	b := newBooking(r.dispatch, r.name, p)
	bctx, cancel := context.WithCancel(r.dispatch.ctx)
	h := newHandle(b.ID, r.name, cancel)

	r.mu.Lock()
	r.inFlight[b.ID] = b
	r.mu.Unlock()

	r.dispatch.running.add()
	go r.execute(bctx, b, h)
	return h, nil
}

// execute frees the slot as soon as the booking is terminal. The booking stays visible
// to Lookup until every sink has recorded it, and Dispatch.Wait covers the sinks too.
func (r *Region) execute(ctx context.Context, b *Booking, h *Handle) {
	defer r.dispatch.running.done()
	defer h.cancel()

	result, err := b.run(ctx)
	r.slots.Release(1)
	h.resolve(result, err)

	r.dispatch.publish(result)

	r.mu.Lock()
	delete(r.inFlight, b.ID)
	r.mu.Unlock()
}

func (r *Region) reject(p *fleet.Passenger) error {
	r.dispatch.logger.Info("booking rejected, region is shut down",
		zap.String("region", r.name),
		zap.String("passenger", p.Name),
	)
	return fmt.Errorf("region %s: %w", r.name, ErrRegionShutdown)
}

// Shutdown stops new admissions. In-flight bookings run to completion.
func (r *Region) Shutdown() {
	if r.shutdown.CompareAndSwap(false, true) {
		r.dispatch.logger.Info("region shut down", zap.String("region", r.name))
	}
}

func (r *Region) IsShutdown() bool {
	return r.shutdown.Load()
}

func (r *Region) lookup(id int64) (*Booking, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.inFlight[id]
	return b, ok
}

// Snapshot counts running bookings and those with no driver assigned yet. Finished
// bookings still being recorded by sinks are not counted.
func (r *Region) Snapshot() RegionSnapshot {
	r.mu.Lock()
	inFlight, awaiting := 0, 0
	for _, b := range r.inFlight {
		if b.Status().IsTerminal() {
			continue
		}
		inFlight++
		if b.Driver() == nil {
			awaiting++
		}
	}
	r.mu.Unlock()
	return RegionSnapshot{
		Name:           r.name,
		Capacity:       r.capacity,
		InFlight:       inFlight,
		AwaitingDriver: awaiting,
		Shutdown:       r.shutdown.Load(),
	}
}
