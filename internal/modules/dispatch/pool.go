package dispatch

import (
	"context"
	"sync"

	"nuber/internal/modules/fleet"
)

// DefaultMaxIdleDrivers bounds the idle pool independently of the number of regions.
const DefaultMaxIdleDrivers = 999

// driverPool is the dispatch-wide set of idle drivers. A driver is either in idle or
// held by exactly one booking, never both.
type driverPool struct {
	idle      chan *fleet.Driver
	closed    chan struct{}
	closeOnce sync.Once
}

func newDriverPool(size int) *driverPool {
	if size <= 0 {
		size = DefaultMaxIdleDrivers
	}
	return &driverPool{
		idle:   make(chan *fleet.Driver, size),
		closed: make(chan struct{}),
	}
}

// put blocks while the pool is full.
func (p *driverPool) put(ctx context.Context, d *fleet.Driver) error {
	select {
	case <-p.closed:
		return ErrPoolClosed
	default:
	}
	select {
	case p.idle <- d:
		return nil
	case <-p.closed:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// take blocks until some driver is idle. Waiters are released first-ready, not in
// request order.
func (p *driverPool) take(ctx context.Context) (*fleet.Driver, error) {
	select {
	case d := <-p.idle:
		return d, nil
	default:
	}
	select {
	case d := <-p.idle:
		return d, nil
	case <-p.closed:
		select {
		case d := <-p.idle:
			return d, nil
		default:
			return nil, ErrPoolClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *driverPool) len() int {
	return len(p.idle)
}

func (p *driverPool) close() {
	p.closeOnce.Do(func() { close(p.closed) })
}
