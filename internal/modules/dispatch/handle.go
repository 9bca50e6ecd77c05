package dispatch

import "context"

// Handle is returned as soon as a booking is admitted and resolves once the booking
// completes or fails.
type Handle struct {
	id     int64
	region string
	done   chan struct{}
	cancel context.CancelFunc

	result BookingResult
	err    error
}

func newHandle(id int64, region string, cancel context.CancelFunc) *Handle {
	return &Handle{id: id, region: region, done: make(chan struct{}), cancel: cancel}
}

func (h *Handle) ID() int64 { return h.id }

func (h *Handle) Region() string { return h.region }

func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the booking resolves or ctx is done. A ctx error here does not
// affect the booking itself. A failed booking returns its StatusFailed record with the error.
func (h *Handle) Wait(ctx context.Context) (BookingResult, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return BookingResult{}, ctx.Err()
	}
}

// Result returns ErrPending while the booking is still in flight.
func (h *Handle) Result() (BookingResult, error) {
	select {
	case <-h.done:
		return h.result, h.err
	default:
		return BookingResult{}, ErrPending
	}
}

// Cancel interrupts the booking. A booking that already holds a driver still returns
// it to the pool before the handle fails.
func (h *Handle) Cancel() {
	h.cancel()
}

func (h *Handle) resolve(r BookingResult, err error) {
	h.result = r
	h.err = err
	close(h.done)
}
