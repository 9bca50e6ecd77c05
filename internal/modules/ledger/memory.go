package ledger

import (
	"context"
	"sync"

	"nuber/internal/modules/dispatch"
)

const defaultMemoryLimit = 10000

// Memory keeps the most recent results in process when no database is configured.
type Memory struct {
	mu    sync.Mutex
	limit int
	order []int64
	byID  map[int64]dispatch.BookingResult
}

func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = defaultMemoryLimit
	}
	return &Memory{limit: limit, byID: make(map[int64]dispatch.BookingResult)}
}

func (m *Memory) Record(_ context.Context, r dispatch.BookingResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[r.BookingID]; ok {
		return nil
	}
	m.byID[r.BookingID] = r
	m.order = append(m.order, r.BookingID)
	if len(m.order) > m.limit {
		delete(m.byID, m.order[0])
		m.order = m.order[1:]
	}
	return nil
}

func (m *Memory) Get(_ context.Context, bookingID int64) (*dispatch.BookingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[bookingID]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

// Recent returns up to limit results, newest first.
func (m *Memory) Recent(_ context.Context, limit int) ([]dispatch.BookingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.order) {
		limit = len(m.order)
	}
	out := make([]dispatch.BookingResult, 0, limit)
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.byID[m.order[i]])
	}
	return out, nil
}
