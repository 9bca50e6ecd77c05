package dispatch

import "sync"

// tracker counts running booking goroutines. add may run while idle is being waited on.
type tracker struct {
	mu     sync.Mutex
	n      int
	idleCh chan struct{}
}

func newTracker() *tracker {
	ch := make(chan struct{})
	close(ch)
	return &tracker{idleCh: ch}
}

func (t *tracker) add() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.n == 0 {
		t.idleCh = make(chan struct{})
	}
	t.n++
}

func (t *tracker) done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.n--
	if t.n == 0 {
		close(t.idleCh)
	}
}

// idle is closed once the count drops to zero.
func (t *tracker) idle() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.idleCh
}
