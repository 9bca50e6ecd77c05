// README: Timed entities (drivers and passengers) with bounded random simulated delays.
package fleet

import (
	"context"
	"math/rand/v2"
	"time"

	"nuber/internal/types"
)

// Person is a named actor with a configured maximum simulated delay.
type Person struct {
	ID       types.ID
	Name     string
	MaxDelay time.Duration
}

func newPerson(name string, maxDelay time.Duration) Person {
	if maxDelay < 0 {
		maxDelay = 0
	}
	return Person{ID: types.NewID(), Name: name, MaxDelay: maxDelay}
}

// Delay returns a uniformly random duration in [0, MaxDelay).
func (p Person) Delay() time.Duration {
	return randomDuration(p.MaxDelay)
}

func (p Person) String() string {
	return p.Name
}

func randomDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}

// sleep blocks for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
