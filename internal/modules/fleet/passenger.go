package fleet

import "time"

type Passenger struct {
	Person
}

func NewPassenger(name string, maxDelay time.Duration) *Passenger {
	return &Passenger{Person: newPerson(name, maxDelay)}
}

// TravelTime draws the simulated trip duration. It is independent of any pickup delay.
func (p *Passenger) TravelTime() time.Duration {
	return randomDuration(p.MaxDelay)
}
