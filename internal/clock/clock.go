// Package clock provides an injectable time source so registry and
// lifecycle sweeps can be tested without sleeping real wall-clock time.
package clock

import "time"

// Clock abstracts time.Now so tests can control the passage of time.
type Clock interface {
	Now() time.Time
}

// Real returns the system clock.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
