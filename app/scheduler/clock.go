package scheduler

import "time"

// Clock abstracts wall time so tests can drive the dispatch loop
// deterministically.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
