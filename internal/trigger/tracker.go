package trigger

import (
	"fmt"
	"sync"

	"github.com/nerrad567/trackside-core/internal/layout"
)

// Tick is a minute boundary of the layout clock.
type Tick struct {
	Hour   int
	Minute int
}

func (t Tick) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Tracker holds the clock state and suppresses repeated reports of the same minute.
type Tracker struct {
	mu      sync.Mutex
	state   layout.Clock
	last    Tick
	hasLast bool
}

// NewTracker creates a tracker that has not yet seen a clock report.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe records a clock report. It returns ok=true with the new Tick only
// when (hour, minute) differs from the last emitted tick; the first valid
// report always ticks. Out-of-range values return ErrInvalidClock and leave
// the state unchanged.
func (t *Tracker) Observe(hour, minute int, running bool) (Tick, bool, error) {
	if hour < 0 || hour > maxHour || minute < 0 || minute > maxMinute {
		return Tick{}, false, fmt.Errorf("%w: %02d:%02d", ErrInvalidClock, hour, minute)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = layout.Clock{Hour: hour, Minute: minute, Running: running}
	tick := Tick{Hour: hour, Minute: minute}
	if t.hasLast && tick == t.last {
		return tick, false, nil
	}
	t.last = tick
	t.hasLast = true
	return tick, true, nil
}

// State returns the last observed clock.
func (t *Tracker) State() layout.Clock {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Reset forgets the last tick so the next report fires again.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.hasLast = false
	t.mu.Unlock()
}
