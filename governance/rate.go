package governance

import (
	"sync"
	"time"
)

// RateCounter counts confirmed settlements in fixed windows aligned to the
// window length.
type RateCounter struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	start  time.Time
	count  int
}

func NewRateCounter(window time.Duration, now func() time.Time) *RateCounter {
	if window <= 0 {
		window = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &RateCounter{window: window, now: now}
}

// Count returns the number of increments in the current window.
func (r *RateCounter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roll()
	return r.count
}

func (r *RateCounter) Increment() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roll()
	r.count++
}

func (r *RateCounter) roll() {
	start := r.now().Truncate(r.window)
	if !start.Equal(r.start) {
		r.start = start
		r.count = 0
	}
}
