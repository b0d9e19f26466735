package governance

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateCounterWindows(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)
	r := NewRateCounter(time.Minute, func() time.Time { return now })

	r.Increment()
	r.Increment()
	assert.Equal(t, 2, r.Count())

	now = now.Add(49 * time.Second) // 12:00:59
	assert.Equal(t, 2, r.Count())

	now = now.Add(time.Second) // 12:01:00
	assert.Equal(t, 0, r.Count())
	r.Increment()
	assert.Equal(t, 1, r.Count())
}

func TestRateCounterConcurrent(t *testing.T) {
	r := NewRateCounter(time.Hour, nil)
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Increment()
		}()
	}
	wg.Wait()
	assert.Equal(t, 64, r.Count())
}
