// Package breaker trips the settlement path closed under failure bursts.
package breaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vitwit/x402gov/logger"
	"github.com/vitwit/x402gov/metrics"
)

// State names as recorded in the audit trail.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

var ErrOpen = errors.New("circuit breaker is open: settlement temporarily disabled")

type Config struct {
	Name string `mapstructure:"name"`
	// MaxRequests is the number of consecutive successful trial requests in
	// half-open state that close the breaker.
	MaxRequests uint32 `mapstructure:"max_requests"`
	// Interval clears closed-state counts periodically. Zero never clears.
	Interval time.Duration `mapstructure:"interval"`
	// Timeout is the cool-down spent open before probing.
	Timeout time.Duration `mapstructure:"timeout"`
	// ConsecutiveFailures trips the breaker when reached. Zero disables.
	ConsecutiveFailures uint32 `mapstructure:"consecutive_failures"`
	// FailureRatio trips once MinRequests outcomes have been seen in the
	// current interval and the failure share reaches it. Zero disables.
	FailureRatio float64 `mapstructure:"failure_ratio"`
	MinRequests  uint32  `mapstructure:"min_requests"`
	// TripOnDenials counts governance denials as failures.
	TripOnDenials bool `mapstructure:"trip_on_denials"`
}

func DefaultConfig() Config {
	return Config{
		Name:                "settlement",
		MaxRequests:         3,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

type Breaker struct {
	cb            *gobreaker.TwoStepCircuitBreaker
	tripOnDenials bool
	log           logger.Logger
	metrics       metrics.Recorder
}

func New(cfg Config, log logger.Logger, rec metrics.Recorder) *Breaker {
	b := &Breaker{
		tripOnDenials: cfg.TripOnDenials,
		log:           logger.OrNoop(log),
		metrics:       metrics.OrNoop(rec),
	}
	if cfg.Name == "" {
		cfg.Name = "settlement"
	}

	b.cb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if cfg.ConsecutiveFailures > 0 && c.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			if cfg.FailureRatio > 0 && c.Requests >= cfg.MinRequests && c.Requests > 0 {
				return float64(c.TotalFailures)/float64(c.Requests) >= cfg.FailureRatio
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.log.Warn("circuit breaker state changed", map[string]any{
				"breaker": name,
				"from":    stateName(from),
				"to":      stateName(to),
			})
			b.metrics.SetGauge(metrics.BreakerState, gaugeValue(to), nil)
		},
	})
	b.metrics.SetGauge(metrics.BreakerState, 0, nil)
	return b
}

// State returns closed, open or half_open.
func (b *Breaker) State() string {
	return stateName(b.cb.State())
}

// Allow returns ErrOpen while the breaker is open.
func (b *Breaker) Allow() error {
	if b.cb.State() == gobreaker.StateOpen {
		return ErrOpen
	}
	return nil
}

// TripsOnDenials reports whether governance denials count as failures.
func (b *Breaker) TripsOnDenials() bool { return b.tripOnDenials }

func (b *Breaker) RecordSuccess() { b.record(true) }

func (b *Breaker) RecordFailure() { b.record(false) }

// RecordDenial counts a governance denial when configured to.
func (b *Breaker) RecordDenial() {
	if b.tripOnDenials {
		b.record(false)
	}
}

func (b *Breaker) record(success bool) {
	done, err := b.cb.Allow()
	if err != nil {
		// Open, or half-open with its trial quota in flight: outcome is not counted.
		return
	}
	done(success)
}

func stateName(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

func gaugeValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
