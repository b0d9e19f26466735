// Package sanctions screens payment counterparties against a hot-reloadable
// blocklist.
package sanctions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vitwit/x402gov/logger"
	"github.com/vitwit/x402gov/metrics"
)

type Status string

const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusError Status = "error"
	StatusSkip  Status = "skip"
)

type Result struct {
	Status         Status
	MatchedAddress string
	MatchedList    string
	Detail         string
}

// Blocked reports whether the screened payment must not proceed.
func (r Result) Blocked() bool {
	return r.Status == StatusFail || r.Status == StatusError
}

var ErrNoSource = errors.New("sanctions: fail-closed screener requires a list source")

type snapshot struct {
	addrs   map[string]struct{}
	name    string
	updated time.Time
}

// Screener is safe for concurrent use. List swaps are atomic: a Screen call
// sees either the old or the new list, never a mix.
type Screener struct {
	list       atomic.Pointer[snapshot]
	failClosed bool
	log        logger.Logger
	metrics    metrics.Recorder
	now        func() time.Time

	mu      sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
}

type Option func(*Screener)

// WithFailClosed sets whether an unloaded list blocks screening. Default true.
func WithFailClosed(v bool) Option {
	return func(s *Screener) { s.failClosed = v }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Screener) { s.log = logger.OrNoop(l) }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(s *Screener) { s.metrics = metrics.OrNoop(m) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Screener) { s.now = now }
}

// New builds a screener and eagerly loads source when it is non-nil.
// In fail-closed mode a missing source or failed load is an error.
func New(ctx context.Context, source Source, opts ...Option) (*Screener, error) {
	s := &Screener{
		failClosed: true,
		log:        logger.NoopLogger{},
		metrics:    metrics.NoopRecorder{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if source == nil {
		if s.failClosed {
			return nil, ErrNoSource
		}
		s.log.Warn("sanctions screening disabled: no list source configured", nil)
		return s, nil
	}

	if err := s.UpdateList(ctx, source); err != nil {
		if s.failClosed {
			return nil, fmt.Errorf("sanctions: initial load: %w", err)
		}
		s.log.Warn("sanctions list failed to load, screening will be skipped", map[string]any{
			"source": source.Name(),
			"error":  err,
		})
	}
	return s, nil
}

// UpdateList loads source and swaps it in. On failure the current list is kept.
func (s *Screener) UpdateList(ctx context.Context, source Source) error {
	addrs, err := source.Load(ctx)
	if err != nil {
		return err
	}
	snap := &snapshot{addrs: toSet(addrs), name: source.Name(), updated: s.now()}
	s.list.Store(snap)

	s.metrics.SetGauge(metrics.SanctionsListSize, float64(len(snap.addrs)), nil)
	s.log.Info("sanctions list loaded", map[string]any{"source": snap.name, "size": len(snap.addrs)})
	return nil
}

// Screen checks addrs against the list and reports the first match.
func (s *Screener) Screen(addrs []string) Result {
	if len(addrs) == 0 {
		return Result{Status: StatusPass}
	}

	snap := s.list.Load()
	if snap == nil {
		if s.failClosed {
			return Result{Status: StatusError, Detail: "sanctions list is not loaded"}
		}
		return Result{Status: StatusSkip, Detail: "sanctions list is not loaded"}
	}

	for _, a := range addrs {
		if a == "" {
			continue
		}
		if _, hit := snap.addrs[a]; hit {
			return Result{
				Status:         StatusFail,
				MatchedAddress: a,
				MatchedList:    snap.name,
				Detail:         fmt.Sprintf("address %s is on sanctions list %s", a, snap.name),
			}
		}
	}
	return Result{Status: StatusPass}
}

// LastUpdated returns when the current list was loaded, or the zero time.
func (s *Screener) LastUpdated() time.Time {
	if snap := s.list.Load(); snap != nil {
		return snap.updated
	}
	return time.Time{}
}

// ListSize returns the number of addresses in the current list.
func (s *Screener) ListSize() int {
	if snap := s.list.Load(); snap != nil {
		return len(snap.addrs)
	}
	return 0
}

// Loaded reports whether a list has been loaded.
func (s *Screener) Loaded() bool { return s.list.Load() != nil }

// FailClosed reports the configured failure mode.
func (s *Screener) FailClosed() bool { return s.failClosed }

// Destroy stops watchers and unloads the list. Screening afterwards follows
// the unloaded-list policy, so a fail-closed screener keeps blocking.
func (s *Screener) Destroy() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()
	s.list.Store(nil)
}
