package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vitwit/x402gov/logger"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ConsecutiveFailures = 3
	cfg.MaxRequests = 1
	cfg.Timeout = 50 * time.Millisecond
	return cfg
}

func TestTripsOnConsecutiveFailures(t *testing.T) {
	b := New(testConfig(), nil, nil)
	assert.Equal(t, StateClosed, b.State())

	b.RecordFailure()
	b.RecordFailure()
	assert.NoError(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrOpen)
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	b := New(testConfig(), nil, nil)
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())
}

func TestCoolDownToHalfOpenThenClosed(t *testing.T) {
	b := New(testConfig(), nil, nil)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	require.Equal(t, StateOpen, b.State())

	require.Eventually(t, func() bool { return b.State() == StateHalfOpen }, time.Second, 10*time.Millisecond)
	assert.NoError(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New(testConfig(), nil, nil)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	require.Eventually(t, func() bool { return b.State() == StateHalfOpen }, time.Second, 10*time.Millisecond)

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}

func TestDenialsIgnoredUnlessConfigured(t *testing.T) {
	b := New(testConfig(), nil, nil)
	for i := 0; i < 10; i++ {
		b.RecordDenial()
	}
	assert.Equal(t, StateClosed, b.State())

	cfg := testConfig()
	cfg.TripOnDenials = true
	b = New(cfg, nil, nil)
	assert.True(t, b.TripsOnDenials())
	for i := 0; i < 3; i++ {
		b.RecordDenial()
	}
	assert.Equal(t, StateOpen, b.State())
}

func TestFailureRatio(t *testing.T) {
	cfg := testConfig()
	cfg.ConsecutiveFailures = 0
	cfg.FailureRatio = 0.5
	cfg.MinRequests = 4
	b := New(cfg, nil, nil)

	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}

func TestStateChangeIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	b := New(testConfig(), logger.NewZapLoggerFrom(zap.New(core)), nil)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}

	entries := logs.FilterMessage("circuit breaker state changed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "open", entries[0].ContextMap()["to"])
}
