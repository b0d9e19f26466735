package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusRecorder(reg)

	labels := map[string]string{"network": "solana-devnet", "check": "replay", "outcome": "deny"}
	r.IncCounter(GovernanceDecision, labels)
	r.IncCounter(GovernanceDecision, labels)
	r.ObserveLatency(SettleLatency, 25*time.Millisecond, labels)
	r.SetGauge(BreakerState, 2, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.counters.WithLabelValues(GovernanceDecision, "solana-devnet", "replay", "deny")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.gauges.WithLabelValues(BreakerState)))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 3)
}

func TestNilRegistererIsPrivate(t *testing.T) {
	// Two recorders on private registries must not collide.
	assert.NotPanics(t, func() {
		NewPrometheusRecorder(nil)
		NewPrometheusRecorder(nil)
	})
}
