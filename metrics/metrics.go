package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}

// Counter and gauge names emitted by the governance pipeline.
const (
	GovernanceDecision = "governance_decision"
	VerifyLatency      = "verify"
	SettleLatency      = "settle"
	BreakerState       = "breaker_state"
	FeePayerBalance    = "fee_payer_balance_lamports"
	SanctionsListSize  = "sanctions_list_size"
)

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
