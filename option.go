package x402gov

import (
	"time"

	"github.com/vitwit/x402gov/ledger"
	"github.com/vitwit/x402gov/logger"
	"github.com/vitwit/x402gov/metrics"
)

type Option func(*X402)

func WithLogger(l logger.Logger) Option {
	return func(x *X402) {
		x.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(x *X402) {
		x.metrics = r
	}
}

// WithTimeout bounds each verify and settle call routed to a client.
func WithTimeout(t time.Duration) Option {
	return func(x *X402) {
		x.timeout = t
	}
}

// WithRetry retries verification errors up to n times, waiting delay
// between attempts. Zero disables retries.
func WithRetry(n uint, delay time.Duration) Option {
	return func(x *X402) {
		x.retries = n
		if delay > 0 {
			x.retryDelay = delay
		}
	}
}

func ledgerCommitment(s string) ledger.Commitment {
	switch ledger.Commitment(s) {
	case ledger.CommitmentProcessed, ledger.CommitmentConfirmed, ledger.CommitmentFinalized:
		return ledger.Commitment(s)
	default:
		return ledger.CommitmentConfirmed
	}
}
