package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusRecorder struct {
	counters  *prometheus.CounterVec
	histogram *prometheus.HistogramVec
	gauges    *prometheus.GaugeVec
}

// NewPrometheusRecorder registers the x402 collectors on reg.
// A nil registerer gets a private registry so tests can build many recorders.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		counters: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "x402",
				Name:      "events_total",
				Help:      "x402 event counters",
			},
			[]string{"type", "network", "check", "outcome"},
		),
		histogram: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "x402",
				Name:      "latency_seconds",
				Help:      "x402 operation latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "network", "outcome"},
		),
		gauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "x402",
				Name:      "state",
				Help:      "x402 component state gauges",
			},
			[]string{"name"},
		),
	}
}

func (p *PrometheusRecorder) IncCounter(name string, labels map[string]string) {
	p.counters.With(prometheus.Labels{
		"type":    name,
		"network": labels["network"],
		"check":   labels["check"],
		"outcome": labels["outcome"],
	}).Inc()
}

func (p *PrometheusRecorder) ObserveLatency(name string, d time.Duration, labels map[string]string) {
	p.histogram.With(prometheus.Labels{
		"operation": name,
		"network":   labels["network"],
		"outcome":   labels["outcome"],
	}).Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetGauge(name string, value float64, _ map[string]string) {
	p.gauges.With(prometheus.Labels{"name": name}).Set(value)
}
