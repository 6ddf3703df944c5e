// Package metrics exposes Prometheus collectors for extractions and relays.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics records pipeline outcomes. It satisfies extract.Observer and proxy.Observer.
type Metrics struct {
	extractions *prometheus.CounterVec
	latency     prometheus.Histogram
	relays      *prometheus.CounterVec
	relayBytes  prometheus.Counter
}

// New creates the collectors and registers them, plus Go and process
// collectors, on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "offgrid",
			Name:      "extractions_total",
			Help:      "Extraction requests by outcome (ok or error kind).",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "offgrid",
			Name:      "extraction_duration_seconds",
			Help:      "Time from submission to canonical result.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		relays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "offgrid",
			Name:      "proxy_requests_total",
			Help:      "Media relay requests by outcome.",
		}, []string{"outcome"}),
		relayBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "offgrid",
			Name:      "proxy_bytes_total",
			Help:      "Bytes streamed to clients by the media relay.",
		}),
	}

	for _, c := range []prometheus.Collector{m.extractions, m.latency, m.relays, m.relayBytes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	// Runtime collectors may already be present when several components share a registry.
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, err
			}
		}
	}

	return m, nil
}

// ObserveExtraction records one finished extraction.
func (m *Metrics) ObserveExtraction(outcome string, elapsed time.Duration) {
	m.extractions.WithLabelValues(outcome).Inc()
	m.latency.Observe(elapsed.Seconds())
}

// ObserveProxy records one finished relay.
func (m *Metrics) ObserveProxy(outcome string, bytes int64) {
	m.relays.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		m.relayBytes.Add(float64(bytes))
	}
}
