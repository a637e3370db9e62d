package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	messagesSent   *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	sourceErrors   *prometheus.CounterVec
	pairsProcessed *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
	outcomes       *prometheus.CounterVec
}

// New registers the recorder's collectors with the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not panic.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexsignal_messages_sent_total",
				Help: "Total number of messages sent to a backend",
			},
			[]string{"backend", "topic"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexsignal_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		sourceErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexsignal_source_errors_total",
				Help: "Failed calls per market data source",
			},
			[]string{"source"},
		),
		pairsProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexsignal_pairs_processed_total",
				Help: "Pairs that completed a cycle stage",
			},
			[]string{"stage"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dexsignal_last_price_usd",
				Help: "Last recorded USD price for a pair",
			},
			[]string{"pair"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dexsignal_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"operation"},
		),
		outcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexsignal_target_outcomes_total",
				Help: "Resolved price targets by result",
			},
			[]string{"result"},
		),
	}
}

// RecordMessageSent records a message sent to a backend.
func (r *Recorder) RecordMessageSent(backend, topic string) {
	r.messagesSent.WithLabelValues(backend, topic).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordSourceError(source string) {
	r.sourceErrors.WithLabelValues(source).Inc()
}

func (r *Recorder) RecordPairProcessed(stage string) {
	r.pairsProcessed.WithLabelValues(stage).Inc()
}

// RecordLastPrice records the last price for a pair.
func (r *Recorder) RecordLastPrice(pair string, price float64) {
	r.lastPrice.WithLabelValues(pair).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordOutcome(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.outcomes.WithLabelValues(result).Inc()
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordMessageSent(string, string) {}
func (Nop) RecordError(string)               {}
func (Nop) RecordSourceError(string)         {}
func (Nop) RecordPairProcessed(string)       {}
func (Nop) RecordLastPrice(string, float64)  {}
func (Nop) RecordLatency(string, float64)    {}
func (Nop) RecordOutcome(bool)               {}
