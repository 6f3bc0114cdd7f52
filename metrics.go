package ddns

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects counters about reconciliation passes.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	outcomes      *prometheus.CounterVec
	errors        *prometheus.CounterVec
	lastRun       prometheus.Gauge
	lastSuccess   prometheus.Gauge
	lastDuration  prometheus.Gauge
	lastRunFailed prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ddns",
			Name:      "record_outcomes_total",
			Help:      "Records processed, by outcome and address family.",
		}, []string{"status", "family"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ddns",
			Name:      "errors_total",
			Help:      "Errors that aborted a pass, by kind, or skipped a record (kind connection_unavailable).",
		}, []string{"kind"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ddns",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last pass finished.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ddns",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time the last pass finished without aborting.",
		}),
		lastDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ddns",
			Name:      "last_run_duration_seconds",
			Help:      "Duration of the last pass.",
		}),
		lastRunFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ddns",
			Name:      "last_run_aborted",
			Help:      "1 if the last pass aborted, 0 otherwise.",
		}),
	}
	m.registry.MustRegister(m.outcomes, m.errors, m.lastRun, m.lastSuccess, m.lastDuration, m.lastRunFailed)
	return m
}

// Gatherer exposes the collected metrics, e.g. for promhttp or a push gateway.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes the metrics in the format read by the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observeOutcome(o Outcome) {
	if m == nil {
		return
	}
	family := "none"
	if o.Family != 0 {
		family = o.Family.String()
	}
	m.outcomes.WithLabelValues(o.Status.String(), family).Inc()
	switch {
	case o.Status == StatusSkipped:
		m.errors.WithLabelValues("connection_unavailable").Inc()
	case o.Err != nil:
		m.errors.WithLabelValues(ErrorKind(o.Err)).Inc()
	}
}

func (m *Metrics) observePass(d time.Duration, aborted bool) {
	if m == nil {
		return
	}
	now := float64(time.Now().Unix())
	m.lastRun.Set(now)
	m.lastDuration.Set(d.Seconds())
	if aborted {
		m.lastRunFailed.Set(1)
		return
	}
	m.lastRunFailed.Set(0)
	m.lastSuccess.Set(now)
}
