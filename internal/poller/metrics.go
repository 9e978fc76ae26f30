package poller

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type pollMetrics struct {
	runs      *prometheus.CounterVec
	searches  *prometheus.CounterVec
	emitted   *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

var (
	pollMetricsOnce sync.Once
	pollMetricsInst *pollMetrics
)

func globalPollMetrics() *pollMetrics {
	pollMetricsOnce.Do(func() {
		pollMetricsInst = newPollMetrics()
	})
	return pollMetricsInst
}

func newPollMetrics() *pollMetrics {
	return &pollMetrics{
		runs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "otrs_connector",
			Subsystem: "poller",
			Name:      "runs_total",
			Help:      "Ticket poll runs, labeled by ticket field and result",
		}, []string{"field", "status"}),
		searches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "otrs_connector",
			Subsystem: "poller",
			Name:      "searches_total",
			Help:      "Ticket searches issued, labeled by phase",
		}, []string{"field", "phase"}),
		emitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "otrs_connector",
			Subsystem: "poller",
			Name:      "tickets_emitted_total",
			Help:      "Tickets emitted to the platform",
		}, []string{"field"}),
		durations: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "otrs_connector",
			Subsystem: "poller",
			Name:      "run_duration_seconds",
			Help:      "Duration of ticket poll runs",
			Buckets:   prometheus.DefBuckets,
		}, []string{"field"}),
	}
}

func (m *pollMetrics) recordRun(field Field) func(err error) {
	if m == nil {
		return func(error) {}
	}
	timer := prometheus.NewTimer(m.durations.WithLabelValues(string(field)))
	return func(err error) {
		timer.ObserveDuration()
		status := "success"
		if err != nil {
			status = "failure"
		}
		m.runs.WithLabelValues(string(field), status).Inc()
	}
}

func (m *pollMetrics) recordSearch(field Field, phase string) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(string(field), phase).Inc()
}

func (m *pollMetrics) recordEmit(field Field) {
	if m == nil {
		return
	}
	m.emitted.WithLabelValues(string(field)).Inc()
}
