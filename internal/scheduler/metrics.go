package scheduler

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type jobMetrics struct {
	runs        *prometheus.CounterVec
	emitted     *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	durations   *prometheus.HistogramVec
}

var (
	jobMetricsOnce sync.Once
	jobMetricsInst *jobMetrics
)

func globalJobMetrics() *jobMetrics {
	jobMetricsOnce.Do(func() {
		jobMetricsInst = newJobMetrics()
	})
	return jobMetricsInst
}

func newJobMetrics() *jobMetrics {
	return &jobMetrics{
		runs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "otrs_connector",
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job runs, labeled by job and result",
		}, []string{"job", "status"}),
		emitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "otrs_connector",
			Subsystem: "scheduler",
			Name:      "job_messages_total",
			Help:      "Messages emitted by scheduled jobs",
		}, []string{"job"}),
		lastSuccess: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "otrs_connector",
			Subsystem: "scheduler",
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run per job",
		}, []string{"job"}),
		durations: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "otrs_connector",
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled job runs",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}
}

func (m *jobMetrics) recordRun(job string, emitted int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	} else {
		m.lastSuccess.WithLabelValues(job).SetToCurrentTime()
	}
	m.runs.WithLabelValues(job, status).Inc()
	m.emitted.WithLabelValues(job).Add(float64(emitted))
	m.durations.WithLabelValues(job).Observe(elapsed.Seconds())
}
