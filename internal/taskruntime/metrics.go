package taskruntime

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	taskResultsTotal *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
	claimErrorsTotal prometheus.Counter
	initMetricsOnce  sync.Once
)

// InitMetrics registers the runtime's Prometheus collectors with the
// default registry, grounded on the teacher's InitMetrics/promauto.With
// pattern (internal/security/metrics.go); safe to call multiple times.
func InitMetrics() {
	initMetricsOnce.Do(func() {
		f := promauto.With(prometheus.DefaultRegisterer)

		taskResultsTotal = f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_memory_taskruntime_results_total",
				Help: "Total background task executions by task name and outcome.",
			},
			[]string{"task_name", "outcome"},
		)

		taskDuration = f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_memory_taskruntime_duration_seconds",
				Help:    "Background task execution duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task_name"},
		)

		claimErrorsTotal = f.NewCounter(prometheus.CounterOpts{
			Name: "agent_memory_taskruntime_claim_errors_total",
			Help: "Total errors claiming ready tasks from the task store.",
		})
	})
}

func recordTaskResult(taskName, outcome string) {
	if taskResultsTotal == nil {
		return
	}
	taskResultsTotal.WithLabelValues(taskName, outcome).Inc()
}

func recordTaskDuration(taskName string, seconds float64) {
	if taskDuration == nil {
		return
	}
	taskDuration.WithLabelValues(taskName).Observe(seconds)
}

func recordClaimError() {
	if claimErrorsTotal == nil {
		return
	}
	claimErrorsTotal.Inc()
}
