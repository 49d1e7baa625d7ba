package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	compactionTotal    *prometheus.CounterVec
	compactionDuration *prometheus.HistogramVec
	summaryChars       prometheus.Histogram

	completionTotal    *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec
	loopTurns          prometheus.Histogram

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			compactionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "recap_compactions_total",
					Help: "Total compaction runs by terminal status.",
				},
				[]string{"status"},
			),
			compactionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "recap_compaction_duration_seconds",
					Help:    "Compaction run duration in seconds by terminal status.",
					Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
				},
				[]string{"status"},
			),
			summaryChars: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "recap_summary_chars",
					Help:    "Length of produced summaries in characters.",
					Buckets: prometheus.ExponentialBuckets(100, 2, 10),
				},
			),
			completionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "recap_completion_requests_total",
					Help: "Total completion requests by provider and status.",
				},
				[]string{"provider", "status"},
			),
			completionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "recap_completion_duration_seconds",
					Help:    "Completion request duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			loopTurns: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "recap_agent_loop_turns",
					Help:    "Completion requests issued per agent loop run.",
					Buckets: prometheus.LinearBuckets(1, 2, 10),
				},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "recap_tool_executions_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "recap_tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
		}

		prometheus.MustRegister(
			m.compactionTotal,
			m.compactionDuration,
			m.summaryChars,
			m.completionTotal,
			m.completionDuration,
			m.loopTurns,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordCompaction(status string, duration time.Duration) {
	m := getMetrics()
	m.compactionTotal.WithLabelValues(status).Inc()
	m.compactionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func RecordSummaryLength(chars int) {
	getMetrics().summaryChars.Observe(float64(chars))
}

func RecordCompletion(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	m.completionTotal.WithLabelValues(provider, statusLabel(success)).Inc()
	m.completionDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordLoopTurns(turns int) {
	getMetrics().loopTurns.Observe(float64(turns))
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
