package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promptforge",
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs",
		},
		[]string{"outcome"}, // "success" / "failed"
	)

	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "promptforge",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	PipelineStageSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promptforge",
			Name:      "pipeline_stage_skipped_total",
			Help:      "Pipeline stages skipped due to degraded upstream input",
		},
		[]string{"stage", "reason"},
	)

	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promptforge",
			Name:      "upstream_calls_total",
			Help:      "Total upstream service calls including retries",
		},
		[]string{"service", "status"},
	)

	UpstreamCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "promptforge",
			Name:      "upstream_call_duration_seconds",
			Help:      "Upstream call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service"},
	)

	UpstreamRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promptforge",
			Name:      "upstream_retries_total",
			Help:      "Total upstream retry attempts",
		},
		[]string{"service"},
	)

	RateLimitRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promptforge",
			Name:      "ratelimit_rejections_total",
			Help:      "Total requests rejected by the rate limiter",
		},
		[]string{"bucket", "layer"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promptforge",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(PipelineRunsTotal)
	prometheus.MustRegister(PipelineStageDuration)
	prometheus.MustRegister(PipelineStageSkippedTotal)
	prometheus.MustRegister(UpstreamCallsTotal)
	prometheus.MustRegister(UpstreamCallDuration)
	prometheus.MustRegister(UpstreamRetriesTotal)
	prometheus.MustRegister(RateLimitRejectionsTotal)
	prometheus.MustRegister(EmbeddingTokensTotal)
	pipelineMetricsRegistered = true
}
