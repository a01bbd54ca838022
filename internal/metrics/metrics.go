package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigateway_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aigateway_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	GenerateRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigateway_generate_requests_total",
			Help: "Total generate calls by feature and outcome (hit, live, budget_exceeded, rate_limited, provider_error).",
		},
		[]string{"feature", "outcome"},
	)

	CacheEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigateway_cache_events_total",
			Help: "Response cache events by result (hit, miss, error).",
		},
		[]string{"result"},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aigateway_provider_request_duration_seconds",
			Help:    "Upstream LLM provider call duration in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"model", "status"},
	)

	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigateway_provider_tokens_total",
			Help: "Tokens consumed upstream by model and kind (prompt, completion).",
		},
		[]string{"model", "kind"},
	)

	UsageCostTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigateway_usage_cost_dollars_total",
			Help: "Recorded provider spend in dollars by tier.",
		},
		[]string{"tier"},
	)

	CostEstimateRatio = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aigateway_cost_estimate_actual_ratio",
			Help:    "Pre-call estimated cost divided by provider-reported actual cost.",
			Buckets: []float64{0.25, 0.5, 0.75, 1, 1.5, 2, 4},
		},
	)

	RateLimitRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigateway_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter, by endpoint class.",
		},
		[]string{"endpoint"},
	)

	JobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigateway_jobs_processed_total",
			Help: "Batch jobs processed by type and terminal status.",
		},
		[]string{"type", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		GenerateRequestsTotal,
		CacheEventsTotal,
		ProviderRequestDuration,
		ProviderTokensTotal,
		UsageCostTotal,
		CostEstimateRatio,
		RateLimitRejectionsTotal,
		JobsProcessedTotal,
	)
}
