package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aggregator",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aggregator",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	OpenStreams = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "aggregator",
		Name:      "open_streams",
		Help:      "Search streams currently held open, by transport (sse or ws).",
	}, []string{"transport"})

	RateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aggregator",
		Name:      "rate_limited_requests_total",
		Help:      "Requests rejected by the per-client limiter, by budget.",
	}, []string{"budget"})

	SearchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aggregator",
		Name:      "searches_total",
		Help:      "Total searches started, by requested category.",
	}, []string{"category"})

	OutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aggregator",
		Name:      "search_outcomes_total",
		Help:      "Provider outcomes emitted by the engine, by status.",
	}, []string{"status"})

	QuotaTruncationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "aggregator",
		Name:      "quota_truncations_total",
		Help:      "Outcomes truncated because they crossed the configured result quota.",
	})

	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aggregator",
		Name:      "provider_requests_total",
		Help:      "Total requests to search providers by provider id and result status.",
	}, []string{"provider", "status"})

	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aggregator",
		Name:      "provider_request_duration_seconds",
		Help:      "Search provider request duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"provider"})

	ProviderAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "aggregator",
		Name:      "provider_available",
		Help:      "Whether a provider is available (1) or blocked by circuit breaker (0).",
	}, []string{"provider"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		OpenStreams,
		RateLimitedTotal,
		SearchesTotal,
		OutcomesTotal,
		QuotaTruncationsTotal,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		ProviderAvailable,
	)
}
