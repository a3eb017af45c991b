package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts requests by route, method and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration observes request latency by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// UpstreamAttemptsTotal counts individual upstream call attempts by
	// model, response-format mode and outcome.
	UpstreamAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_attempts_total",
			Help: "Total number of upstream chat attempts by model, format and outcome",
		},
		[]string{"model", "format", "outcome"},
	)
	// UpstreamAttemptDuration observes upstream attempt latency.
	UpstreamAttemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_attempt_duration_seconds",
			Help:    "Upstream chat attempt duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"model", "format"},
	)
	// UpstreamPromptTokens estimates tokens in forwarded prompts.
	UpstreamPromptTokens = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "upstream_prompt_tokens",
			Help:    "Estimated token count of forwarded prompt payloads",
			Buckets: []float64{64, 128, 256, 512, 1024, 2048, 4096},
		},
	)

	// QuotaDecisionsTotal counts quota gate outcomes (allowed, exhausted, error).
	QuotaDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_decisions_total",
			Help: "Total number of quota gate decisions",
		},
		[]string{"endpoint", "decision"},
	)
	// FallbackResponsesTotal counts locally synthesized responses by kind.
	FallbackResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_responses_total",
			Help: "Total number of locally synthesized fallback responses",
		},
		[]string{"endpoint", "flag"},
	)
)

// InitMetrics registers all collectors with the default registry.
// Call once per process.
func InitMetrics() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		UpstreamAttemptsTotal,
		UpstreamAttemptDuration,
		UpstreamPromptTokens,
		QuotaDecisionsTotal,
		FallbackResponsesTotal,
	)
}

// HTTPMetricsMiddleware records request counts and durations using the chi
// route pattern as the route label.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
