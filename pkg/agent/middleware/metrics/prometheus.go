package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
// Agent IDs are left out of the labels; per-agent totals live in InternalRecorder.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	costsTotal      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the LLM request metrics on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensus_llm_requests_total",
				Help: "Total number of LLM requests by model, status, and error type",
			},
			[]string{"model", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensus_llm_tokens_total",
				Help: "Total number of tokens used in LLM requests",
			},
			[]string{"model", "type"},
		),
		costsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensus_llm_cost_usd_total",
				Help: "Estimated cost in USD of LLM requests",
			},
			[]string{"model"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "consensus_llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
	}
}

// ObserveRequest records metrics for a completed LLM request.
func (p *PrometheusRecorder) ObserveRequest(
	model, _ string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	p.requestsTotal.WithLabelValues(model, status, errorType).Inc()

	if success {
		p.tokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
		p.costsTotal.WithLabelValues(model).Add(cost)
	}
	p.requestDuration.WithLabelValues(model).Observe(duration.Seconds())
}
