package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	decisionsTotal     *prometheus.CounterVec
	attemptsTotal      *prometheus.CounterVec
	parseFailuresTotal *prometheus.CounterVec
	roundDuration      *prometheus.HistogramVec
	roundsTotal        *prometheus.CounterVec
	instancesTotal     *prometheus.CounterVec
}

// NewPrometheusRecorder registers the simulation metrics on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		decisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensus_decisions_total",
				Help: "Decision tasks by variant and outcome",
			},
			[]string{"variant", "outcome"},
		),
		attemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensus_decision_attempts_total",
				Help: "Provider attempts spent on decision tasks",
			},
			[]string{"variant"},
		),
		parseFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensus_parse_failures_total",
				Help: "Replies that did not contain a usable position",
			},
			[]string{"variant"},
		),
		roundDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "consensus_round_duration_seconds",
				Help:    "Wall time of one negotiation round",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"variant"},
		),
		roundsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensus_rounds_total",
				Help: "Completed negotiation rounds across all instances",
			},
			[]string{"variant"},
		),
		instancesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensus_instances_total",
				Help: "Finished simulation instances by status",
			},
			[]string{"variant", "status"},
		),
	}
}

// ObserveDecision records one finished decision task.
func (p *PrometheusRecorder) ObserveDecision(variant, outcome string, attempts int) {
	p.decisionsTotal.WithLabelValues(variant, outcome).Inc()
	p.attemptsTotal.WithLabelValues(variant).Add(float64(attempts))
}

// IncParseFailure counts an unparseable reply.
func (p *PrometheusRecorder) IncParseFailure(variant string) {
	p.parseFailuresTotal.WithLabelValues(variant).Inc()
}

// ObserveRound records the duration of a completed round.
func (p *PrometheusRecorder) ObserveRound(variant string, duration time.Duration) {
	p.roundsTotal.WithLabelValues(variant).Inc()
	p.roundDuration.WithLabelValues(variant).Observe(duration.Seconds())
}

// ObserveInstance records the end of an instance.
func (p *PrometheusRecorder) ObserveInstance(variant, status string) {
	p.instancesTotal.WithLabelValues(variant, status).Inc()
}
