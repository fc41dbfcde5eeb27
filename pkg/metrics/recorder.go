// Package metrics records simulation progress: decisions, retry attempts,
// parse failures, rounds and instances.
package metrics

import "time"

// Decision outcomes.
const (
	OutcomeDecided   = "decided"
	OutcomeExhausted = "exhausted"
	OutcomeCanceled  = "canceled"
)

// Instance outcomes.
const (
	InstanceOK     = "ok"
	InstanceFailed = "failed"
)

// Recorder receives simulation events from agents and the engine.
type Recorder interface {
	// ObserveDecision records one finished decision task and how many attempts it used.
	ObserveDecision(variant, outcome string, attempts int)

	// IncParseFailure counts a reply that carried no usable position.
	IncParseFailure(variant string)

	// ObserveRound records the wall time of one completed round.
	ObserveRound(variant string, duration time.Duration)

	// ObserveInstance records the end of one simulation instance.
	ObserveInstance(variant, status string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveDecision does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveDecision(_, _ string, _ int) {}

// IncParseFailure does nothing in the no-op recorder.
func (n *NoopRecorder) IncParseFailure(_ string) {}

// ObserveRound does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRound(_ string, _ time.Duration) {}

// ObserveInstance does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveInstance(_, _ string) {}
