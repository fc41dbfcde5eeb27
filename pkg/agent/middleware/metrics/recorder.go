// Package metrics provides metrics recording for LLM client operations.
package metrics

import (
	"time"
)

// Recorder defines the interface for recording LLM request metrics.
type Recorder interface {
	// ObserveRequest records metrics for one completed LLM request.
	ObserveRequest(
		model, agentID string,
		promptTokens, completionTokens int,
		cost float64,
		success bool,
		errorType string,
		duration time.Duration,
	)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(
	_, _ string,
	_, _ int,
	_ float64,
	_ bool,
	_ string,
	_ time.Duration,
) {
}

// multiRecorder fans every observation out to several recorders.
type multiRecorder []Recorder

// Tee returns a recorder that forwards to every non-nil recorder given.
func Tee(recorders ...Recorder) Recorder {
	var out multiRecorder
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multiRecorder) ObserveRequest(
	model, agentID string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	errorType string,
	duration time.Duration,
) {
	for _, r := range m {
		r.ObserveRequest(model, agentID, promptTokens, completionTokens, cost, success, errorType, duration)
	}
}
