package metrics

import (
	"sync"
	"time"
)

// InternalRecorder implements the Recorder interface using in-memory aggregation per agent.
type InternalRecorder struct {
	agents map[string]*AgentMetrics // agentID -> aggregated metrics
	mu     sync.RWMutex
}

// AgentMetrics represents aggregated request metrics of one agent.
//
//nolint:govet
type AgentMetrics struct {
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	RequestCount     int64     `json:"request_count"`
	FailedCount      int64     `json:"failed_count"`
	TotalCost        float64   `json:"total_cost_usd"`
	AgentID          string    `json:"agent_id"`
	LastUpdated      time.Time `json:"last_updated"`
}

// NewInternalRecorder creates an empty in-memory recorder.
func NewInternalRecorder() *InternalRecorder {
	return &InternalRecorder{agents: make(map[string]*AgentMetrics)}
}

// ObserveRequest records metrics for a completed LLM request.
func (r *InternalRecorder) ObserveRequest(
	_, agentID string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	_ string,
	_ time.Duration,
) {
	if agentID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[agentID]
	if !exists {
		agent = &AgentMetrics{AgentID: agentID}
		r.agents[agentID] = agent
	}
	agent.RequestCount++
	agent.LastUpdated = time.Now()
	if !success {
		agent.FailedCount++
		return
	}
	agent.PromptTokens += int64(promptTokens)
	agent.CompletionTokens += int64(completionTokens)
	agent.TotalTokens = agent.PromptTokens + agent.CompletionTokens
	agent.TotalCost += cost
}

// GetAgentMetrics returns a copy of the metrics of agentID, or nil.
func (r *InternalRecorder) GetAgentMetrics(agentID string) *AgentMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if agent, exists := r.agents[agentID]; exists {
		cp := *agent
		return &cp
	}
	return nil
}

// Totals sums every agent into one AgentMetrics with an empty AgentID.
func (r *InternalRecorder) Totals() AgentMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total AgentMetrics
	for _, a := range r.agents {
		total.PromptTokens += a.PromptTokens
		total.CompletionTokens += a.CompletionTokens
		total.TotalTokens += a.TotalTokens
		total.RequestCount += a.RequestCount
		total.FailedCount += a.FailedCount
		total.TotalCost += a.TotalCost
		if a.LastUpdated.After(total.LastUpdated) {
			total.LastUpdated = a.LastUpdated
		}
	}
	return total
}

// Reset clears all metrics.
func (r *InternalRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = make(map[string]*AgentMetrics)
}
