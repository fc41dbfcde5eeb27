package mocks

import (
	"context"
	"sync"

	"consensus/pkg/agent/llm"
)

// MockLLMClient implements llm.LLMClient for testing.
//
//nolint:govet // fieldalignment: mock struct layout optimized for readability
type MockLLMClient struct {
	// CompleteFunc is called when Complete is invoked. Override to customize behavior.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)

	// CompleteCalls tracks all calls to Complete for verification.
	CompleteCalls []llm.CompletionRequest

	// modelName is the model name returned by GetModelName.
	modelName string

	// mu protects call tracking and scripted state
	mu sync.Mutex
}

// Step is one scripted outcome: an error, or a reply with its usage.
type Step struct {
	Content string
	Usage   llm.Usage
	Err     error
}

// NewMockLLMClient creates a new mock LLM client with default behavior.
// Default behavior: Complete returns a fixed reply.
func NewMockLLMClient() *MockLLMClient {
	m := &MockLLMClient{
		modelName: "mock-model",
	}

	m.CompleteFunc = func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{
			Content:    "Mock response",
			StopReason: "stop",
		}, nil
	}

	return m
}

// Complete implements llm.LLMClient.
func (m *MockLLMClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	// Requests share no backing array with the caller's memory.
	msgs := make([]llm.CompletionMessage, len(req.Messages))
	copy(msgs, req.Messages)
	req.Messages = msgs
	m.CompleteCalls = append(m.CompleteCalls, req)
	fn := m.CompleteFunc
	m.mu.Unlock()
	return fn(ctx, req)
}

// GetModelName implements llm.LLMClient.
func (m *MockLLMClient) GetModelName() string {
	return m.modelName
}

// --- Configuration methods ---

// SetModelName sets the model name returned by GetModelName.
func (m *MockLLMClient) SetModelName(name string) {
	m.modelName = name
}

// OnComplete sets a custom handler for Complete calls.
func (m *MockLLMClient) OnComplete(fn func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteFunc = fn
}

// Calls returns a copy of the recorded requests.
func (m *MockLLMClient) Calls() []llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.CompletionRequest, len(m.CompleteCalls))
	copy(out, m.CompleteCalls)
	return out
}

// CallCount returns how many times Complete was invoked.
func (m *MockLLMClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CompleteCalls)
}

// --- Error simulation helpers ---

// FailCompleteWith configures Complete to return the specified error.
func (m *MockLLMClient) FailCompleteWith(err error) {
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{}, err
	})
}

// --- Response helpers ---

// RespondWith configures Complete to return the specified content.
func (m *MockLLMClient) RespondWith(content string) {
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{
			Content:    content,
			StopReason: "stop",
		}, nil
	})
}

// RespondWithSequence configures Complete to return different responses for each call.
// Cycles through the responses in order, returning the last one for any additional calls.
func (m *MockLLMClient) RespondWithSequence(responses []llm.CompletionResponse) {
	callIndex := 0
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if callIndex < len(responses) {
			resp := responses[callIndex]
			callIndex++
			return resp, nil
		}
		// Return last response for any additional calls
		return responses[len(responses)-1], nil
	})
}

// Script configures Complete to play the steps in order, one per call.
// Calls past the end of the script repeat the last step.
func (m *MockLLMClient) Script(steps ...Step) {
	callIndex := 0
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		m.mu.Lock()
		step := steps[len(steps)-1]
		if callIndex < len(steps) {
			step = steps[callIndex]
			callIndex++
		}
		m.mu.Unlock()
		if step.Err != nil {
			return llm.CompletionResponse{}, step.Err
		}
		return llm.CompletionResponse{Content: step.Content, StopReason: "stop", Usage: step.Usage}, nil
	})
}
