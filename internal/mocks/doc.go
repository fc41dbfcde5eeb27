// Package mocks provides shared mock implementations for testing.
//
// # Usage
//
//	import "consensus/internal/mocks"
//
//	func TestSomething(t *testing.T) {
//	    client := mocks.NewMockLLMClient()
//	    client.RespondWithSequence([]llm.CompletionResponse{
//	        {Content: "Reasoning: ... Position: 42"},
//	    })
//	    // Use client in test...
//	}
//
// # Available Mocks
//
//   - MockLLMClient: Mock for the pkg/agent/llm.LLMClient interface
package mocks
