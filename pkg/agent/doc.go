// Package agent builds the LLM clients the negotiation agents decide with.
//
// The package is organised as follows:
//   - llm: the provider-neutral client interface, request and response types
//   - llmerrors: classified provider failures
//   - middleware: metrics and timeout wrappers composed with llm.Chain
//   - internal/llmimpl: one backend per provider SDK
//
// ClientFactory hands every agent of every instance its own client, bound to
// the API key the credential pool assigns to that slot.
package agent
