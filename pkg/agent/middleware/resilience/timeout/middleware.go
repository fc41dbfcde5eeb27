// Package timeout provides timeout middleware for LLM clients.
package timeout

import (
	"context"
	"time"

	"consensus/pkg/agent/llm"
)

// Middleware bounds every request with its own deadline. A non-positive
// duration leaves requests unbounded.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		if duration <= 0 {
			return next
		}
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()
				return next.Complete(timeoutCtx, req)
			},
			next.GetModelName,
		)
	}
}
