package metrics

import (
	"context"
	"errors"
	"time"

	"consensus/pkg/agent/llm"
	"consensus/pkg/agent/llmerrors"
	"consensus/pkg/config"
	"consensus/pkg/logx"
	"consensus/pkg/utils"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// UsageExtractor is a function that extracts token usage from a request and response.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor uses the usage reported by the provider and falls
// back to counting tokens with TikToken when there is none.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	if resp.Usage.Total() > 0 {
		return resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	contents := make([]string, len(req.Messages))
	for i := range req.Messages {
		contents[i] = req.Messages[i].Content
	}
	return utils.CountMessages(contents...), utils.CountTokensSimple(resp.Content)
}

// Middleware returns a middleware that records latency, token usage, cost
// and failures of every request made on behalf of agentID.
func Middleware(recorder Recorder, usageExtractor UsageExtractor, agentID string, logger *logx.Logger) llm.Middleware {
	if recorder == nil {
		recorder = Nop()
	}
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.GetModelName()

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				var cost float64
				errorType := ""
				if err == nil {
					promptTokens, completionTokens = usageExtractor(req, resp)
					cost = config.EstimateCost(model, promptTokens, completionTokens)
				} else {
					errorType = getErrorType(err)
				}

				recorder.ObserveRequest(model, agentID, promptTokens, completionTokens, cost, err == nil, errorType, duration)

				if logger != nil {
					status := statusSuccess
					if err != nil {
						status = statusError
					}
					logger.Debug("🎯 LLM Request: model=%s agent=%s tokens=%d+%d=%d status=%s duration=%dms",
						model, agentID, promptTokens, completionTokens, promptTokens+completionTokens, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}

// getErrorType classifies errors for metrics labeling.
func getErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return llmerrors.TypeOf(err).String()
	}
}
