// Package google provides the Gemini client implementation for the LLM interface.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"consensus/pkg/agent/llm"
	"consensus/pkg/agent/llmerrors"
)

// GeminiClient wraps the genai client to implement llm.LLMClient.
// The underlying client is created on first use.
type GeminiClient struct {
	mu      sync.Mutex
	client  *genai.Client
	apiKey  string
	baseURL string
	model   string
}

// NewGeminiClientWithModel creates a raw client for model. baseURL may be empty.
func NewGeminiClientWithModel(apiKey, baseURL, model string) llm.LLMClient {
	return &GeminiClient{apiKey: apiKey, baseURL: baseURL, model: model}
}

func (g *GeminiClient) ensureClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "failed to create Gemini client")
	}
	g.client = client
	return client, nil
}

// Complete implements llm.LLMClient.
//
//nolint:gocritic // CompletionRequest is passed by value to match the interface
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	contents, systemInstruction, err := convertMessagesToGemini(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}
	client, err := g.ensureClient(ctx)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	temperature := in.Temperature
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(in.MaxTokens), //nolint:gosec // bounded by config validation
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}}
	}

	result, err := client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if result == nil || strings.TrimSpace(result.Text()) == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	resp := llm.CompletionResponse{
		Content:    result.Text(),
		StopReason: getStopReason(result),
	}
	if u := result.UsageMetadata; u != nil {
		resp.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
		}
	}
	return resp, nil
}

// GetModelName returns the model name for this client.
func (g *GeminiClient) GetModelName() string {
	return g.model
}

// convertMessagesToGemini splits out the system instruction and maps the
// assistant role onto Gemini's "model" role.
func convertMessagesToGemini(messages []llm.CompletionMessage) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var contents []*genai.Content
	for i := range messages {
		msg := &messages[i]
		var role string
		switch msg.Role {
		case llm.RoleSystem:
			systemParts = append(systemParts, msg.Content)
			continue
		case llm.RoleUser:
			role = "user"
		case llm.RoleAssistant:
			role = "model" // Gemini has no assistant role
		default:
			return nil, "", fmt.Errorf("unsupported message role: %s", msg.Role)
		}
		if msg.Content == "" {
			continue
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, genai.Role(role)))
	}
	if len(contents) == 0 {
		return nil, "", fmt.Errorf("must have at least one non-system message")
	}
	return contents, strings.Join(systemParts, "\n\n"), nil
}

func getStopReason(result *genai.GenerateContentResponse) string {
	if len(result.Candidates) == 0 || result.Candidates[0] == nil {
		return "unknown"
	}
	switch reason := result.Candidates[0].FinishReason; reason {
	case genai.FinishReasonStop, "":
		return "end_turn"
	case genai.FinishReasonMaxTokens:
		return "max_tokens"
	default:
		return strings.ToLower(string(reason))
	}
}

// classifyError maps Gemini API failures onto llmerrors types.
func classifyError(err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return &llmerrors.Error{
			Type:       llmerrors.TypeForStatus(apiErr.Code),
			StatusCode: apiErr.Code,
			Err:        err,
			Message:    fmt.Sprintf("Gemini API returned status %d", apiErr.Code),
		}
	}

	errStr := err.Error()
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request canceled or timed out")
	case strings.Contains(errStr, "RESOURCE_EXHAUSTED"), strings.Contains(errStr, "Error 429"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, "rate limit exceeded")
	case strings.Contains(errStr, "UNAUTHENTICATED"), strings.Contains(errStr, "PERMISSION_DENIED"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "authentication failed")
	case strings.Contains(errStr, "INVALID_ARGUMENT"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "bad request")
	case strings.Contains(errStr, "UNAVAILABLE"), strings.Contains(errStr, "INTERNAL"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "server error")
	default:
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "Gemini API call failed")
	}
}
