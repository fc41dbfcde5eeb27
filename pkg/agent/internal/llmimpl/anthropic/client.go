// Package anthropic provides the Anthropic Claude client implementation for the LLM interface.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"consensus/pkg/agent/llm"
	"consensus/pkg/agent/llmerrors"
)

// ClaudeClient wraps the Anthropic API client to implement llm.LLMClient.
type ClaudeClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaudeClient creates a raw client for model. baseURL may be empty.
func NewClaudeClient(apiKey, baseURL, model string) llm.LLMClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &ClaudeClient{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(model),
	}
}

// ensureAlternation prepares messages for the Messages API:
// system turns move to the system parameter, consecutive user turns are
// merged, and the sequence must start and end with a user turn.
func ensureAlternation(messages []llm.CompletionMessage) (systemPrompt string, alternating []llm.CompletionMessage, err error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var userParts []string
	flush := func() {
		if len(userParts) > 0 {
			alternating = append(alternating, llm.NewUserMessage(strings.Join(userParts, "\n\n")))
			userParts = nil
		}
	}

	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			systemParts = append(systemParts, msg.Content)
		case llm.RoleAssistant:
			flush()
			if len(alternating) > 0 && alternating[len(alternating)-1].Role == llm.RoleAssistant {
				return "", nil, fmt.Errorf("alternation violation at index %d: consecutive assistant messages", i)
			}
			alternating = append(alternating, *msg)
		default:
			userParts = append(userParts, msg.Content)
		}
	}
	flush()

	if len(alternating) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}
	if alternating[0].Role != llm.RoleUser {
		return "", nil, fmt.Errorf("first message must be user role, got: %s", alternating[0].Role)
	}
	if last := alternating[len(alternating)-1]; last.Role != llm.RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got: %s", last.Role)
	}
	return strings.Join(systemParts, "\n\n"), alternating, nil
}

// Complete implements llm.LLMClient.
//
//nolint:gocritic // CompletionRequest is passed by value to match the interface
func (c *ClaudeClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	systemPrompt, alternating, err := ensureAlternation(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message alternation error: %v", err))
	}

	messages := make([]anthropic.MessageParam, 0, len(alternating))
	for i := range alternating {
		msg := &alternating[i]
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == llm.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty or nil response from Claude API")
	}

	var text strings.Builder
	for i := range resp.Content {
		if block := &resp.Content[i]; block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "Claude response has no text content")
	}

	return llm.CompletionResponse{
		Content:    text.String(),
		StopReason: string(resp.StopReason),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// GetModelName returns the model name for this client.
func (c *ClaudeClient) GetModelName() string {
	return string(c.model)
}

// classifyError maps Anthropic SDK errors to llmerrors types.
func classifyError(err error) *llmerrors.Error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		t := llmerrors.TypeForStatus(apiErr.StatusCode)
		if apiErr.StatusCode == 529 { // overloaded
			t = llmerrors.ErrorTypeRateLimit
		}
		return &llmerrors.Error{
			Type:       t,
			StatusCode: apiErr.StatusCode,
			Err:        err,
			Message:    fmt.Sprintf("Claude API returned status %d", apiErr.StatusCode),
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request canceled")
	}
	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "network or connection error")
}
