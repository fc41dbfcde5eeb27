// Package openaiofficial provides the OpenAI Chat Completions client built on the official OpenAI Go package.
package openaiofficial

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"consensus/pkg/agent/llm"
	"consensus/pkg/agent/llmerrors"
)

// Client wraps the official OpenAI client to implement llm.LLMClient.
type Client struct {
	client openai.Client
	model  string
}

// New creates a raw client for model. baseURL points at an OpenAI compatible
// endpoint and may be empty. SDK retries are off; callers retry per decision.
func New(apiKey, baseURL, model string) llm.LLMClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Complete implements llm.LLMClient.
//
//nolint:gocritic // CompletionRequest is passed by value to match the interface
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages, err := toChatMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(float64(in.Temperature)),
	}
	if in.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(in.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received no choices from OpenAI")
	}

	choice := resp.Choices[0]
	if strings.TrimSpace(choice.Message.Content) == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty content from OpenAI")
	}
	return llm.CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

// GetModelName returns the model name for this client.
func (c *Client) GetModelName() string {
	return c.model
}

// toChatMessages maps conversation turns onto chat message params.
func toChatMessages(messages []llm.CompletionMessage) ([]openai.ChatCompletionMessageParamUnion, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case llm.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case llm.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			return nil, fmt.Errorf("unsupported message role %q at index %d", msg.Role, i)
		}
	}
	return out, nil
}

// classifyError maps SDK errors onto llmerrors types.
func classifyError(err error) *llmerrors.Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &llmerrors.Error{
			Type:       llmerrors.TypeForStatus(apiErr.StatusCode),
			StatusCode: apiErr.StatusCode,
			Err:        err,
			Message:    fmt.Sprintf("OpenAI API returned status %d", apiErr.StatusCode),
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
