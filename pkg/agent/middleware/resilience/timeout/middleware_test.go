package timeout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consensus/internal/mocks"
	"consensus/pkg/agent/llm"
)

func TestMiddlewareCancelsSlowRequest(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	mock.OnComplete(func(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		select {
		case <-ctx.Done():
			return llm.CompletionResponse{}, ctx.Err()
		case <-time.After(time.Second):
			return llm.CompletionResponse{Content: "late"}, nil
		}
	})

	client := llm.Chain(mock, Middleware(20*time.Millisecond))
	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "mock-model", client.GetModelName())
}

func TestMiddlewarePassesFastRequest(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	mock.RespondWith("Position: 1")

	resp, err := llm.Chain(mock, Middleware(time.Second)).Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Position: 1", resp.Content)
}

func TestZeroDurationIsPassThrough(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	assert.Same(t, mock, Middleware(0)(mock))
}
