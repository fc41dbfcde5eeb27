package openaiofficial

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consensus/pkg/agent/llm"
	"consensus/pkg/agent/llmerrors"
)

func TestToChatMessages(t *testing.T) {
	msgs, err := toChatMessages([]llm.CompletionMessage{
		llm.NewSystemMessage("You are an agent."),
		llm.NewUserMessage("Where to?"),
		llm.NewAssistantMessage("Position: 4"),
		llm.NewUserMessage("And now?"),
	})
	require.NoError(t, err)
	assert.Len(t, msgs, 4)

	_, err = toChatMessages(nil)
	require.Error(t, err)

	_, err = toChatMessages([]llm.CompletionMessage{{Role: "tool", Content: "x"}})
	require.Error(t, err)
}

func TestCompleteAgainstServer(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-3.5-turbo",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "Reasoning: meet. Position: 42"}}],
			"usage": {"prompt_tokens": 30, "completion_tokens": 6, "total_tokens": 36}
		}`))
	}))
	defer srv.Close()

	client := New("sk-test", srv.URL, "gpt-3.5-turbo")
	assert.Equal(t, "gpt-3.5-turbo", client.GetModelName())

	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage("You are an agent."),
		llm.NewUserMessage("Where to?"),
	})
	resp, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Reasoning: meet. Position: 42", resp.Content)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, 36, resp.Usage.Total())

	assert.Equal(t, "gpt-3.5-turbo", got["model"])
	assert.Len(t, got["messages"], 2)
}

func TestCompleteClassifiesStatus(t *testing.T) {
	tests := []struct {
		status int
		want   llmerrors.ErrorType
	}{
		{http.StatusUnauthorized, llmerrors.ErrorTypeAuth},
		{http.StatusTooManyRequests, llmerrors.ErrorTypeRateLimit},
		{http.StatusBadGateway, llmerrors.ErrorTypeTransient},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error": {"message": "nope", "type": "error"}}`))
			}))
			defer srv.Close()

			_, err := New("sk-test", srv.URL, "gpt-4o").Complete(context.Background(),
				llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")}))
			require.Error(t, err)
			assert.Equal(t, tt.want, llmerrors.TypeOf(err))
		})
	}
}

func TestCompleteEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "x", "object": "chat.completion", "created": 1, "model": "m",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "  "}}]}`))
	}))
	defer srv.Close()

	_, err := New("k", srv.URL, "m").Complete(context.Background(),
		llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse))
}
