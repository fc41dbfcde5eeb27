package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consensus/internal/mocks"
	"consensus/pkg/agent/llm"
	"consensus/pkg/agent/middleware/metrics"
	"consensus/pkg/config"
	"consensus/pkg/credentials"
)

type rawCall struct {
	provider, apiKey, baseURL, model string
}

func factoryConfig(provider, model string) config.Config {
	cfg := config.Default()
	cfg.Agents = 2
	cfg.LLM.Provider = provider
	cfg.LLM.Model = model
	return cfg
}

func recordingConstructor(calls *[]rawCall) Option {
	return WithRawConstructor(func(provider, apiKey, baseURL, model string) (llm.LLMClient, error) {
		*calls = append(*calls, rawCall{provider, apiKey, baseURL, model})
		mock := mocks.NewMockLLMClient()
		mock.SetModelName(model)
		mock.RespondWith("Position: 7")
		return mock, nil
	})
}

func TestClientUsesKeyOfSlot(t *testing.T) {
	pool := &credentials.Pool{APIBase: "https://proxy.example/v1", Keys: []string{"k0", "k1", "k2", "k3"}}
	var calls []rawCall
	f, err := NewClientFactory(factoryConfig(config.ProviderOpenAI, "gpt-4o"), pool, nil, recordingConstructor(&calls))
	require.NoError(t, err)

	client, err := f.Client(1, 0)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", client.GetModelName())

	require.Len(t, calls, 1)
	assert.Equal(t, rawCall{config.ProviderOpenAI, "k2", "https://proxy.example/v1", "gpt-4o"}, calls[0])

	_, err = f.Client(2, 0)
	require.Error(t, err)
}

func TestConfiguredBaseURLWins(t *testing.T) {
	cfg := factoryConfig(config.ProviderOpenAI, "gpt-4o")
	cfg.LLM.BaseURL = "http://localhost:8080/v1"
	pool := &credentials.Pool{APIBase: "https://proxy.example/v1", Keys: []string{"k0", "k1"}}
	var calls []rawCall
	f, err := NewClientFactory(cfg, pool, nil, recordingConstructor(&calls))
	require.NoError(t, err)

	_, err = f.Client(0, 1)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/v1", calls[0].baseURL)
	assert.Equal(t, "k1", calls[0].apiKey)
}

func TestClientRecordsMetricsPerAgent(t *testing.T) {
	internal := metrics.NewInternalRecorder()
	var calls []rawCall
	f, err := NewClientFactory(factoryConfig(config.ProviderOllama, "llama3.1"), nil, internal, recordingConstructor(&calls))
	require.NoError(t, err)

	client, err := f.Client(0, 1)
	require.NoError(t, err)
	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("go")}))
	require.NoError(t, err)
	assert.Equal(t, "Position: 7", resp.Content)

	m := internal.GetAgentMetrics("sim-0/agent-1")
	require.NotNil(t, m)
	assert.Equal(t, int64(1), m.RequestCount)
	assert.Empty(t, calls[0].apiKey)
}

func TestNilPoolRejectedForKeyedProvider(t *testing.T) {
	_, err := NewClientFactory(factoryConfig(config.ProviderAnthropic, "claude-3-5-haiku-latest"), nil, nil)
	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestNewRawClientProviders(t *testing.T) {
	for _, provider := range []string{config.ProviderOpenAI, config.ProviderAnthropic, config.ProviderOllama, config.ProviderGoogle} {
		t.Run(provider, func(t *testing.T) {
			client, err := NewRawClient(provider, "key", "", "some-model")
			require.NoError(t, err)
			assert.Equal(t, "some-model", client.GetModelName())
		})
	}

	_, err := NewRawClient("carrier-pigeon", "", "", "m")
	require.Error(t, err)
}
