package agent

import (
	"fmt"

	"consensus/pkg/agent/internal/llmimpl/anthropic"
	"consensus/pkg/agent/internal/llmimpl/google"
	"consensus/pkg/agent/internal/llmimpl/ollama"
	"consensus/pkg/agent/internal/llmimpl/openaiofficial"
	"consensus/pkg/agent/llm"
	"consensus/pkg/agent/middleware/metrics"
	"consensus/pkg/agent/middleware/resilience/timeout"
	"consensus/pkg/config"
	"consensus/pkg/credentials"
	"consensus/pkg/logx"
)

// RawConstructor creates an unwrapped provider client.
type RawConstructor func(provider, apiKey, baseURL, model string) (llm.LLMClient, error)

// ClientFactory creates LLM clients with properly configured middleware chains.
type ClientFactory struct {
	cfg      config.Config
	pool     *credentials.Pool
	recorder metrics.Recorder
	raw      RawConstructor
	logger   *logx.Logger
}

// Option customizes a ClientFactory.
type Option func(*ClientFactory)

// WithRawConstructor replaces the provider SDK constructor, mainly for tests.
func WithRawConstructor(fn RawConstructor) Option {
	return func(f *ClientFactory) { f.raw = fn }
}

// NewClientFactory creates a factory handing out keys from pool. A nil pool
// is only accepted for providers that need no API key.
func NewClientFactory(cfg config.Config, pool *credentials.Pool, recorder metrics.Recorder, opts ...Option) (*ClientFactory, error) {
	if pool == nil && config.RequiresAPIKey(cfg.LLM.Provider) {
		return nil, config.Errorf("credentials", "provider %s requires api keys", cfg.LLM.Provider)
	}
	if recorder == nil {
		recorder = metrics.Nop()
	}
	f := &ClientFactory{
		cfg:      cfg,
		pool:     pool,
		recorder: recorder,
		raw:      NewRawClient,
		logger:   logx.NewLogger("llm"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Client returns the client of one agent in one instance.
// The middleware chain is Metrics -> Timeout -> RawClient.
func (f *ClientFactory) Client(instance, agent int) (llm.LLMClient, error) {
	apiKey := ""
	baseURL := f.cfg.LLM.BaseURL
	if f.pool != nil {
		key, err := f.pool.Key(instance, agent, f.cfg.Agents)
		if err != nil {
			return nil, fmt.Errorf("client for agent %d of instance %d: %w", agent, instance, err)
		}
		apiKey = key
		if baseURL == "" {
			baseURL = f.pool.APIBase
		}
	}

	raw, err := f.raw(f.cfg.LLM.Provider, apiKey, baseURL, f.cfg.LLM.Model)
	if err != nil {
		return nil, err
	}

	agentID := fmt.Sprintf("sim-%d/agent-%d", instance, agent)
	return llm.Chain(raw,
		metrics.Middleware(f.recorder, nil, agentID, f.logger),
		timeout.Middleware(f.cfg.LLM.Timeout),
	), nil
}

// NewRawClient creates the SDK-backed client of provider.
func NewRawClient(provider, apiKey, baseURL, model string) (llm.LLMClient, error) {
	switch provider {
	case config.ProviderOpenAI:
		return openaiofficial.New(apiKey, baseURL, model), nil
	case config.ProviderAnthropic:
		return anthropic.NewClaudeClient(apiKey, baseURL, model), nil
	case config.ProviderOllama:
		return ollama.NewOllamaClientWithModel(baseURL, model), nil
	case config.ProviderGoogle:
		return google.NewGeminiClientWithModel(apiKey, baseURL, model), nil
	default:
		return nil, config.Errorf("llm.provider", "unsupported provider %q", provider)
	}
}
