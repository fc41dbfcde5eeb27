package config

import (
	"fmt"
	"strings"
)

// ModelInfo contains metadata about a model.
type ModelInfo struct {
	Provider         string  // API provider
	InputCPM         float64 // Cost per million input tokens (USD)
	OutputCPM        float64 // Cost per million output tokens (USD)
	MaxContextTokens int     // Maximum context window size in tokens
}

// KnownModels registry contains pricing and provider information for common models.
// Unknown models are inferred via ProviderPatterns.
//
//nolint:gochecknoglobals // Intentional global for static model registry
var KnownModels = map[string]ModelInfo{
	"gpt-3.5-turbo": {
		Provider:         ProviderOpenAI,
		InputCPM:         0.5,
		OutputCPM:        1.5,
		MaxContextTokens: 16385,
	},
	"gpt-4o-mini": {
		Provider:         ProviderOpenAI,
		InputCPM:         0.15,
		OutputCPM:        0.6,
		MaxContextTokens: 128000,
	},
	"gpt-4o": {
		Provider:         ProviderOpenAI,
		InputCPM:         2.5,
		OutputCPM:        10.0,
		MaxContextTokens: 128000,
	},
	"claude-sonnet-4-5": {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
	},
	"claude-3-5-haiku-latest": {
		Provider:         ProviderAnthropic,
		InputCPM:         0.8,
		OutputCPM:        4.0,
		MaxContextTokens: 200000,
	},
	"gemini-2.5-flash": {
		Provider:         ProviderGoogle,
		InputCPM:         0.3,
		OutputCPM:        2.5,
		MaxContextTokens: 1000000,
	},
	"llama3.1": {
		Provider:         ProviderOllama,
		MaxContextTokens: 128000,
	},
}

// ProviderPattern maps a model-name prefix to a provider.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns defines rules for inferring providers from unknown model names.
//
//nolint:gochecknoglobals // Intentional global for inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	{"phi", ProviderOllama},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"gemma", ProviderOllama},
}

// GetModelProvider returns the provider for a model name.
// First checks KnownModels, then tries pattern matching.
func GetModelProvider(modelName string) (string, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}
	return "", fmt.Errorf("unknown model '%s': no known provider mapping or pattern match", modelName)
}

// GetModelInfo returns the ModelInfo for a given model name and whether it was found in KnownModels.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, exists := KnownModels[modelName]; exists {
		return info, true
	}
	provider, _ := GetModelProvider(modelName)
	return ModelInfo{
		Provider:         provider,
		MaxContextTokens: 32000,
	}, false
}

// EstimateCost returns the USD cost of a request; unknown models cost zero.
func EstimateCost(modelName string, promptTokens, completionTokens int) float64 {
	info, _ := GetModelInfo(modelName)
	return (float64(promptTokens)*info.InputCPM + float64(completionTokens)*info.OutputCPM) / 1_000_000
}

// RequiresAPIKey reports whether the provider authenticates with a key from the pool.
func RequiresAPIKey(provider string) bool {
	return provider != ProviderOllama
}
