// Package utils provides tiktoken-based token counting utilities.
package utils

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides token counting for chat models.
type TokenCounter struct {
	codec tokenizer.Codec
}

//nolint:gochecknoglobals // shared codec, loading it is not free
var (
	defaultCounter     *TokenCounter
	defaultCounterOnce sync.Once
)

// NewTokenCounter creates a new token counter for the specified model.
// Every provider is approximated with the GPT-4 (cl100k) encoding.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		// 4 chars ≈ 1 token
		return len(text) / 4
	}

	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// CountTokensSimple counts tokens with a process-wide GPT-4 counter.
func CountTokensSimple(text string) int {
	defaultCounterOnce.Do(func() {
		// A nil counter falls back to character estimation.
		defaultCounter, _ = NewTokenCounter("gpt-4")
	})
	return defaultCounter.CountTokens(text)
}

// CountMessages sums the tokens of several message bodies.
func CountMessages(contents ...string) int {
	total := 0
	for _, c := range contents {
		total += CountTokensSimple(c)
	}
	return total
}
