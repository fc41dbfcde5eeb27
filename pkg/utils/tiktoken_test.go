package utils

import (
	"strings"
	"testing"
)

func TestNewTokenCounter(t *testing.T) {
	for _, model := range []string{"gpt-3.5-turbo", "claude-sonnet-4-5", "unknown-model"} {
		t.Run(model, func(t *testing.T) {
			counter, err := NewTokenCounter(model)
			if err != nil {
				t.Fatalf("NewTokenCounter(%s) failed: %v", model, err)
			}
			if counter == nil {
				t.Fatalf("NewTokenCounter(%s) returned nil counter", model)
			}
		})
	}
}

func TestCountTokens(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4")
	if err != nil {
		t.Fatalf("Failed to create token counter: %v", err)
	}

	tests := []struct {
		name      string
		text      string
		minTokens int
		maxTokens int
	}{
		{"empty", "", 0, 0},
		{"single word", "Hello", 1, 2},
		{"reply", "Reasoning: the midpoint is fair. Position: 42", 8, 16},
		{"repeated", strings.Repeat("word ", 100), 90, 110},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := counter.CountTokens(tt.text)
			if tokens < tt.minTokens || tokens > tt.maxTokens {
				t.Errorf("CountTokens(%q) = %d, want between %d and %d",
					tt.text, tokens, tt.minTokens, tt.maxTokens)
			}
		})
	}
}

func TestNilCounterFallsBackToEstimate(t *testing.T) {
	var tc *TokenCounter
	if got := tc.CountTokens("12345678"); got != 2 {
		t.Errorf("expected character estimate 2, got %d", got)
	}
}

func TestCountMessages(t *testing.T) {
	a, b := "You are an agent moving in a one-dimensional space.", "Position: 10"
	if got, want := CountMessages(a, b), CountTokensSimple(a)+CountTokensSimple(b); got != want {
		t.Errorf("CountMessages = %d, want %d", got, want)
	}
}
