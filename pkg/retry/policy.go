// Package retry provides bounded, iterative retry with exponential backoff for decision tasks.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Config defines configuration for retry behavior.
type Config struct {
	MaxAttempts   int           // Maximum number of attempts (including initial)
	InitialDelay  time.Duration // Delay before the second attempt
	MaxDelay      time.Duration // Maximum delay between attempts
	BackoffFactor float64       // Multiplier for exponential backoff
	Jitter        bool          // Spread delays by up to ±10%
}

// DefaultConfig matches the three-attempt budget agents negotiate with.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	MaxAttempts:   3,
	InitialDelay:  100 * time.Millisecond,
	MaxDelay:      5 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// ShouldRetry retries every failure except caller cancellation.
// Provider failures and unparseable replies are treated alike.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// ExhaustedError is returned once every attempt has failed.
type ExhaustedError struct {
	Err      error
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Policy encapsulates retry configuration and logic.
type Policy struct {
	Config     Config
	Classifier Classifier
}

// NewPolicy creates a new retry policy with the given configuration and classifier.
func NewPolicy(config Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = ShouldRetry
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Policy{
		Config:     config,
		Classifier: classifier,
	}
}

// CalculateDelay computes the delay before the given attempt number (1-based).
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 || p.Config.InitialDelay <= 0 {
		return 0
	}

	factor := p.Config.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := time.Duration(float64(p.Config.InitialDelay) * math.Pow(factor, float64(attempt-2)))

	if p.Config.MaxDelay > 0 && delay > p.Config.MaxDelay {
		delay = p.Config.MaxDelay
	}

	if p.Config.Jitter && delay > 0 {
		spread := (rand.Float64()*2 - 1) * 0.1 //nolint:gosec // jitter does not need crypto randomness
		delay += time.Duration(float64(delay) * spread)
	}

	return delay
}

// ShouldRetry determines if an error should be retried based on the configured classifier.
func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}

// Do calls fn until it succeeds, the classifier rejects its error, the attempt
// budget runs out, or ctx is done. It returns the number of attempts made.
// A run that used the whole budget returns an *ExhaustedError.
func (p *Policy) Do(ctx context.Context, fn func(attempt int) error) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= p.Config.MaxAttempts; attempt++ {
		if attempt > 1 {
			if delay := p.CalculateDelay(attempt); delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return attempt - 1, fmt.Errorf("retry cancelled: %w", ctx.Err())
				case <-timer.C:
				}
			}
		}

		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if !p.ShouldRetry(err) {
			return attempt, err
		}
	}

	return p.Config.MaxAttempts, &ExhaustedError{Err: lastErr, Attempts: p.Config.MaxAttempts}
}
