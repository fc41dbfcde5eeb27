package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTypeString(t *testing.T) {
	assert.Equal(t, "rate_limit", ErrorTypeRateLimit.String())
	assert.Equal(t, "empty_response", ErrorTypeEmptyResponse.String())
	assert.Equal(t, "unknown", ErrorTypeUnknown.String())
	assert.Equal(t, "invalid", ErrorType(42).String())
	assert.Equal(t, "invalid", ErrorType(-1).String())
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewErrorWithCause(ErrorTypeTransient, cause, "openai request failed")

	assert.Equal(t, "provider error (transient): openai request failed", err.Error())
	assert.ErrorIs(t, err, cause)

	withStatus := &Error{Type: ErrorTypeRateLimit, StatusCode: 429, Message: "slow down"}
	assert.Equal(t, "provider error (rate_limit, status 429): slow down", withStatus.Error())

	bare := &Error{Type: ErrorTypeUnknown, StatusCode: 418}
	assert.Equal(t, "provider error (unknown, status 418): I'm a teapot", bare.Error())

	causeOnly := &Error{Type: ErrorTypeTransient, Err: cause}
	assert.Equal(t, "provider error (transient): connection reset", causeOnly.Error())
}

func TestIsAndTypeOfThroughWrapping(t *testing.T) {
	err := fmt.Errorf("agent Alice: %w", &Error{Type: ErrorTypeRateLimit, StatusCode: 429})

	assert.True(t, Is(err, ErrorTypeRateLimit))
	assert.False(t, Is(err, ErrorTypeAuth))
	assert.Equal(t, ErrorTypeRateLimit, TypeOf(err))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
	assert.Equal(t, ErrorTypeTransient, TypeOf(fmt.Errorf("call: %w", context.DeadlineExceeded)))
}

func TestTypeForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{429, ErrorTypeRateLimit},
		{401, ErrorTypeAuth},
		{403, ErrorTypeAuth},
		{400, ErrorTypeBadPrompt},
		{422, ErrorTypeBadPrompt},
		{503, ErrorTypeTransient},
		{302, ErrorTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, TypeForStatus(tt.status))
		})
	}
}
