package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/reglet-dev/reglet-fetch/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchError(t *testing.T) {
	baseErr := fmt.Errorf("no such file or directory")
	err := NewFetchError(entities.ErrorKindNotFound, "file:///tiles/1.pbf", baseErr)

	assert.Equal(t, "fetch file:///tiles/1.pbf failed (NotFound): no such file or directory", err.Error())
	assert.True(t, errors.Is(err, baseErr))

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, entities.ErrorKindNotFound, fetchErr.Kind)
}

func TestFetchError_MessageWithoutURL(t *testing.T) {
	err := &FetchError{Kind: entities.ErrorKindServer, Message: "HTTP status code 503"}
	assert.Equal(t, "fetch failed (Server): HTTP status code 503", err.Error())

	detail := err.ToErrorDetail()
	assert.Equal(t, "Server", detail.Code)
	assert.False(t, detail.IsNotFound)
}

func TestToResponse(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected entities.Response
	}{
		{
			name:     "cancelled",
			err:      ErrCancelled,
			expected: entities.Cancelled(),
		},
		{
			name:     "wrapped cancelled",
			err:      fmt.Errorf("worker: %w", ErrCancelled),
			expected: entities.Cancelled(),
		},
		{
			name:     "fetch error with message",
			err:      &FetchError{Kind: entities.ErrorKindRateLimit, Message: "slow down"},
			expected: entities.Failure(entities.ErrorKindRateLimit, "slow down"),
		},
		{
			name:     "fetch error from cause",
			err:      NewFetchError(entities.ErrorKindConnection, "http://x", fmt.Errorf("refused")),
			expected: entities.Failure(entities.ErrorKindConnection, "refused"),
		},
		{
			name:     "plain error",
			err:      fmt.Errorf("boom"),
			expected: entities.Failure(entities.ErrorKindOther, "boom"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToResponse(tt.err))
		})
	}
}

func TestTimeoutError(t *testing.T) {
	err := &TimeoutError{
		Operation: "fetch",
		Duration:  5 * time.Second,
		Target:    "slow-api.example.com",
	}

	assert.Equal(t, "fetch timeout after 5s (target: slow-api.example.com)", err.Error())
	assert.True(t, err.Timeout())
	assert.True(t, err.ToErrorDetail().IsTimeout)
}

func TestConfigError(t *testing.T) {
	baseErr := fmt.Errorf("invalid format")
	err := &ConfigError{
		Field: "workers",
		Err:   baseErr,
	}

	assert.Equal(t, "config validation failed for field 'workers': invalid format", err.Error())
	assert.True(t, errors.Is(err, baseErr))

	var confErr *ConfigError
	require.True(t, errors.As(err, &confErr))
	assert.Equal(t, "workers", confErr.Field)
}

func TestConfigError_NoField(t *testing.T) {
	err := &ConfigError{Err: fmt.Errorf("missing required fields")}
	assert.Equal(t, "config validation failed: missing required fields", err.Error())
}

func TestABIError(t *testing.T) {
	err := &ABIError{Module: "guest", Version: "2.0.0", Constraint: "^1.0"}
	assert.Equal(t, "module guest: abi version 2.0.0 does not satisfy ^1.0", err.Error())
	assert.Equal(t, "abi_version", err.ToErrorDetail().Code)
}

func TestWireFormatError(t *testing.T) {
	baseErr := fmt.Errorf("invalid json")
	err := &WireFormatError{
		Operation: "unmarshal",
		Type:      "Resource",
		Err:       baseErr,
	}

	assert.Equal(t, "wire format unmarshal failed for Resource: invalid json", err.Error())
	assert.True(t, errors.Is(err, baseErr))
}

func TestToErrorDetail(t *testing.T) {
	assert.Nil(t, ToErrorDetail(nil))

	detail := ToErrorDetail(fmt.Errorf("wrapped: %w", &ConfigError{Field: "x", Err: fmt.Errorf("bad")}))
	assert.Equal(t, "config", detail.Type)

	generic := ToErrorDetail(fmt.Errorf("plain"))
	assert.Equal(t, "internal", generic.Type)
}

func TestErrorUnwrapping(t *testing.T) {
	baseErr := fmt.Errorf("base error")

	tests := []struct {
		name string
		err  error
	}{
		{"FetchError", &FetchError{Kind: entities.ErrorKindOther, Err: baseErr}},
		{"ConfigError", &ConfigError{Field: "test", Err: baseErr}},
		{"ABIError", &ABIError{Module: "m", Err: baseErr}},
		{"WireFormatError", &WireFormatError{Operation: "test", Type: "test", Err: baseErr}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, baseErr), "errors.Is should find base error")
			unwrapped := errors.Unwrap(tt.err)
			assert.Equal(t, baseErr, unwrapped, "errors.Unwrap should return base error")
		})
	}
}
