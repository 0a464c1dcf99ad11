// Package errors provides domain-specific error types for the fetch bridge.
// All error types support error unwrapping via errors.As() and errors.Is().
//
// Request failures never travel as Go errors across the bridge: they are
// converted to an entities.Response with ToResponse before delivery.
package errors

import (
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/reglet-dev/reglet-fetch/domain/entities"
)

// ErrCancelled marks a request that was cancelled before it completed.
// It is not a failure; callers see it as a cancelled status.
var ErrCancelled = stdErrors.New("request cancelled")

// ErrorDetail is an alias to entities.ErrorDetail for convenience.
type ErrorDetail = entities.ErrorDetail

// DetailedError is an interface for custom error types that can convert themselves
// to a structured ErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts a Go error to our structured ErrorDetail.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    "internal",
	}
}

// FetchError represents a failed file or network fetch.
type FetchError struct {
	Err     error
	Kind    entities.ErrorKind
	Message string
	URL     string
}

func (e *FetchError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.URL != "" {
		return fmt.Sprintf("fetch %s failed (%s): %s", e.URL, e.Kind, msg)
	}
	return fmt.Sprintf("fetch failed (%s): %s", e.Kind, msg)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *FetchError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message:    e.Error(),
		Type:       "network",
		Code:       string(e.Kind),
		IsNotFound: e.Kind == entities.ErrorKindNotFound,
	}
}

// NewFetchError creates a FetchError of the given kind.
func NewFetchError(kind entities.ErrorKind, url string, err error) *FetchError {
	return &FetchError{Kind: kind, URL: url, Err: err}
}

// ToResponse converts an error into the response delivered through the bridge.
// A nil error is not a valid input; callers build success responses themselves.
func ToResponse(err error) entities.Response {
	if stdErrors.Is(err, ErrCancelled) {
		return entities.Cancelled()
	}
	var fe *FetchError
	if stdErrors.As(err, &fe) {
		msg := fe.Message
		if msg == "" && fe.Err != nil {
			msg = fe.Err.Error()
		}
		return entities.Failure(fe.Kind, msg)
	}
	if err == nil {
		return entities.Failure(entities.ErrorKindOther, "unknown error")
	}
	return entities.Failure(entities.ErrorKindOther, err.Error())
}

// TimeoutError represents a timeout during an operation.
type TimeoutError struct {
	Operation string
	Target    string
	Duration  time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s timeout after %v (target: %s)", e.Operation, e.Duration, e.Target)
	}
	return fmt.Sprintf("%s timeout after %v", e.Operation, e.Duration)
}

func (e *TimeoutError) Timeout() bool {
	return true
}

// ToErrorDetail implements DetailedError.
func (e *TimeoutError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "timeout", Code: e.Operation, IsTimeout: true}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "config", Code: e.Field}
}

// ABIError reports a guest module built against an incompatible host ABI.
type ABIError struct {
	Err        error
	Module     string
	Version    string
	Constraint string
}

func (e *ABIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("module %s: abi version %q: %v", e.Module, e.Version, e.Err)
	}
	return fmt.Sprintf("module %s: abi version %s does not satisfy %s", e.Module, e.Version, e.Constraint)
}

func (e *ABIError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ABIError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "validation", Code: "abi_version"}
}

// WireFormatError represents a wire format encoding/decoding error.
type WireFormatError struct {
	Err       error
	Operation string
	Type      string
}

func (e *WireFormatError) Error() string {
	return fmt.Sprintf("wire format %s failed for %s: %v", e.Operation, e.Type, e.Err)
}

func (e *WireFormatError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *WireFormatError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "internal", Code: "wire_format"}
}
