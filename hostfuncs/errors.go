package hostfuncs

import (
	"encoding/json"
)

// ErrorResponse is a structured error returned to guests as JSON in place
// of a handler result. Guests never see a trap for a failed host call.
type ErrorResponse struct {
	// Error is a machine-readable identifier, e.g. "VALIDATION_ERROR".
	Error string `json:"error"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Code mirrors the closest HTTP status.
	Code int `json:"code"`
}

// ToJSON serializes the ErrorResponse to JSON bytes.
func (e ErrorResponse) ToJSON() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return data
}

// NewValidationError reports malformed guest input.
func NewValidationError(message string) ErrorResponse {
	return ErrorResponse{
		Error:   "VALIDATION_ERROR",
		Message: message,
		Code:    400,
	}
}

// NewAccessDeniedError reports a fetch the guest is not permitted to make.
func NewAccessDeniedError(message string) ErrorResponse {
	return ErrorResponse{
		Error:   "ACCESS_DENIED",
		Message: message,
		Code:    403,
	}
}

// NewNotFoundError reports a call to an unregistered host function.
func NewNotFoundError(name string) ErrorResponse {
	return ErrorResponse{
		Error:   "NOT_FOUND",
		Message: "unknown host function: " + name,
		Code:    404,
	}
}

// NewInternalError reports an unexpected host failure.
func NewInternalError(message string) ErrorResponse {
	return ErrorResponse{
		Error:   "INTERNAL_ERROR",
		Message: message,
		Code:    500,
	}
}

// NewPanicError converts a recovered panic value.
func NewPanicError(panicValue any) ErrorResponse {
	msg := "panic recovered"
	switch v := panicValue.(type) {
	case error:
		msg = v.Error()
	case string:
		msg = v
	}
	return NewInternalError("panic: " + msg)
}
