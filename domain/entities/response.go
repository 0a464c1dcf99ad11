package entities

import (
	"time"
)

// Status is the terminal outcome carried by a Response.
type Status string

const (
	// StatusSuccess indicates the resource was loaded.
	StatusSuccess Status = "success"

	// StatusError indicates the I/O failed; ErrorKind and ErrorMessage are set.
	StatusError Status = "error"

	// StatusCancelled indicates the request was cancelled before it completed.
	StatusCancelled Status = "cancelled"
)

// ErrorKind classifies a failed request.
type ErrorKind string

const (
	ErrorKindNotFound   ErrorKind = "NotFound"
	ErrorKindServer     ErrorKind = "Server"
	ErrorKindConnection ErrorKind = "Connection"
	ErrorKindRateLimit  ErrorKind = "RateLimit"
	ErrorKindOther      ErrorKind = "Other"
)

// Response is the completion payload of a request.
// It is the only shape exchanged between the file source and the host.
type Response struct {
	// Modified is the Last-Modified time reported by the source.
	Modified *time.Time `json:"modified,omitempty"`

	// Expires is when the data should be considered stale.
	Expires *time.Time `json:"expires,omitempty"`

	// Status is the terminal outcome.
	Status Status `json:"status"`

	// ErrorKind classifies the failure when Status is StatusError.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`

	// ErrorMessage describes the failure when Status is StatusError.
	ErrorMessage string `json:"error_message,omitempty"`

	// ETag is the entity tag reported by the source.
	ETag string `json:"etag,omitempty"`

	// Data is the resource body.
	Data []byte `json:"data,omitempty"`

	// NotModified is set when the source confirmed a cached copy is still valid.
	NotModified bool `json:"not_modified,omitempty"`
}

// Success builds a successful response carrying data.
func Success(data []byte) Response {
	return Response{Status: StatusSuccess, Data: data}
}

// Failure builds an error response.
func Failure(kind ErrorKind, message string) Response {
	return Response{Status: StatusError, ErrorKind: kind, ErrorMessage: message}
}

// Cancelled builds a cancellation notice.
func Cancelled() Response {
	return Response{Status: StatusCancelled}
}

// IsTerminal reports whether s is one of the known terminal statuses.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusError, StatusCancelled:
		return true
	}
	return false
}
