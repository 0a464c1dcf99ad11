package entities

// RequestID identifies an in-flight request within the file source that owns
// it. Zero is never issued.
type RequestID = uint64

// ResponseCallback receives the single completion notice of a request.
type ResponseCallback func(Response)
