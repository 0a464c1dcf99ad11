package hostfuncs

import (
	"context"
	"encoding/json"
	"fmt"
)

// HostFunc is a typed host function. Failures belong in the response type,
// not in a Go error, so guests can always decode the result.
type HostFunc[Req any, Resp any] func(context.Context, Req) Resp

// ByteHandler is the untyped form every registered host function takes:
// JSON in, JSON out. Runtime adapters only deal in ByteHandlers.
type ByteHandler func(context.Context, []byte) ([]byte, error)

// NewJSONHandler wraps a typed HostFunc into a ByteHandler that decodes the
// request and encodes the response as JSON. A payload that does not decode
// is answered with a VALIDATION_ERROR ErrorResponse, not a Go error.
//
//	release := hostfuncs.NewJSONHandler(func(ctx context.Context, req hostfuncs.FetchReleaseRequest) hostfuncs.FetchReleaseResponse {
//	    return hostfuncs.FetchReleaseResponse{Released: set.Release(req.ID)}
//	})
func NewJSONHandler[Req any, Resp any](fn HostFunc[Req, Resp]) ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Req
		if err := json.Unmarshal(payload, &req); err != nil {
			return NewValidationError("failed to unmarshal request: " + err.Error()).ToJSON(), nil
		}

		resp := fn(ctx, req)

		respBytes, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response: %w", err)
		}

		return respBytes, nil
	}
}
