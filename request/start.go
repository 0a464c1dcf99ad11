package request

import (
	"context"

	"github.com/reglet-dev/reglet-fetch/domain/entities"
	"github.com/reglet-dev/reglet-fetch/domain/errors"
)

// FetchFunc performs the I/O for a resource. It must return promptly once
// ctx is cancelled.
type FetchFunc func(ctx context.Context, res entities.Resource) (entities.Response, error)

// Start creates a handle and runs fetch for it on a new goroutine.
// It returns immediately; failures surface through cb, never at call time.
func Start(parent context.Context, id ID, res entities.Resource, fetch FetchFunc, cb Callback) *Handle {
	h := New(parent, id, res, cb)
	go h.Run(fetch)
	return h
}

// Run performs fetch on the calling goroutine and resolves the handle with
// its outcome.
func (h *Handle) Run(fetch FetchFunc) {
	if h.State() != StatePending {
		h.Resolve(entities.Cancelled())
		return
	}
	resp, err := fetch(h.ctx, h.resource)
	switch {
	case h.ctx.Err() != nil && h.State() == StateCancelled:
		h.Resolve(entities.Cancelled())
	case err != nil:
		h.Resolve(errors.ToResponse(err))
	default:
		h.Resolve(resp)
	}
}
