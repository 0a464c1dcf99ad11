package request

import (
	"context"
	"fmt"

	"code.hybscloud.com/atomix"

	"github.com/reglet-dev/reglet-fetch/domain/entities"
	"github.com/reglet-dev/reglet-fetch/domain/ports"
)

// ID identifies a handle within the file source that owns it. Zero is never issued.
type ID = entities.RequestID

// State is the lifecycle state of a Handle.
type State uint32

const (
	StatePending State = iota
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// Callback receives the single completion notice of a Handle.
// It runs on the goroutine that resolved the handle.
type Callback = entities.ResponseCallback

// Handle is one asynchronous unit of work against a file or network source.
type Handle struct {
	ctx      context.Context
	cancel   context.CancelFunc
	callback Callback
	done     chan struct{}
	resource entities.Resource
	id       ID
	state    atomix.Uint32
	fired    atomix.Uint32
}

var _ ports.Handle = (*Handle)(nil)

// New creates a pending handle. The returned handle's Context is cancelled
// when Cancel succeeds or when parent is cancelled.
func New(parent context.Context, id ID, res entities.Resource, cb Callback) *Handle {
	ctx, cancel := context.WithCancel(parent)
	if cb == nil {
		cb = func(entities.Response) {}
	}
	return &Handle{
		ctx:      ctx,
		cancel:   cancel,
		callback: cb,
		done:     make(chan struct{}),
		resource: res,
		id:       id,
	}
}

// ID returns the handle identifier.
func (h *Handle) ID() ID {
	return h.id
}

// Resource returns the resource this handle fetches.
func (h *Handle) Resource() entities.Resource {
	return h.resource
}

// Context is the context the I/O for this handle must run under.
func (h *Handle) Context() context.Context {
	return h.ctx
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// Done is closed once the completion callback has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel requests early termination. It is safe to call from any goroutine.
// It reports whether this call moved the handle out of StatePending; once it
// has, the callback will only ever report a cancellation.
func (h *Handle) Cancel() bool {
	if !h.state.CompareAndSwap(uint32(StatePending), uint32(StateCancelled)) {
		return false
	}
	h.cancel()
	return true
}

// Resolve is called by the I/O path when the operation finishes, successfully
// or not. The first call fires the callback; later calls are no-ops.
// A response whose status is cancelled is treated as an acknowledgement of
// cancellation.
func (h *Handle) Resolve(resp entities.Response) {
	if !h.fired.CompareAndSwap(0, 1) {
		return
	}
	defer close(h.done)
	defer h.cancel()

	if resp.Status == entities.StatusCancelled {
		h.state.CompareAndSwap(uint32(StatePending), uint32(StateCancelled))
		h.callback(entities.Cancelled())
		return
	}
	if h.state.CompareAndSwap(uint32(StatePending), uint32(StateCompleted)) {
		h.callback(resp)
		return
	}
	h.callback(entities.Cancelled())
}
