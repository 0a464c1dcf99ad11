// Package bridge connects an in-flight request to the host object that
// receives its response.
//
// A Bridge is created on the host execution context. It starts one request on
// a ports.FileSource and, when the request completes, marshals the response
// back onto the host via a ports.Scheduler. The bridge never holds the
// request handle itself, only its ID, so either side may go away first:
//
//   - if the request completes first, Deliver hands the response to the
//     host's Responder and the bridge becomes inert;
//   - if the host discards the bridge first, Teardown cancels the request if
//     it is still pending and the bridge becomes inert.
//
// Whichever happens first wins. The other is a no-op.
package bridge

import (
	"errors"
	"log/slog"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"

	"github.com/reglet-dev/reglet-fetch/domain/entities"
	"github.com/reglet-dev/reglet-fetch/domain/ports"
	"github.com/reglet-dev/reglet-fetch/request"
)

const (
	stateActive uint32 = iota
	stateInert
)

// Bridge is the host-side proxy for one request.
type Bridge struct {
	source      ports.Responder
	sched       ports.Scheduler
	fs          ports.FileSource
	logger      *slog.Logger
	onInert     func()
	maxAttempts int
	id          atomix.Uint64
	state       atomix.Uint32
}

// New starts a request for res on fs and binds it to src.
// It must be called on the host execution context that sched posts to.
func New(sched ports.Scheduler, src ports.Responder, fs ports.FileSource, res entities.Resource, opts ...Option) *Bridge {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	b := &Bridge{
		source:      src,
		sched:       sched,
		fs:          fs,
		logger:      cfg.logger,
		onInert:     cfg.onInert,
		maxAttempts: cfg.maxPostAttempts,
	}

	h := fs.Start(res, b.complete)
	b.id.Store(h.ID())
	if b.state.Load() == stateInert {
		b.id.Store(0)
	}
	return b
}

// ID returns the ID of the bound request, or zero once the bridge is inert.
func (b *Bridge) ID() request.ID {
	return b.id.Load()
}

// Inert reports whether the bridge has already delivered or been torn down.
func (b *Bridge) Inert() bool {
	return b.state.Load() == stateInert
}

// Deliver hands resp to the source context. It runs on the host execution
// context and takes effect at most once. A cancelled response makes the
// bridge inert without calling the Responder.
func (b *Bridge) Deliver(resp entities.Response) {
	if !b.state.CompareAndSwap(stateActive, stateInert) {
		return
	}
	b.id.Store(0)
	defer b.settled()

	if resp.Status == entities.StatusCancelled {
		return
	}
	b.source.Respond(resp)
}

// Teardown detaches the bridge from its request, cancelling the request if
// it has not completed yet. It is idempotent and safe from any goroutine.
func (b *Bridge) Teardown() {
	if !b.state.CompareAndSwap(stateActive, stateInert) {
		return
	}
	defer b.settled()
	id := b.id.Load()
	b.id.Store(0)
	if id == 0 {
		return
	}

	h, ok := b.fs.Lookup(id)
	if !ok {
		return
	}
	if h.Cancel() {
		b.logger.Debug("bridge: cancelled pending request", "id", id, "url", h.Resource().URL)
	}
}

// complete is the request's completion callback. It runs on the I/O
// goroutine and only posts; all host-visible work happens in Deliver.
func (b *Bridge) complete(resp entities.Response) {
	if b.Inert() {
		return
	}

	task := func() { b.Deliver(resp) }
	var bo iox.Backoff
	for attempt := 1; ; attempt++ {
		err := b.sched.Post(task)
		if err == nil {
			return
		}
		if !errors.Is(err, iox.ErrWouldBlock) || (b.maxAttempts > 0 && attempt >= b.maxAttempts) {
			b.drop(resp, err)
			return
		}
		bo.Wait()
	}
}

// drop abandons a response that could not be posted to the host.
func (b *Bridge) drop(resp entities.Response, err error) {
	if !b.state.CompareAndSwap(stateActive, stateInert) {
		return
	}
	b.id.Store(0)
	b.logger.Warn("bridge: dropping response, host unavailable",
		"status", resp.Status,
		"error", err,
	)
	b.settled()
}

// settled runs the inert hook. Callers must have won the move to inert.
func (b *Bridge) settled() {
	if b.onInert != nil {
		b.onInert()
	}
}
