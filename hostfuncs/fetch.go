package hostfuncs

import (
	"context"
	"slices"

	"github.com/reglet-dev/reglet-fetch/bridge"
	"github.com/reglet-dev/reglet-fetch/domain/entities"
	"github.com/reglet-dev/reglet-fetch/domain/ports"
	"github.com/reglet-dev/reglet-fetch/internal/handles"
)

// ResponderFactory builds the source context a guest request delivers into.
// id is the guest-visible request ID returned by fetch_start.
type ResponderFactory func(id uint64) ports.Responder

type responderFactoryKey struct{}

// WithResponderFactory attaches the factory fetch_start uses to reach the
// calling guest.
func WithResponderFactory(ctx context.Context, f ResponderFactory) context.Context {
	return context.WithValue(ctx, responderFactoryKey{}, f)
}

// ResponderFactoryFrom returns the factory attached with WithResponderFactory.
func ResponderFactoryFrom(ctx context.Context) (ResponderFactory, bool) {
	f, ok := ctx.Value(responderFactoryKey{}).(ResponderFactory)
	return f, ok && f != nil
}

// FetchStartResponse is returned by fetch_start.
type FetchStartResponse struct {
	Error *ErrorResponse `json:"error,omitempty"`
	ID    uint64         `json:"id,omitempty"`
}

// FetchReleaseRequest is the request type for fetch_release.
type FetchReleaseRequest struct {
	ID uint64 `json:"id"`
}

// FetchReleaseResponse is returned by fetch_release.
type FetchReleaseResponse struct {
	// Released is false when the ID was unknown or already finished.
	Released bool `json:"released"`
}

// BridgeSet owns the bridges created on behalf of guests. A guest only ever
// sees the ID; dropping it with fetch_release tears the bridge down.
//
// fetch_start must run on the host execution context that sched posts to.
type BridgeSet struct {
	fs    ports.FileSource
	sched ports.Scheduler
	refs  *handles.Table[*bridge.Ref]
	opts  []bridge.Option
}

// NewBridgeSet creates an empty set bound to fs and sched.
func NewBridgeSet(fs ports.FileSource, sched ports.Scheduler, opts ...bridge.Option) *BridgeSet {
	return &BridgeSet{
		fs:    fs,
		sched: sched,
		refs:  handles.New[*bridge.Ref](),
		opts:  opts,
	}
}

// Start creates a bridge for res delivering into the responder built by
// newResponder, and returns its guest-visible ID.
func (s *BridgeSet) Start(res entities.Resource, newResponder ResponderFactory) uint64 {
	id := s.refs.Register(nil)
	forget := bridge.WithOnInert(func() { s.refs.Release(id) })
	opts := append(slices.Clip(s.opts), forget)
	ref := bridge.NewRef(bridge.New(s.sched, newResponder(id), s.fs, res, opts...))
	// A bridge that already went inert has left the set and stays out.
	s.refs.Update(id, ref)
	return id
}

// Release tears down the bridge with the given ID.
func (s *BridgeSet) Release(id uint64) bool {
	ref, ok := s.refs.Release(id)
	if !ok || ref == nil {
		return false
	}
	ref.Release()
	return true
}

// Len returns the number of bridges that have neither delivered nor been released.
func (s *BridgeSet) Len() int {
	return s.refs.Len()
}

// Close releases every bridge in the set.
func (s *BridgeSet) Close() {
	for _, id := range s.refs.Keys() {
		s.Release(id)
	}
}

// FetchBundle returns a bundle with the asynchronous fetch host functions:
// fetch_start, fetch_release.
//
// fetch_start takes a JSON Resource and returns {"id": n}. The response is
// later delivered through the ResponderFactory found in the call context.
func FetchBundle(set *BridgeSet) HostFuncBundle {
	return &staticBundle{
		handlers: map[string]ByteHandler{
			"fetch_start": NewJSONHandler(func(ctx context.Context, res entities.Resource) FetchStartResponse {
				newResponder, ok := ResponderFactoryFrom(ctx)
				if !ok {
					e := NewInternalError("fetch_start: no responder for caller")
					return FetchStartResponse{Error: &e}
				}
				return FetchStartResponse{ID: set.Start(res, newResponder)}
			}),
			"fetch_release": NewJSONHandler(func(_ context.Context, req FetchReleaseRequest) FetchReleaseResponse {
				return FetchReleaseResponse{Released: set.Release(req.ID)}
			}),
		},
	}
}
