package ports

import (
	"context"

	"github.com/reglet-dev/reglet-fetch/domain/entities"
)

// Handle is one in-flight request as its owner exposes it.
type Handle interface {
	ID() entities.RequestID
	Resource() entities.Resource
	// Cancel reports whether this call moved the request out of pending.
	Cancel() bool
	// Done is closed once the completion callback has returned.
	Done() <-chan struct{}
}

// FileSource is the native I/O subsystem that owns request handles.
type FileSource interface {
	// Start begins fetching res and returns its handle immediately.
	// cb is invoked exactly once with the outcome.
	Start(res entities.Resource, cb entities.ResponseCallback) Handle

	// Lookup resolves a handle that the source still owns.
	// It returns false once the source has finished with the request.
	Lookup(id entities.RequestID) (Handle, bool)
}

// Fetcher performs the I/O for one kind of resource.
type Fetcher interface {
	Fetch(ctx context.Context, res entities.Resource) (entities.Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, res entities.Resource) (entities.Response, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, res entities.Resource) (entities.Response, error) {
	return f(ctx, res)
}
