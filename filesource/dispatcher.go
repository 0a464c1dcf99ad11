// Package filesource is the native I/O subsystem behind the bridge.
//
// A Dispatcher owns every request handle it starts. It runs each fetch on
// its own goroutine, bounded by a concurrency limit, and forgets the handle
// once the completion callback has returned.
package filesource

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/reglet-dev/reglet-fetch/domain/entities"
	"github.com/reglet-dev/reglet-fetch/domain/errors"
	"github.com/reglet-dev/reglet-fetch/domain/ports"
	"github.com/reglet-dev/reglet-fetch/internal/handles"
	"github.com/reglet-dev/reglet-fetch/request"
)

// DefaultMaxConcurrent bounds in-flight fetches when no limit is configured.
const DefaultMaxConcurrent = 32

// Dispatcher routes resources to fetchers and tracks their handles.
// It implements ports.FileSource.
type Dispatcher struct {
	ctx      context.Context
	cancel   context.CancelFunc
	table    *handles.Table[*request.Handle]
	fetchers map[entities.ResourceKind]ports.Fetcher
	sem      *semaphore.Weighted
	logger   *slog.Logger
	wg       sync.WaitGroup

	// mu orders wg.Add in Start against Close setting closed.
	mu     sync.Mutex
	closed bool
}

var _ ports.FileSource = (*Dispatcher)(nil)

// New creates a dispatcher. Without WithFetcher options no resource kind is
// served and every request fails.
func New(opts ...Option) *Dispatcher {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		ctx:      ctx,
		cancel:   cancel,
		table:    handles.New[*request.Handle](),
		fetchers: cfg.fetchers,
		sem:      semaphore.NewWeighted(cfg.maxConcurrent),
		logger:   cfg.logger,
	}
}

// Start begins fetching res. The returned handle is already registered, so
// Lookup finds it until cb has returned.
func (d *Dispatcher) Start(res entities.Resource, cb request.Callback) ports.Handle {
	var h *request.Handle
	d.table.Add(func(id handles.Key) *request.Handle {
		h = request.New(d.ctx, id, res, cb)
		return h
	})

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		h.Cancel()
		h.Resolve(entities.Cancelled())
		d.table.Release(h.ID())
		return h
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go d.run(h)
	return h
}

// Lookup returns a handle that has not finished yet.
func (d *Dispatcher) Lookup(id request.ID) (ports.Handle, bool) {
	h, ok := d.table.Lookup(id)
	if !ok {
		return nil, false
	}
	return h, true
}

// Cancel cancels the pending request with the given ID.
// It reports whether the request was still pending.
func (d *Dispatcher) Cancel(id request.ID) bool {
	h, ok := d.table.Lookup(id)
	if !ok {
		return false
	}
	return h.Cancel()
}

// Pending returns the number of requests whose callback has not returned.
func (d *Dispatcher) Pending() int {
	return d.table.Len()
}

// Close cancels every pending request and waits for their callbacks, or for
// ctx to end. Requests started after Close are cancelled immediately.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	for _, h := range d.table.Snapshot() {
		h.Cancel()
	}
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return d.closeFetchers()
	case <-ctx.Done():
		return fmt.Errorf("filesource: %d requests still running: %w", d.Pending(), ctx.Err())
	}
}

func (d *Dispatcher) closeFetchers() error {
	var errs []error
	for kind, f := range d.fetchers {
		if c, ok := f.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s fetcher: %w", kind, err))
			}
		}
	}
	return stdErrors.Join(errs...)
}

func (d *Dispatcher) run(h *request.Handle) {
	defer d.wg.Done()
	defer d.table.Release(h.ID())

	h.Run(d.fetch)
}

// fetch is the request.FetchFunc for every handle: validate, wait for a
// worker slot, then hand off to the fetcher for the resource's kind.
func (d *Dispatcher) fetch(ctx context.Context, res entities.Resource) (entities.Response, error) {
	if err := res.Validate().Err(); err != nil {
		return entities.Response{}, &errors.FetchError{Kind: entities.ErrorKindOther, URL: res.URL, Message: err.Error()}
	}

	kind := res.ResolvedKind()
	fetcher, ok := d.fetchers[kind]
	if !ok {
		return entities.Response{}, &errors.FetchError{
			Kind:    entities.ErrorKindOther,
			URL:     res.URL,
			Message: fmt.Sprintf("no fetcher for %s resources", kind),
		}
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return entities.Response{}, fmt.Errorf("%w: %v", errors.ErrCancelled, err)
	}
	defer d.sem.Release(1)

	resp, err := fetcher.Fetch(ctx, res)
	if err != nil {
		d.logger.DebugContext(ctx, "filesource: fetch failed", "url", res.URL, "kind", kind, "error", err)
		return entities.Response{}, err
	}
	return resp, nil
}
