package main

import (
	"context"
	"strings"
	"testing"

	"github.com/reglet-dev/reglet-fetch/bridge"
	"github.com/reglet-dev/reglet-fetch/domain/entities"
	"github.com/reglet-dev/reglet-fetch/domain/ports"
	"github.com/reglet-dev/reglet-fetch/filesource"
	"github.com/reglet-dev/reglet-fetch/hostloop"
)

// testHost is a fetchHost without a wasm runtime. Every resource kind is
// served by fetch.
type testHost struct {
	loop *hostloop.Loop
	fs   *filesource.Dispatcher
}

func newTestHost(t *testing.T, fetch ports.FetcherFunc) *testHost {
	t.Helper()
	loop := hostloop.New()
	go func() { _ = loop.Run(context.Background()) }()

	fs := filesource.New(
		filesource.WithFetcher(entities.ResourceKindFile, fetch),
		filesource.WithFetcher(entities.ResourceKindNetwork, fetch),
	)
	t.Cleanup(func() {
		_ = fs.Close(context.Background())
		loop.Stop()
	})
	return &testHost{loop: loop, fs: fs}
}

func (h *testHost) Loop() *hostloop.Loop {
	return h.loop
}

func (h *testHost) Fetch(ctx context.Context, res entities.Resource, src ports.Responder) (*bridge.Ref, error) {
	var ref *bridge.Ref
	err := h.loop.Do(ctx, func() error {
		ref = bridge.NewRef(bridge.New(h.loop, src, h.fs, res))
		return nil
	})
	return ref, err
}

// echoFetch succeeds with the resource URL as body, except for URLs
// ending in "missing" (NotFound) and "slow" (blocks until cancelled).
func echoFetch(cancelled chan<- string) ports.FetcherFunc {
	return trackedEchoFetch(nil, cancelled)
}

// trackedEchoFetch is echoFetch that also reports on started when a slow
// fetch begins waiting.
func trackedEchoFetch(started, cancelled chan<- string) ports.FetcherFunc {
	return func(ctx context.Context, res entities.Resource) (entities.Response, error) {
		switch {
		case strings.HasSuffix(res.URL, "missing"):
			return entities.Failure(entities.ErrorKindNotFound, "no such resource"), nil
		case strings.HasSuffix(res.URL, "slow"):
			if started != nil {
				started <- res.URL
			}
			<-ctx.Done()
			if cancelled != nil {
				cancelled <- res.URL
			}
			return entities.Response{}, ctx.Err()
		default:
			return entities.Success([]byte(res.URL)), nil
		}
	}
}
