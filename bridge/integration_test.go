package bridge_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/reglet-fetch/bridge"
	"github.com/reglet-dev/reglet-fetch/domain/entities"
	"github.com/reglet-dev/reglet-fetch/domain/ports"
	"github.com/reglet-dev/reglet-fetch/filesource"
	"github.com/reglet-dev/reglet-fetch/hostloop"
	"github.com/reglet-dev/reglet-fetch/request"
)

type env struct {
	loop *hostloop.Loop
	fs   *filesource.Dispatcher
}

func newEnv(t *testing.T, opts ...filesource.Option) *env {
	t.Helper()
	e := &env{
		loop: hostloop.New(),
		fs:   filesource.New(opts...),
	}
	go func() { _ = e.loop.Run(context.Background()) }()
	t.Cleanup(func() {
		_ = e.fs.Close(context.Background())
		e.loop.Stop()
	})
	return e
}

// newBridge constructs a bridge on the loop, as host code would.
func (e *env) newBridge(t *testing.T, src ports.Responder, res entities.Resource) *bridge.Bridge {
	t.Helper()
	var b *bridge.Bridge
	require.NoError(t, e.loop.Do(context.Background(), func() error {
		b = bridge.New(e.loop, src, e.fs, res)
		return nil
	}))
	return b
}

type chanResponder chan entities.Response

func (c chanResponder) Respond(resp entities.Response) { c <- resp }

func TestBridge_DeliversNetworkBodyOnLoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("P"))
	}))
	defer srv.Close()

	e := newEnv(t, filesource.WithNetworkFetcher())
	src := make(chanResponder, 2)

	b := e.newBridge(t, src, entities.Resource{URL: srv.URL})

	select {
	case resp := <-src:
		assert.Equal(t, entities.StatusSuccess, resp.Status)
		assert.Equal(t, []byte("P"), resp.Data)
	case <-time.After(5 * time.Second):
		t.Fatal("response not delivered")
	}

	require.NoError(t, e.loop.Do(context.Background(), func() error {
		assert.True(t, b.Inert())
		assert.Zero(t, b.ID())
		return nil
	}))
	b.Teardown()
	assert.Empty(t, src)
}

func TestBridge_ReleaseCancelsInFlightFetch(t *testing.T) {
	var (
		mu        sync.Mutex
		cancelled int
	)
	started := make(chan struct{})
	fetcher := ports.FetcherFunc(func(ctx context.Context, _ entities.Resource) (entities.Response, error) {
		close(started)
		<-ctx.Done()
		mu.Lock()
		cancelled++
		mu.Unlock()
		return entities.Response{}, ctx.Err()
	})

	e := newEnv(t, filesource.WithFetcher(entities.ResourceKindNetwork, fetcher))
	src := make(chanResponder, 2)

	b := e.newBridge(t, src, entities.Resource{URL: "https://tiles.example.com/slow.pbf"})
	id := b.ID()
	found, ok := e.fs.Lookup(id)
	require.True(t, ok)
	h, ok := found.(*request.Handle)
	require.True(t, ok)
	<-started

	ref := bridge.NewRef(b)
	ref.Release()

	require.Eventually(t, func() bool { return e.fs.Pending() == 0 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, request.StateCancelled, h.State())

	// Give a stray delivery the chance to surface through the loop.
	require.NoError(t, e.loop.Do(context.Background(), func() error { return nil }))
	assert.Empty(t, src)

	mu.Lock()
	assert.Equal(t, 1, cancelled)
	mu.Unlock()
}

func TestBridge_MissingFileDeliversNotFound(t *testing.T) {
	e := newEnv(t, filesource.WithFileFetcher())
	src := make(chanResponder, 2)

	e.newBridge(t, src, entities.Resource{URL: filepath.Join(t.TempDir(), "does-not-exist")})

	select {
	case resp := <-src:
		assert.Equal(t, entities.StatusError, resp.Status)
		assert.Equal(t, entities.ErrorKindNotFound, resp.ErrorKind)
	case <-time.After(5 * time.Second):
		t.Fatal("response not delivered")
	}

	require.NoError(t, e.loop.Do(context.Background(), func() error { return nil }))
	assert.Empty(t, src)
}
