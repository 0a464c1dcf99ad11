package host

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/reglet-fetch/domain/entities"
	"github.com/reglet-dev/reglet-fetch/domain/errors"
	"github.com/reglet-dev/reglet-fetch/domain/ports"
	"github.com/reglet-dev/reglet-fetch/filesource"
	"github.com/reglet-dev/reglet-fetch/hostfuncs"
	wazeroadapter "github.com/reglet-dev/reglet-fetch/infrastructure/wazero"
)

// wasmModule builds a module with no imports or exports, optionally
// declaring an ABI version in a custom section.
func wasmModule(abiVersion string) []byte {
	mod := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	if abiVersion == "" {
		return mod
	}
	payload := append([]byte{byte(len(ABISection))}, ABISection...)
	payload = append(payload, abiVersion...)
	mod = append(mod, 0x00, byte(len(payload)))
	return append(mod, payload...)
}

func newTestExecutor(t *testing.T, opts ...Option) *Executor {
	t.Helper()
	ctx := context.Background()
	e, err := NewExecutor(ctx, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, e.Close(ctx)) })
	return e
}

func TestNewExecutor(t *testing.T) {
	e := newTestExecutor(t)

	assert.Equal(t, []string{"fetch_release", "fetch_start", "ssrf_check"}, e.Registry().Names())
	assert.NotNil(t, e.Loop())
	assert.NotNil(t, e.Dispatcher())
}

func TestNewExecutor_InvalidABIConstraint(t *testing.T) {
	_, err := NewExecutor(context.Background(), WithABIConstraint("not a constraint"))
	require.Error(t, err)

	var cfgErr *errors.ConfigError
	assert.True(t, stdErrors.As(err, &cfgErr))
}

func TestNewExecutor_DuplicateHostFunction(t *testing.T) {
	_, err := NewExecutor(context.Background(), WithHostFunctions(
		hostfuncs.WithHandler("fetch_start", func(ctx context.Context, req struct{}) struct{} { return req }),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate handler name")
}

func TestLoadPlugin_ABIVersion(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t)

	p, err := e.LoadPlugin(ctx, "tiles", wasmModule("1.2.0"))
	require.NoError(t, err)
	assert.Equal(t, "tiles", p.Name())
	assert.Equal(t, "1.2.0", p.Version)
	require.NoError(t, p.Close(ctx))

	_, err = e.LoadPlugin(ctx, "future", wasmModule("2.0.0"))
	var abiErr *errors.ABIError
	require.True(t, stdErrors.As(err, &abiErr))
	assert.Equal(t, "2.0.0", abiErr.Version)

	_, err = e.LoadPlugin(ctx, "garbage", wasmModule("one"))
	require.True(t, stdErrors.As(err, &abiErr))

	_, err = e.LoadPlugin(ctx, "legacy", wasmModule(""))
	require.True(t, stdErrors.As(err, &abiErr))
	assert.Contains(t, err.Error(), "missing")
}

func TestLoadPlugin_NoConstraint(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(t, WithABIConstraint(""))

	p, err := e.LoadPlugin(ctx, "legacy", wasmModule(""))
	require.NoError(t, err)
	assert.Empty(t, p.Version)

	_, err = p.Call(ctx, "run", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `export "run" not found`)
}

func TestLoadPlugin_InvalidBinary(t *testing.T) {
	e := newTestExecutor(t)

	_, err := e.LoadPlugin(context.Background(), "bad", []byte("not wasm"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to compile module")
}

func TestExecutor_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("style"))
	}))
	defer srv.Close()

	e := newTestExecutor(t, WithDispatcherOptions(filesource.WithNetworkFetcher()))

	got := make(chan entities.Response, 1)
	ref, err := e.Fetch(context.Background(), entities.Resource{URL: srv.URL}, ports.ResponderFunc(func(resp entities.Response) {
		got <- resp
	}))
	require.NoError(t, err)

	select {
	case resp := <-got:
		assert.Equal(t, entities.StatusSuccess, resp.Status)
		assert.Equal(t, []byte("style"), resp.Data)
	case <-time.After(5 * time.Second):
		t.Fatal("response not delivered")
	}
	ref.Release()
}

func TestExecutor_GuestFetchThroughRegistry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tile"))
	}))
	defer srv.Close()

	e := newTestExecutor(t,
		WithDispatcherOptions(filesource.WithNetworkFetcher()),
		WithFetchPolicy(wazeroadapter.PatternPolicy{Hosts: []string{"127.0.0.1"}}),
	)

	delivered := make(chan uint64, 1)
	ctx := hostfuncs.WithResponderFactory(context.Background(), func(id uint64) ports.Responder {
		return ports.ResponderFunc(func(resp entities.Response) {
			assert.Equal(t, []byte("tile"), resp.Data)
			delivered <- id
		})
	})

	var started hostfuncs.FetchStartResponse
	require.NoError(t, e.Loop().Do(ctx, func() error {
		out, err := e.Registry().Invoke(ctx, "fetch_start", []byte(`{"url":"`+srv.URL+`/0/0/0.pbf"}`))
		if err != nil {
			return err
		}
		return json.Unmarshal(out, &started)
	}))
	require.Nil(t, started.Error)

	select {
	case id := <-delivered:
		assert.Equal(t, started.ID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("response not delivered")
	}

	// Denied by policy.
	require.NoError(t, e.Loop().Do(ctx, func() error {
		out, err := e.Registry().Invoke(ctx, "fetch_start", []byte(`{"url":"https://blocked.test/a"}`))
		if err != nil {
			return err
		}
		started = hostfuncs.FetchStartResponse{}
		return json.Unmarshal(out, &started)
	}))
	require.NotNil(t, started.Error)
	assert.Equal(t, "ACCESS_DENIED", started.Error.Error)
}
