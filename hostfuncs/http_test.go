package hostfuncs

import (
	"context"
	stdErrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/reglet-fetch/domain/entities"
	"github.com/reglet-dev/reglet-fetch/domain/errors"
)

func TestHTTPFetcher_Success(t *testing.T) {
	modified := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tile-client", r.Header.Get("X-Client"))
		w.Header().Set("ETag", `"abc"`)
		w.Header().Set("Last-Modified", modified.Format(http.TimeFormat))
		w.Header().Set("Cache-Control", "public, max-age=60")
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher()
	defer func() { _ = f.Close() }()

	before := time.Now()
	resp, err := f.Fetch(context.Background(), entities.Resource{
		URL:     srv.URL + "/tile.pbf",
		Headers: map[string]string{"X-Client": "tile-client"},
	})
	require.NoError(t, err)

	assert.Equal(t, entities.StatusSuccess, resp.Status)
	assert.Equal(t, []byte("payload"), resp.Data)
	assert.Equal(t, `"abc"`, resp.ETag)
	require.NotNil(t, resp.Modified)
	assert.True(t, modified.Equal(*resp.Modified))
	require.NotNil(t, resp.Expires)
	assert.WithinDuration(t, before.Add(60*time.Second), *resp.Expires, 5*time.Second)
}

func TestHTTPFetcher_ConditionalNotModified(t *testing.T) {
	prior := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"v1"`, r.Header.Get("If-None-Match"))
		assert.Equal(t, prior.Format(http.TimeFormat), r.Header.Get("If-Modified-Since"))
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	resp, err := PerformHTTPFetch(context.Background(), entities.Resource{
		URL:           srv.URL,
		PriorETag:     `"v1"`,
		PriorModified: &prior,
	})
	require.NoError(t, err)
	assert.Equal(t, entities.StatusSuccess, resp.Status)
	assert.True(t, resp.NotModified)
	assert.Empty(t, resp.Data)
}

func TestHTTPFetcher_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   entities.ErrorKind
	}{
		{http.StatusNotFound, entities.ErrorKindNotFound},
		{http.StatusGone, entities.ErrorKindNotFound},
		{http.StatusTooManyRequests, entities.ErrorKindRateLimit},
		{http.StatusInternalServerError, entities.ErrorKindServer},
		{http.StatusServiceUnavailable, entities.ErrorKindServer},
		{http.StatusForbidden, entities.ErrorKindOther},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := PerformHTTPFetch(context.Background(), entities.Resource{URL: srv.URL})
			require.Error(t, err)

			var fe *errors.FetchError
			require.True(t, stdErrors.As(err, &fe))
			assert.Equal(t, tt.kind, fe.Kind)
			assert.Contains(t, fe.Message, "HTTP status code")
		})
	}
}

func TestHTTPFetcher_BodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	_, err := PerformHTTPFetch(context.Background(), entities.Resource{URL: srv.URL}, WithHTTPMaxBodySize(10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 10 bytes")
}

func TestHTTPFetcher_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := PerformHTTPFetch(context.Background(), entities.Resource{URL: addr})
	require.Error(t, err)
	assert.Equal(t, entities.ErrorKindConnection, errors.ToResponse(err).ErrorKind)
}

func TestHTTPFetcher_CancelledContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := PerformHTTPFetch(ctx, entities.Resource{URL: srv.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCancelled)
}

func TestHTTPFetcher_SSRFBlocked(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := PerformHTTPFetch(context.Background(), entities.Resource{URL: srv.URL}, WithHTTPSSRFProtection(false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SSRF protection")
	assert.Equal(t, entities.ErrorKindOther, errors.ToResponse(err).ErrorKind)
}

func TestHTTPFetcher_SSRFBlockedOverHTTP3(t *testing.T) {
	tests := []struct {
		name string
		url  string
		opts []HTTPOption
	}{
		{"h3 scheme loopback", "h3://127.0.0.1:1/", nil},
		{"h3 scheme metadata", "h3://169.254.169.254/latest/meta-data", nil},
		{"https forced to h3", "https://127.0.0.1:1/", []HTTPOption{WithHTTP3(true)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]HTTPOption{WithHTTPSSRFProtection(false), WithHTTPRequestTimeout(2 * time.Second)}, tt.opts...)
			_, err := PerformHTTPFetch(context.Background(), entities.Resource{URL: tt.url}, opts...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "SSRF protection")
			assert.Equal(t, entities.ErrorKindOther, errors.ToResponse(err).ErrorKind)
		})
	}
}

func TestHTTPFetcher_ResolveURL(t *testing.T) {
	f := NewHTTPFetcher()
	defer func() { _ = f.Close() }()

	target, h3, err := f.resolveURL("h3://tiles.example.com/a.pbf")
	require.NoError(t, err)
	assert.Equal(t, "https://tiles.example.com/a.pbf", target)
	assert.True(t, h3)

	_, h3, err = f.resolveURL("https://tiles.example.com/a.pbf")
	require.NoError(t, err)
	assert.False(t, h3)

	_, _, err = f.resolveURL("ftp://tiles.example.com/a.pbf")
	assert.Error(t, err)

	_, _, err = f.resolveURL("")
	assert.Error(t, err)

	forced := NewHTTPFetcher(WithHTTP3(true))
	defer func() { _ = forced.Close() }()
	_, h3, err = forced.resolveURL("https://tiles.example.com/a.pbf")
	require.NoError(t, err)
	assert.True(t, h3)
}

func TestParseMaxAge(t *testing.T) {
	d, ok := parseMaxAge("no-cache, max-age=120")
	assert.True(t, ok)
	assert.Equal(t, 120*time.Second, d)

	_, ok = parseMaxAge("no-store")
	assert.False(t, ok)

	_, ok = parseMaxAge("max-age=-1")
	assert.False(t, ok)
}
