package main

import (
	"context"
	"testing"
	"time"

	"github.com/reglet-dev/reglet-fetch/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceFor(t *testing.T) {
	assert.Equal(t, entities.ResourceKindNetwork, resourceFor("https://example.com/a.json").ResolvedKind())
	assert.Equal(t, entities.ResourceKindNetwork, resourceFor("h3://example.com/a.json").ResolvedKind())
	assert.Equal(t, entities.ResourceKindFile, resourceFor("./tiles/1.pbf").ResolvedKind())
	assert.Equal(t, entities.ResourceKindFile, resourceFor("file:///tmp/x").ResolvedKind())
}

func TestRunRequests_ResultsInTargetOrder(t *testing.T) {
	h := newTestHost(t, echoFetch(nil))
	targets := []string{"/a", "/b/missing", "https://example.com/c"}

	results, err := runRequests(context.Background(), h, targets, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, entities.StatusSuccess, results[0].resp.Status)
	assert.Equal(t, []byte("/a"), results[0].resp.Data)

	assert.Equal(t, entities.StatusError, results[1].resp.Status)
	assert.Equal(t, entities.ErrorKindNotFound, results[1].resp.ErrorKind)

	assert.Equal(t, "https://example.com/c", results[2].target)
	assert.Equal(t, entities.StatusSuccess, results[2].resp.Status)
}

func TestRunRequests_TimeoutCancelsPending(t *testing.T) {
	cancelled := make(chan string, 1)
	h := newTestHost(t, echoFetch(cancelled))

	results, err := runRequests(context.Background(), h, []string{"/fast", "/slow"}, 50*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, entities.StatusSuccess, results[0].resp.Status)
	assert.Equal(t, entities.StatusCancelled, results[1].resp.Status)

	select {
	case url := <-cancelled:
		assert.Equal(t, "/slow", url)
	case <-time.After(2 * time.Second):
		t.Fatal("slow fetch was never cancelled")
	}
}

func TestRunRequests_ContextDone(t *testing.T) {
	h := newTestHost(t, echoFetch(nil))
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	results, err := runRequests(ctx, h, []string{"/slow"}, 0)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusCancelled, results[0].resp.Status)
}

func TestFormatResult(t *testing.T) {
	ok := formatResult(result{target: "/a", resp: entities.Success(make([]byte, 2048))})
	assert.Contains(t, ok, "ok")
	assert.Contains(t, ok, "2.0 KiB")

	failed := formatResult(result{target: "/b", resp: entities.Failure(entities.ErrorKindServer, "HTTP status code 503")})
	assert.Contains(t, failed, "Server: HTTP status code 503")

	assert.Contains(t, formatResult(result{target: "/c", resp: entities.Cancelled()}), "cancelled")
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 KiB", formatSize(1536))
	assert.Equal(t, "3.0 MiB", formatSize(3<<20))
}
