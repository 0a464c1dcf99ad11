package hostloop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/iox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T, opts ...Option) *Loop {
	t.Helper()
	l := New(opts...)
	go func() { _ = l.Run(context.Background()) }()
	t.Cleanup(l.Stop)
	return l
}

func TestLoop_RunsTasksInOrder(t *testing.T) {
	l := startLoop(t)

	var (
		mu  sync.Mutex
		got []int
	)
	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		require.NoError(t, l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 99 {
				close(done)
			}
		}))
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not run")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoop_TasksNeverOverlap(t *testing.T) {
	l := startLoop(t)

	var (
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				err := l.Do(context.Background(), func() error {
					active++
					if active > maxSeen {
						maxSeen = active
					}
					active--
					return nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	err := l.Do(context.Background(), func() error {
		assert.Equal(t, 1, maxSeen)
		return nil
	})
	require.NoError(t, err)
}

func TestLoop_PostFullReturnsWouldBlock(t *testing.T) {
	l := New(WithCapacity(2))

	require.NoError(t, l.Post(func() {}))
	require.NoError(t, l.Post(func() {}))
	err := l.Post(func() {})
	assert.ErrorIs(t, err, iox.ErrWouldBlock)
	assert.Equal(t, 2, l.Pending())
}

func TestLoop_PostAfterStop(t *testing.T) {
	l := New()
	l.Stop()

	assert.ErrorIs(t, l.Post(func() {}), ErrLoopTerminated)
	assert.ErrorIs(t, l.Run(context.Background()), ErrLoopTerminated)

	// Stop is idempotent.
	l.Stop()
}

func TestLoop_PostRacingStopLeavesNothingQueued(t *testing.T) {
	for range 50 {
		l := New()
		go func() { _ = l.Run(context.Background()) }()
		require.NoError(t, l.Do(context.Background(), func() error { return nil }))

		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for l.Post(func() {}) == nil {
				}
			}()
		}
		l.Stop()
		wg.Wait()

		assert.Zero(t, l.Pending(), "no task may be accepted after the queue is discarded")
		assert.ErrorIs(t, l.Post(func() {}), ErrLoopTerminated)
	}
}

func TestLoop_RunTwice(t *testing.T) {
	l := startLoop(t)
	require.NoError(t, l.Do(context.Background(), func() error { return nil }))

	assert.ErrorIs(t, l.Run(context.Background()), ErrLoopAlreadyRunning)
}

func TestLoop_RecoversPanics(t *testing.T) {
	l := startLoop(t)

	require.NoError(t, l.Post(func() { panic("boom") }))

	ran := false
	err := l.Do(context.Background(), func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestLoop_DoReturnsTaskError(t *testing.T) {
	l := startLoop(t)

	want := errors.New("task failed")
	err := l.Do(context.Background(), func() error { return want })
	assert.ErrorIs(t, err, want)
}

func TestLoop_DoHonoursContext(t *testing.T) {
	l := New()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Do(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoop_RunStopsOnContext(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	require.NoError(t, l.Do(context.Background(), func() error { return nil }))
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
	<-l.Done()
	assert.ErrorIs(t, l.Post(func() {}), ErrLoopTerminated)
}
