// Package hostloop provides the host's single logical execution context.
//
// Every host-visible effect of a fetch (delivering a response, calling into a
// WASM guest) runs as a task on one Loop, so no two of them ever overlap.
// Other goroutines hand work to the loop with Post, which never blocks.
package hostloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"github.com/eapache/queue"
)

var (
	// ErrLoopAlreadyRunning is returned when Run is called on a loop that is already running.
	ErrLoopAlreadyRunning = errors.New("hostloop: loop is already running")

	// ErrLoopTerminated is returned when work is posted to a stopped loop.
	ErrLoopTerminated = errors.New("hostloop: loop has been terminated")
)

const (
	stateIdle uint32 = iota
	stateRunning
	stateStopped
)

// DefaultCapacity bounds the number of queued tasks.
const DefaultCapacity = 4096

// Option configures a Loop.
type Option func(*loopConfig)

type loopConfig struct {
	logger   *slog.Logger
	capacity int
	batch    int
}

func defaultLoopConfig() loopConfig {
	return loopConfig{
		logger:   slog.Default(),
		capacity: DefaultCapacity,
		batch:    64,
	}
}

// WithCapacity bounds the ingress queue. Zero or less means unbounded.
func WithCapacity(n int) Option {
	return func(c *loopConfig) {
		c.capacity = n
	}
}

// WithBatchSize sets how many tasks are drained per wake-up.
func WithBatchSize(n int) Option {
	return func(c *loopConfig) {
		if n > 0 {
			c.batch = n
		}
	}
}

// WithLogger sets the logger used for recovered task panics.
func WithLogger(l *slog.Logger) Option {
	return func(c *loopConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Loop runs posted tasks serially on a single goroutine.
type Loop struct {
	cfg      loopConfig
	mu       sync.Mutex
	ingress  *queue.Queue
	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	state    atomix.Uint32
}

// New creates a loop. Call Run to start processing.
func New(opts ...Option) *Loop {
	cfg := defaultLoopConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Loop{
		cfg:     cfg,
		ingress: queue.New(),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Post enqueues task to run on the loop. It never blocks.
// It returns iox.ErrWouldBlock when the queue is full and ErrLoopTerminated
// once the loop has stopped.
func (l *Loop) Post(task func()) error {
	if task == nil {
		return nil
	}
	if l.state.Load() == stateStopped {
		return ErrLoopTerminated
	}

	l.mu.Lock()
	// terminate flips the state under mu, so this read orders Post against
	// the queue swap.
	if l.state.Load() == stateStopped {
		l.mu.Unlock()
		return ErrLoopTerminated
	}
	if l.cfg.capacity > 0 && l.ingress.Length() >= l.cfg.capacity {
		l.mu.Unlock()
		return iox.ErrWouldBlock
	}
	l.ingress.Add(task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Do runs fn on the loop and waits for it to return.
// It must not be called from a task running on the same loop.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	task := func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("hostloop: task panicked: %v", r)
			}
		}()
		result <- fn()
	}

	var bo iox.Backoff
	for {
		err := l.Post(task)
		if err == nil {
			break
		}
		if !errors.Is(err, iox.ErrWouldBlock) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bo.Wait()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrLoopTerminated
		}
	}
}

// Run processes tasks until ctx is cancelled or Stop is called.
// Tasks still queued when the loop stops are discarded.
func (l *Loop) Run(ctx context.Context) error {
	if !l.state.CompareAndSwap(stateIdle, stateRunning) {
		if l.state.Load() == stateStopped {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}
	defer close(l.done)
	defer l.terminate()

	batch := make([]func(), 0, l.cfg.batch)
	for {
		batch = l.drain(batch[:0])
		for _, task := range batch {
			l.runTask(task)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			return nil
		case <-l.wake:
		}
	}
}

// Stop terminates the loop and waits for the running task, if any, to finish.
// Stop is idempotent. It must not be called from a task on the loop.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
	l.mu.Lock()
	stoppedIdle := l.state.CompareAndSwap(stateIdle, stateStopped)
	l.mu.Unlock()
	if stoppedIdle {
		close(l.done)
		return
	}
	<-l.done
}

// Done is closed once the loop has terminated.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ingress.Length()
}

func (l *Loop) drain(batch []func()) []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(batch) < cap(batch) && l.ingress.Length() > 0 {
		batch = append(batch, l.ingress.Remove().(func()))
	}
	return batch
}

func (l *Loop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.cfg.logger.Error("hostloop: task panicked", "panic", fmt.Sprint(r))
		}
	}()
	task()
}

func (l *Loop) terminate() {
	l.mu.Lock()
	l.state.Store(stateStopped)
	dropped := l.ingress.Length()
	l.ingress = queue.New()
	l.mu.Unlock()
	if dropped > 0 {
		l.cfg.logger.Debug("hostloop: discarded queued tasks on stop", "count", dropped)
	}
}
