// Package bridge lets synchronous callers run work on one long-lived
// scheduler goroutine and block for the result.
//
// The scheduler owns every asynchronous resource (provider sessions,
// completion calls). Callers never touch those resources directly; they
// submit a closure and wait. A panic inside a closure is returned to its
// submitter as *PanicError and never stops the scheduler.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/ppiankov/pulseguard/internal/metrics"
)

// ErrClosed is returned by Submit once the scheduler has stopped.
var ErrClosed = errors.New("bridge: scheduler is not running")

// ErrNotInitialized is returned by WaitReady when Initialize was never called
// and the caller's context ends first.
var ErrNotInitialized = errors.New("bridge: initialization has not completed")

// PanicError wraps a panic recovered from submitted work.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("bridge: task panicked: %v", e.Value)
}

type result struct {
	value any
	err   error
}

type task struct {
	name  string
	run   func(ctx context.Context) (any, error)
	reply chan result
}

// Bridge owns the scheduler goroutine.
type Bridge struct {
	logger *slog.Logger

	tasks chan task
	done  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	closeOnce sync.Once
	inflight  sync.WaitGroup

	ready     chan struct{}
	readyOnce sync.Once
	readyErr  error
}

// New creates a Bridge. The scheduler starts on Start or on the first Submit.
func New(logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		logger: logger,
		tasks:  make(chan task),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		ready:  make(chan struct{}),
	}
}

// Start launches the scheduler goroutine. Subsequent calls are no-ops.
func (b *Bridge) Start() {
	b.startOnce.Do(func() {
		go b.loop()
	})
}

// Close stops accepting work, waits for running tasks and stops the scheduler.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.Start()
		b.cancel()
	})
	<-b.done
}

// Done is closed when the scheduler has exited.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Alive reports whether the scheduler still accepts work.
func (b *Bridge) Alive() bool {
	select {
	case <-b.done:
		return false
	default:
		return true
	}
}

func (b *Bridge) loop() {
	defer close(b.done)
	defer b.inflight.Wait()

	b.logger.Debug("bridge scheduler started")
	for {
		select {
		case <-b.ctx.Done():
			b.logger.Debug("bridge scheduler stopping")
			return
		case t := <-b.tasks:
			b.inflight.Add(1)
			metrics.BridgeInflight.Inc()
			go b.execute(t)
		}
	}
}

// execute runs one task on its own goroutine. The reply channel is
// buffered: a caller that gave up never blocks the task.
func (b *Bridge) execute(t task) {
	defer b.inflight.Done()
	defer metrics.BridgeInflight.Dec()

	var r result
	func() {
		defer func() {
			if p := recover(); p != nil {
				r = result{err: &PanicError{Value: p, Stack: debug.Stack()}}
				b.logger.Error("bridge task panicked", "task", t.name, "panic", p)
			}
		}()
		r.value, r.err = t.run(b.ctx)
	}()
	t.reply <- r
}

// Submit runs fn on the scheduler and blocks until it returns or ctx ends.
// When ctx ends first the work keeps running in the background and its
// result is discarded.
func Submit[T any](ctx context.Context, b *Bridge, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !b.Alive() {
		return zero, ErrClosed
	}
	b.Start()

	t := task{
		name: name,
		run: func(ctx context.Context) (any, error) {
			return fn(ctx)
		},
		reply: make(chan result, 1),
	}

	select {
	case b.tasks <- t:
	case <-b.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case r := <-t.reply:
		if r.err != nil {
			return zero, r.err
		}
		v, _ := r.value.(T)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Initialize runs fn on the scheduler once and then opens the readiness
// gate, whether fn succeeded or not. Later calls return the first result.
func (b *Bridge) Initialize(ctx context.Context, fn func(ctx context.Context) error) error {
	ran := false
	b.readyOnce.Do(func() {
		ran = true
		_, err := Submit(ctx, b, "initialize", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, fn(ctx)
		})
		b.readyErr = err
		close(b.ready)
	})
	if !ran {
		<-b.ready
	}
	return b.readyErr
}

// Ready is closed once Initialize has finished.
func (b *Bridge) Ready() <-chan struct{} {
	return b.ready
}

// WaitReady blocks until initialization has completed and returns its error.
func (b *Bridge) WaitReady(ctx context.Context) error {
	select {
	case <-b.ready:
		return b.readyErr
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrNotInitialized, ctx.Err())
	}
}

// SubmitReady waits for the readiness gate and then submits fn.
func SubmitReady[T any](ctx context.Context, b *Bridge, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	if err := b.WaitReady(ctx); err != nil {
		var zero T
		return zero, err
	}
	return Submit(ctx, b, name, fn)
}
