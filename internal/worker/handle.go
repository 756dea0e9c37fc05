package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Func is the body of a worker. It must return once ctx is cancelled.
type Func func(ctx context.Context) error

// Handle is an independently cancellable unit of execution with a liveness
// check. Terminating a handle never waits longer than the given grace.
type Handle struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Start runs fn in its own goroutine under a context derived from parent.
// A panic inside fn is recovered and reported as the worker's error, so a
// crashing worker shows up as a dead handle rather than taking the process down.
func Start(parent context.Context, name string, fn Func) *Handle {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		defer func() {
			if r := recover(); r != nil {
				h.setErr(fmt.Errorf("worker %s panicked: %v", name, r))
			}
		}()
		h.setErr(fn(ctx))
	}()
	return h
}

func (h *Handle) Name() string { return h.name }

// Done is closed once the worker function has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Alive() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Err returns the worker's exit error once it has stopped.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) setErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

// Terminate requests cancellation and waits at most grace for the worker to
// exit. It reports whether the worker is stopped.
func (h *Handle) Terminate(grace time.Duration) bool {
	if h == nil {
		return true
	}
	h.cancel()
	if grace <= 0 {
		return !h.Alive()
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-h.done:
		return true
	case <-timer.C:
		return false
	}
}

// TerminateAll terminates the handles concurrently and returns the names of
// those still running after grace. Nil handles are skipped.
func TerminateAll(grace time.Duration, handles ...*Handle) []string {
	var (
		grp   errgroup.Group
		mu    sync.Mutex
		stuck []string
	)
	for _, h := range handles {
		if h == nil {
			continue
		}
		h := h
		grp.Go(func() error {
			if !h.Terminate(grace) {
				mu.Lock()
				stuck = append(stuck, h.Name())
				mu.Unlock()
			}
			return nil
		})
	}
	_ = grp.Wait()
	return stuck
}
