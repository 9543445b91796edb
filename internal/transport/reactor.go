// Package transport implements the I/O transport variants (plain TCP,
// TLS-over-TCP) a Stream Client drives, plus the small reactor abstraction
// that stands in for the external event loop spec.md assumes (an
// asio-style io_service in the original). A Service runs exactly two
// worker goroutines calling Reactor.Run, matching spec.md §5's fixed
// two-thread pool.
package transport

import "fmt"

// Reactor is a single-queue task executor. Stream Client completion
// handlers (read/write completions, timers, posted reconnect tasks) are
// submitted with Post and executed, in submission order per queue, by
// whichever worker goroutine calls Run next — concurrently across workers,
// serially within one handler's body, exactly as spec.md §5 requires.
type Reactor struct {
	tasks chan func()
}

// NewReactor allocates a reactor with the given task queue depth.
func NewReactor(queueDepth int) *Reactor {
	return &Reactor{tasks: make(chan func(), queueDepth)}
}

// Post enqueues a task for execution by a Run worker. Safe to call from any
// goroutine, including from within a task running on this same reactor.
func (r *Reactor) Post(task func()) {
	r.tasks <- task
}

// Stop closes the task queue; a worker calling Run returns once all
// already-queued tasks have drained.
func (r *Reactor) Stop() {
	close(r.tasks)
}

// Run drains posted tasks until the queue is closed, returning nil. If a
// task panics, Run recovers it and returns it as an error — the Go
// equivalent of an exception escaping io_service::run() in the original;
// the caller (Service) treats a non-nil return as a fatal error and stops
// the client rather than re-entering Run (see SPEC_FULL.md error taxonomy).
func (r *Reactor) Run() (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in reactor handler: %v", rec)
		}
	}()
	for task := range r.tasks {
		task()
	}
	return nil
}
