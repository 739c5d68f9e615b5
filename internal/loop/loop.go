package loop

import (
	"context"
	"fmt"
	"log/slog"
)

// Dispatcher accepts continuations for execution on the logical event loop.
//
// Implemented by Loop (production) and Inline (tests and synchronous tools).
type Dispatcher interface {
	// Post schedules fn. Returns false if the dispatcher no longer accepts
	// work, in which case fn is never run.
	Post(fn func()) bool
}

// Loop is the single-writer event loop.
//
// Thread-safety model:
//   - Post(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//
// Tasks run one at a time in FIFO order. A task that panics is logged and
// the loop continues with the next task.
type Loop struct {
	queue  *taskQueue
	logger *slog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used for loop diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(lp *Loop) {
		lp.logger = l
	}
}

// New creates a Loop. Call Run to start processing.
func New(opts ...Option) *Loop {
	l := &Loop{
		queue:  newTaskQueue(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post submits a task for processing by the Run loop.
// Returns false if the loop has been stopped.
func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	return l.queue.Enqueue(fn)
}

// Run processes tasks until ctx is cancelled or Stop is called.
//
// ERROR HANDLING: a panicking task is recovered and logged; processing
// continues with the next task.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("loop starting")

	for {
		if fn, ok := l.queue.TryDequeue(); ok {
			l.runTask(fn)
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Debug("loop stopping: context cancelled")
			l.queue.Close()
			return ctx.Err()

		case <-l.queue.Wait():
			// The signal channel closes when the queue is closed, which
			// fires this case immediately.
			if l.queue.Len() == 0 && l.closed() {
				l.logger.Debug("loop stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Tasks already queued are still processed; Run
// returns once the queue drains.
func (l *Loop) Stop() {
	l.queue.Close()
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	return l.queue.Len()
}

func (l *Loop) closed() bool {
	l.queue.mu.Lock()
	defer l.queue.mu.Unlock()
	return l.queue.closed
}

func (l *Loop) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop task panicked", "error", fmt.Sprint(r))
		}
	}()
	fn()
}

// Inline is a Dispatcher that runs every task immediately on the caller's
// goroutine. Callers are responsible for serialising access themselves.
type Inline struct{}

// Post runs fn before returning.
func (Inline) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	fn()
	return true
}
