// Package loader implements the coalesced async operation pattern: at most
// one in-flight producer per key, with every concurrent caller for that key
// sharing the identical outcome. Forget is the one exception: it detaches
// the running producer, which may then overlap the next one for the key.
//
// The Pending Operation Table is a singleflight.Group plus a small index of
// which keys currently have a running producer. An entry is inserted when
// the producer starts and removed when it settles, on success, error, or
// panic, so a later call for the same key retries.
//
// Cancellation is advisory. A caller whose context ends stops waiting and
// gets ctx.Err(); the producer keeps running for the callers that remain and
// runs under a context that is detached from any one caller's cancellation.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/ember/internal/metrics"
)

// ErrPanicked wraps a recovered producer panic.
var ErrPanicked = errors.New("producer panicked")

// Producer computes the value for one key.
type Producer[T any] func(ctx context.Context) (T, error)

// Loader deduplicates concurrent work per key.
//
// Thread-safety: Loader is safe for concurrent use.
type Loader[T any] struct {
	name    string
	flight  singleflight.Group
	metrics *metrics.Collector
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]uint64 // key -> flight id of the running producer
	nextID  uint64
}

// Option configures a Loader.
type Option func(*options)

type options struct {
	metrics *metrics.Collector
	logger  *slog.Logger
}

// WithMetrics records call outcomes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithLogger sets the logger for producer failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a loader. name labels log lines and metrics.
func New[T any](name string, opts ...Option) *Loader[T] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Loader[T]{
		name:    name,
		metrics: o.metrics,
		logger:  o.logger,
		pending: make(map[string]uint64),
	}
}

// Ensure returns the outcome of producer for key. If a producer for key is
// already running, the caller waits for that producer instead of starting a
// new one.
func (l *Loader[T]) Ensure(ctx context.Context, key string, producer Producer[T]) (T, error) {
	var zero T
	if producer == nil {
		return zero, fmt.Errorf("loader %s: nil producer for key %q", l.name, key)
	}

	detached := context.WithoutCancel(ctx)
	led := false

	ch := l.flight.DoChan(key, func() (any, error) {
		led = true
		id := l.begin(key)
		defer l.end(key, id)
		return l.run(detached, key, producer)
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		switch {
		case led:
			l.metrics.LoaderCall(l.name, metrics.LoaderStarted)
		default:
			l.metrics.LoaderCall(l.name, metrics.LoaderCoalesced)
		}
		if res.Err != nil {
			if led {
				l.metrics.LoaderCall(l.name, metrics.LoaderFailed)
			}
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	}
}

// Pending reports whether key has a producer running.
func (l *Loader[T]) Pending(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.pending[key]
	return ok
}

// InFlight returns the number of keys with a running producer.
func (l *Loader[T]) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Forget detaches key from its running producer so the next Ensure starts a
// new one. Callers already waiting keep waiting on the old producer, which
// runs to completion alongside the new one and is no longer counted by
// Pending or InFlight. Owners that Forget must discard the old producer's
// result themselves, e.g. with a generation token.
func (l *Loader[T]) Forget(key string) {
	l.flight.Forget(key)
	l.mu.Lock()
	delete(l.pending, key)
	n := len(l.pending)
	l.mu.Unlock()
	l.metrics.LoaderInFlight(l.name, n)
}

func (l *Loader[T]) begin(key string) uint64 {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.pending[key] = id
	n := len(l.pending)
	l.mu.Unlock()

	l.metrics.LoaderInFlight(l.name, n)
	return id
}

// end removes key only if it still belongs to flight id; a Forget followed
// by a new producer must not be undone by the old one settling.
func (l *Loader[T]) end(key string, id uint64) {
	l.mu.Lock()
	if l.pending[key] == id {
		delete(l.pending, key)
	}
	n := len(l.pending)
	l.mu.Unlock()

	l.metrics.LoaderInFlight(l.name, n)
}

// run invokes producer, converting a panic into an error so every waiting
// caller observes the same failure.
func (l *Loader[T]) run(ctx context.Context, key string, producer Producer[T]) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loader %s key %q: %w: %v", l.name, key, ErrPanicked, r)
			l.logger.Error("loader producer panicked",
				"loader", l.name,
				"key", key,
				"error", fmt.Sprint(r),
			)
		}
	}()

	val, err := producer(ctx)
	if err != nil {
		l.logger.Debug("loader producer failed",
			"loader", l.name,
			"key", key,
			"error", err,
		)
		return nil, err
	}
	return val, nil
}
