package cell

import (
	"sync"
	"sync/atomic"
)

// View is a read-only cell computed from one or more sources.
type View[T any] struct {
	out     *Cell[T]
	compute func() T
	ready   atomic.Bool
	closed  atomic.Bool

	mu     sync.Mutex
	unsubs []func()

	// runMu guards the recompute drain. At most one goroutine computes and
	// publishes at a time; others mark the view dirty and return.
	runMu   sync.Mutex
	running bool
	dirty   bool
}

// Derive returns a view whose value is compute(), recomputed and pushed to
// the view's own subscribers every time any source notifies.
//
// compute should read its inputs through the sources' Get methods. It may be
// called while a source is mid-notification.
func Derive[T any](compute func() T, sources ...Source) *View[T] {
	v := &View[T]{
		out:     New(compute()),
		compute: compute,
	}

	// Sources replay on Watch; ready stays false until every source is
	// attached so construction computes exactly once.
	unsubs := make([]func(), 0, len(sources))
	for _, src := range sources {
		unsubs = append(unsubs, src.Watch(v.recompute))
	}

	v.mu.Lock()
	v.unsubs = unsubs
	v.mu.Unlock()

	v.ready.Store(true)
	// A source may have changed between the first compute and attachment.
	v.recompute()
	return v
}

// Map derives a view from a single typed source.
func Map[A, T any](src Readable[A], fn func(A) T) *View[T] {
	return Derive(func() T { return fn(src.Get()) }, src)
}

// Combine derives a view from two typed sources.
func Combine[A, B, T any](a Readable[A], b Readable[B], fn func(A, B) T) *View[T] {
	return Derive(func() T { return fn(a.Get(), b.Get()) }, a, b)
}

// recompute publishes compute() for the latest source state. A notification
// that arrives while another one is publishing, from any goroutine or from
// a subscriber of this view, is folded into one more pass by the publisher,
// so an older value is never published after a newer one.
func (v *View[T]) recompute() {
	if !v.ready.Load() || v.closed.Load() {
		return
	}

	v.runMu.Lock()
	v.dirty = true
	if v.running {
		v.runMu.Unlock()
		return
	}
	v.running = true
	v.runMu.Unlock()

	drained := false
	defer func() {
		if !drained {
			v.runMu.Lock()
			v.running = false
			v.runMu.Unlock()
		}
	}()

	for v.nextPass() {
		if v.closed.Load() {
			continue
		}
		v.out.Set(v.compute())
	}
	drained = true
}

// nextPass consumes the dirty flag. When nothing is pending it releases the
// publisher role in the same critical section.
func (v *View[T]) nextPass() bool {
	v.runMu.Lock()
	defer v.runMu.Unlock()
	if !v.dirty {
		v.running = false
		return false
	}
	v.dirty = false
	return true
}

// Get returns the most recently computed value.
func (v *View[T]) Get() T {
	return v.out.Get()
}

// Subscribe registers fn with replay-last semantics.
func (v *View[T]) Subscribe(fn func(T)) func() {
	return v.out.Subscribe(fn)
}

// Watch implements Source so views compose.
func (v *View[T]) Watch(fn func()) func() {
	return v.out.Watch(fn)
}

// Close detaches the view from its sources. The view keeps its last value.
// Closing twice is a no-op.
func (v *View[T]) Close() {
	if v.closed.Swap(true) {
		return
	}
	v.mu.Lock()
	unsubs := v.unsubs
	v.unsubs = nil
	v.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}
