package cell

import (
	"fmt"
	"log/slog"
	"sync"
)

// Source is anything a View can recompute from.
// Watch registers fn to be called on every notification (including the
// immediate replay) and returns an idempotent unsubscribe handle.
type Source interface {
	Watch(fn func()) (unsubscribe func())
}

// Readable is the read side shared by Cell and View.
type Readable[T any] interface {
	Source
	Get() T
	Subscribe(fn func(T)) (unsubscribe func())
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// Cell is a mutable observable slot.
//
// The zero value is not usable; construct with New.
type Cell[T any] struct {
	mu     sync.Mutex
	value  T
	subs   []subscriber[T]
	nextID uint64
	name   string
}

// New creates a cell holding initial.
func New[T any](initial T) *Cell[T] {
	return &Cell[T]{value: initial}
}

// Named creates a cell with a diagnostic name used in panic logs.
func Named[T any](name string, initial T) *Cell[T] {
	return &Cell[T]{value: initial, name: name}
}

// Get returns the current value. No side effects.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set replaces the value and notifies every current subscriber with it.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	c.value = v
	subs := c.snapshot()
	c.mu.Unlock()

	c.deliver(subs, v)
}

// Update sets the value to fn(current). fn runs while the cell is held, so
// no other Set/Update on this cell interleaves with it. fn must not call
// back into the same cell.
func (c *Cell[T]) Update(fn func(T) T) {
	c.mu.Lock()
	v := fn(c.value)
	c.value = v
	subs := c.snapshot()
	c.mu.Unlock()

	c.deliver(subs, v)
}

// Subscribe registers fn, invokes it once with the current value, and
// returns an unsubscribe handle. Calling the handle more than once is a
// no-op.
func (c *Cell[T]) Subscribe(fn func(T)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscriber[T]{id: id, fn: fn})
	v := c.value
	c.mu.Unlock()

	c.invoke(fn, v)

	var once sync.Once
	return func() {
		once.Do(func() { c.remove(id) })
	}
}

// Watch implements Source.
func (c *Cell[T]) Watch(fn func()) func() {
	return c.Subscribe(func(T) { fn() })
}

// Len returns the number of live subscribers.
func (c *Cell[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// snapshot copies the subscriber list. Caller holds c.mu.
func (c *Cell[T]) snapshot() []subscriber[T] {
	if len(c.subs) == 0 {
		return nil
	}
	out := make([]subscriber[T], len(c.subs))
	copy(out, c.subs)
	return out
}

func (c *Cell[T]) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subs {
		if s.id == id {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}

func (c *Cell[T]) deliver(subs []subscriber[T], v T) {
	for _, s := range subs {
		c.invoke(s.fn, v)
	}
}

// invoke runs one subscriber, isolating panics from the rest.
func (c *Cell[T]) invoke(fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("cell subscriber panicked",
				"cell", c.name,
				"error", fmt.Sprint(r),
			)
		}
	}()
	fn(v)
}
