package testutil

import "sync"

// ManualDispatcher queues posted continuations until RunPending is called.
//
// It satisfies loop.Dispatcher without importing it, so any package can use
// it in tests.
type ManualDispatcher struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
}

// NewManualDispatcher creates an open dispatcher with an empty queue.
func NewManualDispatcher() *ManualDispatcher {
	return &ManualDispatcher{}
}

// Post queues fn. Returns false after Close.
func (d *ManualDispatcher) Post(fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || fn == nil {
		return false
	}
	d.tasks = append(d.tasks, fn)
	return true
}

// Len returns the number of queued tasks.
func (d *ManualDispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// RunPending runs queued tasks in FIFO order, including tasks posted while
// running, until the queue is empty. Returns how many ran.
func (d *ManualDispatcher) RunPending() int {
	ran := 0
	for {
		d.mu.Lock()
		if len(d.tasks) == 0 {
			d.mu.Unlock()
			return ran
		}
		fn := d.tasks[0]
		d.tasks = d.tasks[1:]
		d.mu.Unlock()

		fn()
		ran++
	}
}

// Close rejects further posts and drops anything queued.
func (d *ManualDispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.tasks = nil
}
