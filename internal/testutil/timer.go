package testutil

import (
	"sync"
	"time"
)

// ManualTimer is a controllable replacement for time.After.
//
// Each After call registers a pending wait. Nothing fires until Fire or
// FireAll is called.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualTimer struct {
	mu        sync.Mutex
	now       time.Time
	pending   []chan time.Time
	requested []time.Duration
}

// NewManualTimer creates a timer whose clock starts at start.
func NewManualTimer(start time.Time) *ManualTimer {
	return &ManualTimer{now: start}
}

// After has the signature of time.After.
func (m *ManualTimer) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan time.Time, 1)
	m.pending = append(m.pending, ch)
	m.requested = append(m.requested, d)
	return ch
}

// Pending returns how many waits have not fired yet.
func (m *ManualTimer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Requested returns every duration passed to After, in call order.
func (m *ManualTimer) Requested() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.requested...)
}

// Fire releases the oldest pending wait. Returns false if none is pending.
func (m *ManualTimer) Fire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return false
	}
	ch := m.pending[0]
	m.pending = m.pending[1:]
	ch <- m.now
	return true
}

// FireAll releases every pending wait and returns how many fired.
func (m *ManualTimer) FireAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.pending)
	for _, ch := range m.pending {
		ch <- m.now
	}
	m.pending = nil
	return n
}

// Advance moves the reported time forward by d.
func (m *ManualTimer) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
