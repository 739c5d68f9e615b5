package feed

import (
	"context"
	"sync"

	"github.com/roach88/ember/internal/ids"
)

// Handle identifies one live subscription on a Source.
type Handle string

// Source is the feed data collaborator: the network or event-relay client.
//
// Subscribe must not block on event delivery; deliver may be called from
// any goroutine until the subscription is stopped. Stop and StopAll are
// idempotent.
type Source interface {
	Subscribe(ctx context.Context, f Filter, deliver func(Event)) (Handle, error)
	Stop(h Handle)
	StopAll()
}

// MemorySource is an in-process Source. Published events are delivered
// synchronously to every matching live subscription.
//
// Scoped filters are expanded from the graphs set with SetGraph.
type MemorySource struct {
	mu     sync.Mutex
	ids    ids.Generator
	subs   map[Handle]*memorySub
	order  []Handle
	graphs map[Scope]map[string][]string // scope -> owner -> authors
	fail   error
	opened int
}

type memorySub struct {
	filter  Filter
	deliver func(Event)
}

// NewMemorySource creates an empty source. gen may be nil.
func NewMemorySource(gen ids.Generator) *MemorySource {
	if gen == nil {
		gen = ids.UUIDv7{}
	}
	return &MemorySource{
		ids:    gen,
		subs:   make(map[Handle]*memorySub),
		graphs: make(map[Scope]map[string][]string),
	}
}

// SetGraph sets the authors scope resolves to for owner.
func (m *MemorySource) SetGraph(scope Scope, owner string, authors []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.graphs[scope] == nil {
		m.graphs[scope] = make(map[string][]string)
	}
	m.graphs[scope][owner] = append([]string(nil), authors...)
}

// FailNext makes the next Subscribe return err.
func (m *MemorySource) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Subscribe implements Source.
func (m *MemorySource) Subscribe(ctx context.Context, f Filter, deliver func(Event)) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		err := m.fail
		m.fail = nil
		return "", err
	}

	if f.Scope != ScopeNone {
		f.Authors = append([]string(nil), m.graphs[f.Scope][f.Owner]...)
	}

	h := Handle(m.ids.Generate())
	m.subs[h] = &memorySub{filter: f, deliver: deliver}
	m.order = append(m.order, h)
	m.opened++
	return h, nil
}

// Stop implements Source.
func (m *MemorySource) Stop(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(h)
}

// StopAll implements Source.
func (m *MemorySource) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range append([]Handle(nil), m.order...) {
		m.removeLocked(h)
	}
}

func (m *MemorySource) removeLocked(h Handle) {
	if _, ok := m.subs[h]; !ok {
		return
	}
	delete(m.subs, h)
	for i, x := range m.order {
		if x == h {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Publish delivers ev to every live subscription whose filter matches.
func (m *MemorySource) Publish(ev Event) {
	m.mu.Lock()
	var targets []func(Event)
	for _, h := range m.order {
		s := m.subs[h]
		if s.filter.Matches(ev) {
			targets = append(targets, s.deliver)
		}
	}
	m.mu.Unlock()

	for _, deliver := range targets {
		deliver(ev)
	}
}

// Active returns the filters of live subscriptions in open order.
func (m *MemorySource) Active() []Filter {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Filter, 0, len(m.order))
	for _, h := range m.order {
		out = append(out, m.subs[h].filter)
	}
	return out
}

// Opened returns how many subscriptions were ever opened.
func (m *MemorySource) Opened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}
