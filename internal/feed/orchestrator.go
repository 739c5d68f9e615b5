package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/ember/internal/cell"
	"github.com/roach88/ember/internal/loop"
	"github.com/roach88/ember/internal/metrics"
)

// DefaultSettleInterval is the wait between tearing down one subscription
// and opening the next.
const DefaultSettleInterval = 100 * time.Millisecond

// Status is the lifecycle state of the feed.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusSettling Status = "settling"
	StatusLive     Status = "live"
	StatusError    Status = "error"
)

// Request is one (selector, identity) pair the orchestrator was asked to
// serve.
type Request struct {
	Selector Selector
	Identity string
}

// Orchestrator sequences feed subscription teardown and startup.
//
// Thread-safety model:
//   - Apply, Refresh, Stop: any goroutine; the loop goroutine keeps
//     transitions ordered. A subscription opened by a start that was
//     superseded mid-Subscribe is stopped as soon as Subscribe returns.
//   - Event delivery from the source: any goroutine; posted to the
//     dispatcher before touching state
type Orchestrator struct {
	source     Source
	dispatcher loop.Dispatcher
	gen        *loop.Generation
	settle     time.Duration
	after      func(time.Duration) <-chan time.Time
	limit      int
	metrics    *metrics.Collector
	logger     *slog.Logger

	status  *cell.Cell[Status]
	err     *cell.Cell[*Error]
	content *cell.Cell[[]Event]

	mu         sync.Mutex
	current    Request
	applied    bool
	cancelWait context.CancelFunc
	handle     Handle
	seen       map[string]struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSettleInterval overrides DefaultSettleInterval.
func WithSettleInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.settle = d }
}

// WithAfter replaces time.After, letting tests control the settle wait.
func WithAfter(after func(time.Duration) <-chan time.Time) Option {
	return func(o *Orchestrator) { o.after = after }
}

// WithDispatcher sets where continuations run. Default: loop.Inline.
func WithDispatcher(d loop.Dispatcher) Option {
	return func(o *Orchestrator) { o.dispatcher = d }
}

// WithLimit sets the backlog limit requested per subscription.
func WithLimit(n int) Option {
	return func(o *Orchestrator) { o.limit = n }
}

// WithMetrics records transitions on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = c }
}

// WithLogger sets the orchestrator logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates an idle orchestrator over source.
func NewOrchestrator(source Source, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:     source,
		dispatcher: loop.Inline{},
		gen:        loop.NewGeneration(),
		settle:     DefaultSettleInterval,
		after:      time.After,
		limit:      DefaultLimit,
		logger:     slog.Default(),
		status:     cell.Named("feed.status", StatusIdle),
		err:        cell.Named[*Error]("feed.error", nil),
		content:    cell.Named[[]Event]("feed.content", nil),
		seen:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Status is the feed lifecycle state.
func (o *Orchestrator) Status() cell.Readable[Status] { return o.status }

// Err is the current feed-level error, nil when healthy.
func (o *Orchestrator) Err() cell.Readable[*Error] { return o.err }

// Content is the accumulated feed, newest first.
func (o *Orchestrator) Content() cell.Readable[[]Event] { return o.content }

// Current returns the latest request.
func (o *Orchestrator) Current() Request {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Apply transitions the feed to serve sel for identity.
// Errors never propagate; they are surfaced on Err.
func (o *Orchestrator) Apply(sel Selector, identity string) {
	req := Request{Selector: sel, Identity: identity}
	token := o.gen.Next()

	o.mu.Lock()
	o.current = req
	o.applied = true
	if o.cancelWait != nil {
		o.cancelWait()
	}
	waitCtx, cancel := context.WithCancel(context.Background())
	o.cancelWait = cancel
	o.mu.Unlock()

	o.logger.Debug("feed transition requested",
		"selector", sel,
		"authenticated", identity != "",
		"generation", token,
	)

	if err := o.teardown(); err != nil {
		cancel()
		o.fail(token, &Error{Code: CodeInternal, Selector: sel, Message: "teardown failed", Err: err})
		return
	}

	o.status.Set(StatusSettling)

	timer := o.after(o.settle)
	go func() {
		select {
		case <-waitCtx.Done():
			o.abandon(req, token)
			return
		case <-timer:
		}
		if !o.dispatcher.Post(func() { o.start(req, token) }) {
			o.abandon(req, token)
		}
	}()
}

// Refresh re-applies the current request. No-op before the first Apply.
func (o *Orchestrator) Refresh() {
	o.mu.Lock()
	req, applied := o.current, o.applied
	o.mu.Unlock()
	if !applied {
		return
	}
	o.Apply(req.Selector, req.Identity)
}

// Stop tears down the feed and supersedes any pending transition.
func (o *Orchestrator) Stop() {
	o.gen.Next()
	o.mu.Lock()
	if o.cancelWait != nil {
		o.cancelWait()
		o.cancelWait = nil
	}
	o.mu.Unlock()

	if err := o.teardown(); err != nil {
		o.logger.Error("feed teardown failed", "error", err)
	}
	o.status.Set(StatusIdle)
}

// Watch re-applies whenever the selection or identity changes. The replay
// on subscribe applies the initial pair. Returns an unsubscribe handle.
func (o *Orchestrator) Watch(selection cell.Readable[Selector], identity cell.Readable[string]) func() {
	pair := cell.Combine(selection, identity, func(sel Selector, id string) Request {
		return Request{Selector: sel, Identity: id}
	})

	var mu sync.Mutex
	var last *Request
	unsub := pair.Subscribe(func(req Request) {
		mu.Lock()
		if last != nil && *last == req {
			mu.Unlock()
			return
		}
		r := req
		last = &r
		mu.Unlock()
		o.Apply(req.Selector, req.Identity)
	})

	return func() {
		unsub()
		pair.Close()
	}
}

// teardown runs steps 1 and 2: stop every subscription and clear content.
func (o *Orchestrator) teardown() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during teardown: %v", r)
		}
	}()

	o.source.StopAll()

	o.mu.Lock()
	o.handle = ""
	o.seen = make(map[string]struct{})
	o.mu.Unlock()

	o.content.Set(nil)
	o.err.Set(nil)
	return nil
}

// start runs step 4 on the dispatcher once the settle wait elapsed.
func (o *Orchestrator) start(req Request, token int64) {
	defer func() {
		if r := recover(); r != nil {
			o.fail(token, &Error{
				Code:     CodeInternal,
				Selector: req.Selector,
				Message:  fmt.Sprintf("panic starting subscription: %v", r),
			})
		}
	}()

	if !o.gen.IsCurrent(token) {
		o.abandon(req, token)
		return
	}

	filter, err := FilterFor(req.Selector, req.Identity, o.limit)
	if err != nil {
		fe, ok := err.(*Error)
		if !ok {
			fe = &Error{Code: CodeInternal, Selector: req.Selector, Message: "build filter", Err: err}
		}
		o.metrics.FeedSubscription(string(req.Selector), string(fe.Code))
		o.fail(token, fe)
		return
	}

	h, err := o.source.Subscribe(context.Background(), filter, o.deliverFor(token))
	if err != nil {
		o.metrics.FeedSubscription(string(req.Selector), string(CodeSubscribeFailed))
		o.fail(token, &Error{
			Code:     CodeSubscribeFailed,
			Selector: req.Selector,
			Message:  "subscribe failed",
			Err:      err,
		})
		return
	}

	// A transition that landed while Subscribe was in flight has already
	// torn down; the new subscription is its orphan.
	o.mu.Lock()
	if !o.gen.IsCurrent(token) {
		o.mu.Unlock()
		o.source.Stop(h)
		o.abandon(req, token)
		return
	}
	o.handle = h
	o.mu.Unlock()

	o.metrics.FeedSubscription(string(req.Selector), "ok")
	o.setStatus(token, StatusLive)
	o.logger.Info("feed subscription started",
		"selector", req.Selector,
		"handle", h,
		"generation", token,
	)
}

// deliverFor returns the event callback for the subscription started under
// token. Events for a superseded generation are dropped.
func (o *Orchestrator) deliverFor(token int64) func(Event) {
	return func(ev Event) {
		o.dispatcher.Post(func() { o.accept(token, ev) })
	}
}

func (o *Orchestrator) accept(token int64, ev Event) {
	if !o.gen.IsCurrent(token) {
		o.metrics.FeedEvent("stale")
		return
	}

	o.mu.Lock()
	if _, dup := o.seen[ev.ID]; dup {
		o.mu.Unlock()
		o.metrics.FeedEvent("duplicate")
		return
	}
	o.seen[ev.ID] = struct{}{}
	limit := o.limit
	o.mu.Unlock()

	o.metrics.FeedEvent("accepted")
	o.content.Update(func(events []Event) []Event {
		return insertNewestFirst(events, ev, limit)
	})
}

// fail surfaces fe unless the transition has been superseded.
func (o *Orchestrator) fail(token int64, fe *Error) {
	if !o.gen.IsCurrent(token) {
		return
	}
	o.logger.Warn("feed transition failed",
		"selector", fe.Selector,
		"code", fe.Code,
		"error", fe,
	)
	o.err.Set(fe)
	o.setStatus(token, StatusError)
}

// setStatus publishes s unless token has been superseded. The check runs
// inside the cell update so a newer transition's status is never
// overwritten.
func (o *Orchestrator) setStatus(token int64, s Status) {
	o.status.Update(func(cur Status) Status {
		if !o.gen.IsCurrent(token) {
			return cur
		}
		return s
	})
}

func (o *Orchestrator) abandon(req Request, token int64) {
	o.metrics.FeedAbandoned(string(req.Selector))
	o.logger.Debug("feed transition abandoned",
		"selector", req.Selector,
		"generation", token,
	)
}

// insertNewestFirst returns a new slice with ev placed by CreatedAt
// (descending, ties broken by ID), truncated to limit.
func insertNewestFirst(events []Event, ev Event, limit int) []Event {
	out := make([]Event, 0, len(events)+1)
	out = append(out, events...)
	i := sort.Search(len(out), func(i int) bool {
		if out[i].CreatedAt != ev.CreatedAt {
			return out[i].CreatedAt < ev.CreatedAt
		}
		return out[i].ID > ev.ID
	})
	out = append(out, Event{})
	copy(out[i+1:], out[i:])
	out[i] = ev
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
