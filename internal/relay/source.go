package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/ember/internal/feed"
	"github.com/roach88/ember/internal/ids"
)

// ErrClosed is returned by operations on a closed Source.
var ErrClosed = errors.New("relay connection closed")

// GraphResolver expands scoped filters into concrete author lists.
type GraphResolver interface {
	Authors(ctx context.Context, scope feed.Scope, owner string) ([]string, error)
}

// Source is a feed.Source backed by a single relay connection.
//
// Thread-safety: all methods are safe for concurrent use. deliver callbacks
// run on the connection's read goroutine.
type Source struct {
	url    string
	conn   *websocket.Conn
	ids    ids.Generator
	graph  GraphResolver
	logger *slog.Logger

	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[feed.Handle]*subscription
	err  error

	done      chan struct{}
	closeOnce sync.Once
}

type subscription struct {
	filter   feed.Filter
	deliver  func(feed.Event)
	eose     chan struct{}
	eoseOnce sync.Once
	// oneShot marks a Fetch subscription. StopAll leaves it to finish.
	oneShot bool
}

func (s *subscription) markEOSE() {
	s.eoseOnce.Do(func() { close(s.eose) })
}

// Option configures a Source.
type Option func(*Source)

// WithIDs sets the subscription id generator. Default: UUIDv7.
func WithIDs(g ids.Generator) Option {
	return func(s *Source) { s.ids = g }
}

// WithGraph sets the resolver for scoped filters. Without one, scoped
// subscriptions fail.
func WithGraph(g GraphResolver) Option {
	return func(s *Source) { s.graph = g }
}

// WithLogger sets the source logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) { s.logger = l }
}

// Dial connects to the relay at url.
func Dial(ctx context.Context, url string, opts ...Option) (*Source, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", url, err)
	}

	s := &Source{
		url:    url,
		conn:   conn,
		ids:    ids.UUIDv7{},
		logger: slog.Default(),
		subs:   make(map[feed.Handle]*subscription),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("relay", url)

	go s.readLoop()
	return s, nil
}

// UseGraph replaces the scope resolver. Useful when the resolver queries
// this same Source.
func (s *Source) UseGraph(g GraphResolver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = g
}

// Subscribe implements feed.Source.
func (s *Source) Subscribe(ctx context.Context, f feed.Filter, deliver func(feed.Event)) (feed.Handle, error) {
	h, _, err := s.open(ctx, f, deliver, false)
	return h, err
}

func (s *Source) open(ctx context.Context, f feed.Filter, deliver func(feed.Event), oneShot bool) (feed.Handle, *subscription, error) {
	if f.Scope != feed.ScopeNone {
		s.mu.Lock()
		graph := s.graph
		s.mu.Unlock()
		if graph == nil {
			return "", nil, fmt.Errorf("relay %s: no graph resolver for scope %q", s.url, f.Scope)
		}
		authors, err := graph.Authors(ctx, f.Scope, f.Owner)
		if err != nil {
			return "", nil, fmt.Errorf("resolve %s of %s: %w", f.Scope, f.Owner, err)
		}
		if len(authors) == 0 {
			return "", nil, fmt.Errorf("resolve %s of %s: no authors", f.Scope, f.Owner)
		}
		f.Authors = authors
		f.Scope, f.Owner = feed.ScopeNone, ""
	}

	h := feed.Handle(s.ids.Generate())
	sub := &subscription{filter: f, deliver: deliver, eose: make(chan struct{}), oneShot: oneShot}

	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return "", nil, err
	}
	s.subs[h] = sub
	s.mu.Unlock()

	if err := s.write([]any{"REQ", string(h), wireFilter(f)}); err != nil {
		s.mu.Lock()
		delete(s.subs, h)
		s.mu.Unlock()
		return "", nil, fmt.Errorf("send REQ: %w", err)
	}

	s.logger.Debug("relay subscription opened",
		"sub_id", h,
		"selector", f.Selector,
	)
	return h, sub, nil
}

// Stop implements feed.Source. A Fetch waiting on h returns what it has
// collected so far.
func (s *Source) Stop(h feed.Handle) {
	s.mu.Lock()
	sub, ok := s.subs[h]
	delete(s.subs, h)
	closed := s.err != nil
	s.mu.Unlock()

	if !ok {
		return
	}
	sub.markEOSE()
	if closed {
		return
	}
	if err := s.write([]any{"CLOSE", string(h)}); err != nil {
		s.logger.Warn("send CLOSE failed", "sub_id", h, "error", err)
	}
}

// StopAll implements feed.Source. It stops every Subscribe handle; Fetch
// queries in flight keep running to completion.
func (s *Source) StopAll() {
	s.mu.Lock()
	handles := make([]feed.Handle, 0, len(s.subs))
	for h, sub := range s.subs {
		if sub.oneShot {
			continue
		}
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		s.Stop(h)
	}
}

// Fetch opens a subscription for f, collects events until the relay
// signals end of stored events, then closes it.
func (s *Source) Fetch(ctx context.Context, f feed.Filter) ([]feed.Event, error) {
	var mu sync.Mutex
	var events []feed.Event

	h, sub, err := s.open(ctx, f, func(ev feed.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}, true)
	if err != nil {
		return nil, err
	}
	defer s.Stop(h)

	select {
	case <-sub.eose:
	case <-s.done:
		return nil, s.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()
	return events, nil
}

// FetchReceipts implements ember.Fetcher.
func (s *Source) FetchReceipts(ctx context.Context, contentID string) ([]feed.Event, error) {
	return s.Fetch(ctx, feed.Filter{
		Kinds: []int{feed.KindReceipt},
		Tags:  map[string][]string{"e": {contentID}},
	})
}

// Active returns how many subscriptions are open.
func (s *Source) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Done is closed when the connection ends.
func (s *Source) Done() <-chan struct{} { return s.done }

// Err returns why the connection ended, nil while open.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close sends a close frame and tears down the connection.
func (s *Source) Close() error {
	s.writeMu.Lock()
	err := s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	s.writeMu.Unlock()

	s.shutdown(ErrClosed)
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("close message: %w", err)
	}
	return nil
}

func (s *Source) shutdown(cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = cause
		s.subs = make(map[feed.Handle]*subscription)
		s.mu.Unlock()
		s.conn.Close()
		close(s.done)
	})
}

func (s *Source) write(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *Source) readLoop() {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.shutdown(ErrClosed)
			} else {
				s.shutdown(fmt.Errorf("%w: %v", ErrClosed, err))
			}
			return
		}

		msg, err := decodeMessage(raw)
		if err != nil {
			s.logger.Warn("dropping relay frame", "error", err)
			continue
		}
		s.route(msg)
	}
}

func (s *Source) route(msg message) {
	if msg.Label == "NOTICE" {
		s.logger.Info("relay notice", "message", msg.Reason)
		return
	}

	s.mu.Lock()
	sub, ok := s.subs[feed.Handle(msg.SubID)]
	if ok && msg.Label == "CLOSED" {
		delete(s.subs, feed.Handle(msg.SubID))
	}
	s.mu.Unlock()

	if !ok {
		s.logger.Debug("frame for unknown subscription",
			"label", msg.Label,
			"sub_id", msg.SubID,
		)
		return
	}

	switch msg.Label {
	case "EVENT":
		s.deliver(sub, msg.Event)
	case "EOSE":
		sub.markEOSE()
	case "CLOSED":
		s.logger.Warn("relay closed subscription",
			"sub_id", msg.SubID,
			"reason", msg.Reason,
		)
		sub.markEOSE()
	}
}

func (s *Source) deliver(sub *subscription, ev feed.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event delivery panicked",
				"event_id", ev.ID,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	sub.deliver(ev)
}
