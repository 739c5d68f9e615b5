// Package notify presents user-facing notifications without ever letting a
// presentation failure reach the caller.
package notify

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"github.com/roach88/ember/internal/feed"
	"github.com/roach88/ember/internal/metrics"
	"github.com/roach88/ember/internal/router"
)

// Result labels for the notifications metric.
const (
	ResultPresented = "presented"
	ResultFailed    = "failed"
	ResultThrottled = "throttled"
)

// maxBody is the body length in runes after NFC normalization.
const maxBody = 140

// Presenter shows one notification. Tapping it should follow deepLink.
type Presenter interface {
	Present(title, body, id, deepLink string) error
}

// Notification is one user-facing notice.
type Notification struct {
	ID       string
	Title    string
	Body     string
	DeepLink string
}

// ForEvent builds the notification for an incoming event.
func ForEvent(ev feed.Event) Notification {
	n := Notification{
		ID:       ev.ID,
		DeepLink: router.DeepLink(router.PostDetail{EventID: ev.ID}),
	}
	switch ev.Kind {
	case feed.KindReceipt:
		n.Title = "New ember"
	case feed.KindLongRead:
		n.Title = "New article"
	default:
		n.Title = "New note"
	}
	n.Body = norm.NFC.String(ev.Content)
	if r := []rune(n.Body); len(r) > maxBody {
		n.Body = string(r[:maxBody]) + "…"
	}
	return n
}

// Open follows a tapped notification's deep link on r.
func Open(r *router.Router, n Notification, origin router.Tab) error {
	if err := r.Follow(n.DeepLink, origin); err != nil {
		return fmt.Errorf("open notification %s: %w", n.ID, err)
	}
	return nil
}

// Dispatcher hands notifications to a Presenter asynchronously.
//
// Thread-safety: Dispatcher is safe for concurrent use.
type Dispatcher struct {
	presenter Presenter
	limiter   *rate.Limiter
	metrics   *metrics.Collector
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRate allows perSecond notifications with the given burst.
// Default: unlimited.
func WithRate(perSecond float64, burst int) Option {
	return func(d *Dispatcher) {
		d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithMetrics records delivery results on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(d *Dispatcher) { d.metrics = c }
}

// WithLogger sets the dispatcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a dispatcher over p.
func NewDispatcher(p Presenter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		presenter: p,
		limiter:   rate.NewLimiter(rate.Inf, 0),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify presents n in the background. An empty ID gets a fresh one.
// Returns the ID used, or "" when throttled.
func (d *Dispatcher) Notify(n Notification) string {
	if !d.limiter.Allow() {
		d.metrics.Notification(ResultThrottled)
		d.logger.Debug("notification throttled", "title", n.Title)
		return ""
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.present(n)
	}()
	return n.ID
}

// Wait blocks until every notification handed off so far has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) present(n Notification) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.Notification(ResultFailed)
			d.logger.Error("notification presenter panicked",
				"notification_id", n.ID,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	if err := d.presenter.Present(n.Title, n.Body, n.ID, n.DeepLink); err != nil {
		d.metrics.Notification(ResultFailed)
		d.logger.Warn("notification failed",
			"notification_id", n.ID,
			"error", err,
		)
		return
	}
	d.metrics.Notification(ResultPresented)
}

// LogPresenter writes notifications to a logger. Used by the CLI.
type LogPresenter struct {
	Logger *slog.Logger
}

// Present implements Presenter.
func (p LogPresenter) Present(title, body, id, deepLink string) error {
	l := p.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Info("notification",
		"notification_id", id,
		"title", title,
		"body", body,
		"deep_link", deepLink,
	)
	return nil
}
