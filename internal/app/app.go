// Package app constructs the client core. Every store is an explicitly
// owned instance created here; nothing is looked up globally.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/roach88/ember/internal/cell"
	"github.com/roach88/ember/internal/config"
	"github.com/roach88/ember/internal/ember"
	"github.com/roach88/ember/internal/feed"
	"github.com/roach88/ember/internal/loop"
	"github.com/roach88/ember/internal/metrics"
	"github.com/roach88/ember/internal/notify"
	"github.com/roach88/ember/internal/relay"
	"github.com/roach88/ember/internal/router"
	"github.com/roach88/ember/internal/store"
	"github.com/roach88/ember/internal/vault"
)

// Deps are the collaborators the caller may inject. Nil fields get
// defaults derived from the config.
type Deps struct {
	Store       store.Store
	Source      feed.Source
	Fetcher     ember.Fetcher
	Credentials vault.CredentialProvider
	Presenter   notify.Presenter
	Metrics     *metrics.Collector
	Logger      *slog.Logger

	// Identity is the authenticated pubkey at startup, empty when logged
	// out.
	Identity string

	// FeedOptions are appended to the orchestrator options built from the
	// config, e.g. feed.WithAfter in tests.
	FeedOptions []feed.Option
}

// App is one running client core.
type App struct {
	Config    config.Config
	Loop      *loop.Loop
	Store     store.Store
	Router    *router.Router
	Selection *feed.Selection
	Identity  *cell.Cell[string]
	Feed      *feed.Orchestrator
	Embers    *ember.Tracker
	Vault     *vault.Vault
	Notifier  *notify.Dispatcher
	Metrics   *metrics.Collector

	source  feed.Source
	logger  *slog.Logger
	closers []func() error
	unsubs  []func()
}

// New builds an App from cfg. Close releases what New opened.
func New(ctx context.Context, cfg config.Config, deps Deps) (*App, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.NewCollector("ember")
	}

	a := &App{
		Config:  cfg,
		Metrics: m,
		logger:  logger,
	}

	st := deps.Store
	if st == nil {
		opened, closer, err := OpenStore(cfg, logger)
		if err != nil {
			return nil, err
		}
		st = opened
		a.closers = append(a.closers, closer)
	}
	a.Store = st

	src := deps.Source
	fetcher := deps.Fetcher
	if src == nil {
		s, err := a.openSource(ctx)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		src = s
		if f, ok := s.(ember.Fetcher); ok && fetcher == nil {
			fetcher = f
		}
	}
	if fetcher == nil {
		fetcher = ember.FetcherFunc(func(context.Context, string) ([]feed.Event, error) {
			return nil, nil
		})
	}
	a.source = src

	creds := deps.Credentials
	if creds == nil {
		creds = noCredentials{}
	}
	presenter := deps.Presenter
	if presenter == nil {
		presenter = notify.LogPresenter{Logger: logger}
	}

	tabs := make([]router.Tab, 0, len(cfg.DetailTabs))
	for _, t := range cfg.DetailTabs {
		tab, err := router.ParseTab(t)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("detail_tabs: %w", err)
		}
		tabs = append(tabs, tab)
	}

	a.Loop = loop.New(loop.WithLogger(logger))
	a.Router = router.New(router.WithDetailTabs(tabs...), router.WithLogger(logger))
	a.Selection = feed.NewSelection(st)
	a.Identity = cell.Named("auth.identity", deps.Identity)

	feedOpts := []feed.Option{
		feed.WithSettleInterval(cfg.SettleInterval),
		feed.WithDispatcher(a.Loop),
		feed.WithLimit(cfg.FeedLimit),
		feed.WithMetrics(m),
		feed.WithLogger(logger),
	}
	feedOpts = append(feedOpts, deps.FeedOptions...)
	a.Feed = feed.NewOrchestrator(src, feedOpts...)

	a.Embers = ember.NewTracker(fetcher, m, ember.WithLogger(logger))
	a.Vault = vault.New(st, creds, vault.XChaCha{},
		vault.WithMetrics(m),
		vault.WithLogger(logger),
	)
	a.Notifier = notify.NewDispatcher(presenter,
		notify.WithRate(cfg.NotifyRate, cfg.NotifyBurst),
		notify.WithMetrics(m),
		notify.WithLogger(logger),
	)
	return a, nil
}

// Start wires the feed to the selection and identity cells and notifies on
// newly arrived feed heads. Run calls Start; tests driving the loop by
// hand may call it directly.
func (a *App) Start() {
	a.unsubs = append(a.unsubs, a.Feed.Watch(a.Selection.Active(), a.Identity))

	var mu sync.Mutex
	var head string
	a.unsubs = append(a.unsubs, a.Feed.Content().Subscribe(func(events []feed.Event) {
		mu.Lock()
		defer mu.Unlock()
		if len(events) == 0 {
			head = ""
			return
		}
		if events[0].ID == head {
			return
		}
		first := head == ""
		head = events[0].ID
		if !first {
			a.Notifier.Notify(notify.ForEvent(events[0]))
		}
	}))
}

// Run starts the core and processes the event loop until ctx ends.
func (a *App) Run(ctx context.Context) error {
	a.Start()
	a.logger.Info("client core running",
		"storage", a.Config.Storage,
		"relays", len(a.Config.Relays),
		"settle_interval", a.Config.SettleInterval,
	)

	err := a.Loop.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Close stops the feed and releases opened resources in reverse order.
func (a *App) Close() error {
	for _, unsub := range a.unsubs {
		unsub()
	}
	a.unsubs = nil
	if a.Feed != nil {
		a.Feed.Stop()
	}
	if a.Notifier != nil {
		a.Notifier.Wait()
	}
	if a.Router != nil {
		a.Router.Close()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openSource(ctx context.Context) (feed.Source, error) {
	if len(a.Config.Relays) == 0 {
		a.logger.Info("no relays configured, using in-memory feed source")
		return feed.NewMemorySource(nil), nil
	}

	url := a.Config.Relays[0]
	src, err := relay.Dial(ctx, url, relay.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("connect relay: %w", err)
	}
	src.UseGraph(relay.ContactGraph{Relay: src})
	a.closers = append(a.closers, src.Close)
	return src, nil
}

// OpenStore opens the configured storage backend.
func OpenStore(cfg config.Config, logger *slog.Logger) (store.Store, func() error, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return store.NewMemory(), func() error { return nil }, nil

	case config.StorageBadger:
		bc := store.DefaultBadgerConfig(cfg.DatabasePath())
		bc.Logger = logger
		b, err := store.OpenBadger(bc)
		if err != nil {
			return nil, nil, fmt.Errorf("open badger store: %w", err)
		}
		return b, b.Close, nil

	default:
		if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
		}
		s, err := store.OpenSQLite(cfg.DatabasePath())
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s.Close, nil
	}
}

// noCredentials cancels every master key request.
type noCredentials struct{}

func (noCredentials) RequestMasterKey(context.Context, bool) ([]byte, error) {
	return nil, nil
}
