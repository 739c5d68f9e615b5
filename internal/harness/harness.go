package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roach88/ember/internal/app"
	"github.com/roach88/ember/internal/config"
	"github.com/roach88/ember/internal/feed"
	"github.com/roach88/ember/internal/ids"
	"github.com/roach88/ember/internal/metrics"
	"github.com/roach88/ember/internal/notify"
	"github.com/roach88/ember/internal/router"
	"github.com/roach88/ember/internal/store"
	"github.com/roach88/ember/internal/testutil"
	"github.com/roach88/ember/internal/vault"
)

// KindOutcome records the result of a wallet_unlock step.
const KindOutcome = "outcome"

// settleTimeout bounds how long a settle step waits for the orchestrator
// to leave the settling state once its timers fired.
const settleTimeout = time.Second

// Harness executes one scenario against a wired client core.
//
// Thread-safety: steps run on the caller's goroutine. Trace recording is
// guarded because vault commits notify from the loader goroutine.
type Harness struct {
	app       *app.App
	source    *feed.MemorySource
	timer     *testutil.ManualTimer
	disp      *testutil.ManualDispatcher
	presenter *recordingPresenter
	logger    *slog.Logger

	mu     sync.Mutex
	result *Result
	last   map[string]string
	unsubs []func()

	presented map[string]notify.Notification
	order     []string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory store and source. Step
// errors that were not expected, and failed assertions, are reported in
// Result.Errors; the returned error is reserved for scenarios that cannot
// be set up.
func Run(scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer h.close()

	for i, step := range scenario.Steps {
		h.step(i, step)
	}

	h.result.State = h.snapshot()
	for _, errMsg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(errMsg)
	}
	return h.result, nil
}

func newHarness(s *Scenario) (*Harness, error) {
	h := &Harness{
		source:    feed.NewMemorySource(ids.NewFixed("sub")),
		timer:     testutil.NewManualTimer(time.Unix(0, 0)),
		disp:      testutil.NewManualDispatcher(),
		presenter: &recordingPresenter{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in scenarios
		result:    NewResult(),
		last:      make(map[string]string),
		presented: make(map[string]notify.Notification),
	}

	for i, g := range s.Graph {
		scope := feed.Scope(g.Scope)
		if scope != feed.ScopeFollows && scope != feed.ScopeCircles {
			return nil, fmt.Errorf("graph[%d]: unknown scope %q", i, g.Scope)
		}
		h.source.SetGraph(scope, g.Owner, g.Authors)
	}

	answers := make([]testutil.CredentialAnswer, 0, len(s.Credentials))
	for _, c := range s.Credentials {
		if c.Cancel {
			answers = append(answers, testutil.Cancel())
			continue
		}
		answers = append(answers, testutil.Key(c.Key))
	}

	cfg := config.Default()
	cfg.Storage = config.StorageMemory
	cfg.NotifyRate = 1000
	cfg.NotifyBurst = 1000

	a, err := app.New(context.Background(), cfg, app.Deps{
		Store:       store.NewMemory(),
		Source:      h.source,
		Credentials: testutil.NewScriptedCredentials(answers...),
		Presenter:   h.presenter,
		Metrics:     metrics.NewCollector("harness"),
		Logger:      h.logger,
		Identity:    s.Identity,
		FeedOptions: []feed.Option{
			feed.WithAfter(h.timer.After),
			feed.WithDispatcher(h.disp),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build client core: %w", err)
	}
	h.app = a

	if s.Selector != "" {
		sel, err := feed.ParseSelector(s.Selector)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("selector: %w", err)
		}
		if err := a.Selection.Select(sel); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	h.observe()
	a.Start()
	h.drain()
	return h, nil
}

// observe records every state change into the trace.
func (h *Harness) observe() {
	a := h.app
	h.unsubs = append(h.unsubs,
		a.Router.State().Subscribe(func(s router.State) {
			h.record(KindRoute, s.Active.String())
			h.record(KindTab, string(s.Tab))
		}),
		a.Feed.Status().Subscribe(func(s feed.Status) {
			h.record(KindFeedStatus, string(s))
		}),
		a.Feed.Err().Subscribe(func(e *feed.Error) {
			h.record(KindFeedError, errorCode(e))
		}),
		a.Feed.Content().Subscribe(func(events []feed.Event) {
			h.record(KindContent, strings.Join(eventIDs(events), ","))
		}),
		a.Vault.Secret().Subscribe(func(*vault.Secret) {
			h.record(KindVault, h.vaultState())
		}),
		a.Vault.Info().Subscribe(func(*vault.Info) {
			h.record(KindVault, h.vaultState())
		}),
	)
}

// record appends a state change, suppressing repeats of the last value of
// the same kind.
func (h *Harness) record(kind, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.last[kind]; ok && prev == value {
		return
	}
	h.last[kind] = value
	h.result.AddTrace(kind, value)
}

func (h *Harness) trace(kind, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.AddTrace(kind, value)
}

func (h *Harness) step(i int, step Step) {
	h.trace(KindStep, describe(step))

	outcome, err := h.execute(step)
	h.drain()

	if outcome != "" {
		h.trace(KindOutcome, outcome)
	}
	if err != nil {
		h.trace(KindError, err.Error())
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	exp := step.Expect
	switch {
	case exp == nil || exp.Error == "":
		if err != nil {
			h.result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", i, step.Do, err))
		}
	case err == nil:
		h.result.AddError(fmt.Sprintf("steps[%d] %s: expected error containing %q, got none", i, step.Do, exp.Error))
	case !strings.Contains(err.Error(), exp.Error):
		h.result.AddError(fmt.Sprintf("steps[%d] %s: expected error containing %q, got %q", i, step.Do, exp.Error, err.Error()))
	}
	if exp != nil && exp.Outcome != "" && exp.Outcome != outcome {
		h.result.AddError(fmt.Sprintf("steps[%d] %s: expected outcome %q, got %q", i, step.Do, exp.Outcome, outcome))
	}
}

// execute performs one step. The returned string is the wallet unlock
// outcome, empty for every other step.
func (h *Harness) execute(step Step) (string, error) {
	a := h.app
	ctx := context.Background()

	switch step.Do {
	case StepNavigate:
		tab, err := h.tabArg(step.Args, "tab", "")
		if err != nil {
			return "", err
		}
		a.Router.NavigateToPage(tab)

	case StepOpenPost:
		id, err := argString(step.Args, "id")
		if err != nil {
			return "", err
		}
		origin, err := h.tabArg(step.Args, "origin", h.visibleTab())
		if err != nil {
			return "", err
		}
		a.Router.OpenPost(id, origin, nil)

	case StepOpenProfile:
		pubkey, err := argString(step.Args, "pubkey")
		if err != nil {
			return "", err
		}
		origin, err := h.tabArg(step.Args, "origin", h.visibleTab())
		if err != nil {
			return "", err
		}
		a.Router.OpenProfile(pubkey, origin)

	case StepBack:
		a.Router.GoBack()

	case StepFollow:
		uri, err := argString(step.Args, "uri")
		if err != nil {
			return "", err
		}
		origin, err := h.tabArg(step.Args, "origin", h.visibleTab())
		if err != nil {
			return "", err
		}
		return "", a.Router.Follow(uri, origin)

	case StepSelect:
		s, err := argString(step.Args, "selector")
		if err != nil {
			return "", err
		}
		sel, err := feed.ParseSelector(s)
		if err != nil {
			return "", err
		}
		return "", a.Selection.Select(sel)

	case StepSelectCategory:
		c, err := argString(step.Args, "category")
		if err != nil {
			return "", err
		}
		cat := feed.Category(c)
		switch cat {
		case feed.CategoryNotes, feed.CategoryLongReads, feed.CategoryLive:
		default:
			return "", fmt.Errorf("unknown feed category %q", c)
		}
		a.Selection.SelectCategory(cat)

	case StepLogin:
		id, err := argString(step.Args, "identity")
		if err != nil {
			return "", err
		}
		a.Identity.Set(id)

	case StepLogout:
		a.Identity.Set("")

	case StepSettle:
		return "", h.settle()

	case StepRefresh:
		a.Feed.Refresh()

	case StepPublish:
		ev, err := eventArg(step.Args)
		if err != nil {
			return "", err
		}
		h.source.Publish(ev)

	case StepFailNextSubscribe:
		msg := optString(step.Args, "message", "relay unavailable")
		h.source.FailNext(fmt.Errorf("%s", msg))

	case StepWalletConnect:
		uri, err := argString(step.Args, "uri")
		if err != nil {
			return "", err
		}
		_, err = a.Vault.Connect(ctx, uri, vault.UnlockOptions{AllowCancel: optBool(step.Args, "allow_cancel", true)})
		return "", err

	case StepWalletUnlock:
		outcome, err := a.Vault.Unlock(ctx, vault.UnlockOptions{AllowCancel: optBool(step.Args, "allow_cancel", true)})
		return string(outcome), err

	case StepWalletLock:
		a.Vault.Lock()

	case StepWalletDisconnect:
		a.Vault.Disconnect()

	case StepOpenNotification:
		id, err := argString(step.Args, "id")
		if err != nil {
			return "", err
		}
		h.mu.Lock()
		n, ok := h.presented[id]
		h.mu.Unlock()
		if !ok {
			return "", fmt.Errorf("notification %s was not presented", id)
		}
		origin, err := h.tabArg(step.Args, "origin", h.visibleTab())
		if err != nil {
			return "", err
		}
		return "", notify.Open(a.Router, n, origin)

	default:
		return "", fmt.Errorf("unknown step %q", step.Do)
	}
	return "", nil
}

// settle releases every pending settle wait and runs continuations until
// the orchestrator has left the settling state.
func (h *Harness) settle() error {
	h.timer.FireAll()
	deadline := time.Now().Add(settleTimeout)
	for {
		h.disp.RunPending()
		if h.app.Feed.Status().Get() != feed.StatusSettling {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("feed still settling after %s", settleTimeout)
		}
		time.Sleep(time.Millisecond)
	}
}

// drain runs queued continuations and records notifications presented
// since the last drain.
func (h *Harness) drain() {
	h.disp.RunPending()
	h.app.Notifier.Wait()

	batch := h.presenter.take()
	sort.Slice(batch, func(i, j int) bool { return batch[i].ID < batch[j].ID })
	for _, n := range batch {
		h.mu.Lock()
		h.presented[n.ID] = n
		h.order = append(h.order, n.ID)
		h.mu.Unlock()
		h.trace(KindNotification, n.DeepLink)
	}
}

func (h *Harness) snapshot() FinalState {
	st := h.app.Router.State().Get()
	h.mu.Lock()
	notes := append([]string{}, h.order...)
	h.mu.Unlock()
	return FinalState{
		Route:         st.Active.String(),
		Tab:           string(st.Tab),
		CanGoBack:     len(st.History) > 0,
		HistoryLen:    len(st.History),
		FeedStatus:    string(h.app.Feed.Status().Get()),
		FeedError:     errorCode(h.app.Feed.Err().Get()),
		Content:       eventIDs(h.app.Feed.Content().Get()),
		Subscriptions: len(h.source.Active()),
		Vault:         h.vaultState(),
		Notifications: notes,
	}
}

func (h *Harness) close() {
	for _, unsub := range h.unsubs {
		unsub()
	}
	if err := h.app.Close(); err != nil {
		h.logger.Error("error closing client core", "error", err)
	}
	h.disp.Close()
}

func (h *Harness) vaultState() string {
	switch {
	case h.app.Vault.Unlocked():
		return "unlocked"
	case h.app.Vault.Connected():
		return "locked"
	default:
		return "disconnected"
	}
}

func (h *Harness) visibleTab() router.Tab {
	return h.app.Router.VisibleTab().Get()
}

func (h *Harness) tabArg(args map[string]interface{}, key string, def router.Tab) (router.Tab, error) {
	s := optString(args, key, "")
	if s == "" {
		if def == "" {
			return "", fmt.Errorf("%s is required", key)
		}
		return def, nil
	}
	return router.ParseTab(s)
}

func errorCode(e *feed.Error) string {
	if e == nil {
		return "none"
	}
	return string(e.Code)
}

func eventIDs(events []feed.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}

// describe renders a step as "do key=value ..." with sorted keys.
func describe(step Step) string {
	if len(step.Args) == 0 {
		return step.Do
	}
	keys := make([]string, 0, len(step.Args))
	for k := range step.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(step.Do)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, step.Args[k])
	}
	return b.String()
}

func eventArg(args map[string]interface{}) (feed.Event, error) {
	id, err := argString(args, "id")
	if err != nil {
		return feed.Event{}, err
	}
	pubkey, err := argString(args, "pubkey")
	if err != nil {
		return feed.Event{}, err
	}
	createdAt, err := optInt(args, "created_at", 0)
	if err != nil {
		return feed.Event{}, err
	}
	kind, err := optInt(args, "kind", feed.KindNote)
	if err != nil {
		return feed.Event{}, err
	}
	return feed.Event{
		ID:        id,
		Pubkey:    pubkey,
		Kind:      int(kind),
		CreatedAt: createdAt,
		Content:   optString(args, "content", ""),
	}, nil
}

func argString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%s is required", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s must be a non-empty string, got %v", key, v)
	}
	return s, nil
}

func optString(args map[string]interface{}, key, def string) string {
	if s, ok := args[key].(string); ok {
		return s
	}
	return def
}

func optBool(args map[string]interface{}, key string, def bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}
	return def
}

// optInt accepts the integer shapes yaml.v3 produces.
func optInt(args map[string]interface{}, key string, def int64) (int64, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("%s must be an integer, got %v", key, n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%s must be an integer, got %T", key, v)
	}
}

// recordingPresenter collects presented notifications.
type recordingPresenter struct {
	mu    sync.Mutex
	queue []notify.Notification
}

func (p *recordingPresenter) Present(title, body, id, deepLink string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, notify.Notification{ID: id, Title: title, Body: body, DeepLink: deepLink})
	return nil
}

func (p *recordingPresenter) take() []notify.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.queue
	p.queue = nil
	return out
}
